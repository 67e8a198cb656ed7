package buffer

import (
	"errors"
	"sync"
)

// Sample is a single amplitude value in [-1, 1]
type Sample = float32

var (
	ErrMismatchedBufferSize = errors.New("mismatched buffer size")
	ErrSizeMismatch         = errors.New("write size does not match buffer size")
	ErrOutOfBounds          = errors.New("out of bounds read")
)

// Buffer holds one channel worth of samples
type Buffer struct {
	mu   sync.Mutex
	data []Sample
}

// New allocates a zero-filled buffer of size samples
func New(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: make([]Sample, size)}
}

// Write replaces the entire contents, resizing to len(data)
func (b *Buffer) Write(data []Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cap(b.data) >= len(data) {
		b.data = b.data[:len(data)]
	} else {
		b.data = make([]Sample, len(data))
	}
	copy(b.data, data)
}

// WriteExact replaces the contents only if data has the buffer's length
func (b *Buffer) WriteExact(data []Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(data) != len(b.data) {
		return ErrSizeMismatch
	}
	copy(b.data, data)
	return nil
}

// Overdub adds data sample-wise. The buffer is left untouched on mismatch.
func (b *Buffer) Overdub(data []Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(data) != len(b.data) {
		return ErrMismatchedBufferSize
	}
	for i, s := range data {
		b.data[i] += s
	}
	return nil
}

// Read returns a copy of the current contents
func (b *Buffer) Read() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Sample, len(b.data))
	copy(out, b.data)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Reset zero-fills the buffer, keeping its length
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.data)
}

// at returns the sample at i; caller must not hold b.mu
func (b *Buffer) at(i int) (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.data) {
		return 0, false
	}
	return b.data[i], true
}

// ApplyGain multiplies every sample in place
func ApplyGain(samples []Sample, gain float32) {
	if gain == 1 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}
