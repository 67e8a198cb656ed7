package buffer

import (
	"fmt"

	goaudio "github.com/go-audio/audio"
)

// Vector is an ordered set of per-channel buffers. After Deinterlace every
// buffer has the same length.
type Vector struct {
	buffers []*Buffer
}

// NewVector creates channels empty buffers
func NewVector(channels int) *Vector {
	return NewVectorSized(channels, 0)
}

// NewVectorSized creates channels zero-filled buffers of size samples each
func NewVectorSized(channels, size int) *Vector {
	if channels < 0 {
		channels = 0
	}
	v := &Vector{buffers: make([]*Buffer, channels)}
	for i := range v.buffers {
		v.buffers[i] = New(size)
	}
	return v
}

// Deinterlace splits an interleaved frame into one buffer per channel.
// Channel i receives every channels-th sample starting at offset i.
func Deinterlace(data []Sample, channels int) *Vector {
	v := NewVector(channels)
	if channels < 1 {
		return v
	}

	frames := (len(data) + channels - 1) / channels
	scratch := make([]Sample, 0, frames)
	for i, b := range v.buffers {
		scratch = scratch[:0]
		for j := i; j < len(data); j += channels {
			scratch = append(scratch, data[j])
		}
		b.Write(scratch)
	}
	return v
}

// FromFloat32Buffer deinterlaces a go-audio buffer using its channel count
func FromFloat32Buffer(buf *goaudio.Float32Buffer) (*Vector, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("buffer has no format")
	}
	return Deinterlace(buf.Data, buf.Format.NumChannels), nil
}

// Len returns the number of channels
func (v *Vector) Len() int {
	return len(v.buffers)
}

// Buffer returns a copy of one channel's samples
func (v *Vector) Buffer(index int) ([]Sample, error) {
	if index < 0 || index >= len(v.buffers) {
		return nil, fmt.Errorf("channel %d of %d: %w", index, len(v.buffers), ErrOutOfBounds)
	}
	return v.buffers[index].Read(), nil
}

// Overdub adds data into one channel
func (v *Vector) Overdub(index int, data []Sample) error {
	if index < 0 || index >= len(v.buffers) {
		return fmt.Errorf("channel %d of %d: %w", index, len(v.buffers), ErrOutOfBounds)
	}
	return v.buffers[index].Overdub(data)
}

// Reset zero-fills every channel
func (v *Vector) Reset() {
	for _, b := range v.buffers {
		b.Reset()
	}
}

// Frames returns the length of the shortest channel
func (v *Vector) Frames() int {
	if len(v.buffers) == 0 {
		return 0
	}
	n := v.buffers[0].Len()
	for _, b := range v.buffers[1:] {
		n = min(n, b.Len())
	}
	return n
}

// Cursor returns a fresh one-shot interlacing sequence over v
func (v *Vector) Cursor() *Cursor {
	return &Cursor{vec: v}
}

// Interlace drains a fresh cursor into a new slice
func (v *Vector) Interlace() []Sample {
	out := make([]Sample, 0, v.Frames()*v.Len())
	c := v.Cursor()
	for {
		s, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

// InterlaceInto fills dst from a fresh cursor, zero-fills whatever is left
// and returns the number of samples written.
func (v *Vector) InterlaceInto(dst []Sample) int {
	c := v.Cursor()
	n := 0
	for n < len(dst) {
		s, ok := c.Next()
		if !ok {
			break
		}
		dst[n] = s
		n++
	}
	clear(dst[n:])
	return n
}

// Float32Buffer interlaces v into a go-audio buffer
func (v *Vector) Float32Buffer(sampleRate int) *goaudio.Float32Buffer {
	return &goaudio.Float32Buffer{
		Format: &goaudio.Format{
			NumChannels: v.Len(),
			SampleRate:  sampleRate,
		},
		Data:           v.Interlace(),
		SourceBitDepth: 32,
	}
}

// Cursor walks a Vector channel-major: sample 0 of every channel, then
// sample 1 of every channel, and so on. It stops at the first channel that
// runs out and cannot be rewound.
type Cursor struct {
	vec   *Vector
	outer int
	inner int
	done  bool
}

// Next returns the next interlaced sample, or false once exhausted
func (c *Cursor) Next() (Sample, bool) {
	if c.done || len(c.vec.buffers) == 0 {
		c.done = true
		return 0, false
	}
	if c.outer >= len(c.vec.buffers) {
		c.outer = 0
		c.inner++
	}
	s, ok := c.vec.buffers[c.outer].at(c.inner)
	if !ok {
		c.done = true
		return 0, false
	}
	c.outer++
	return s, true
}
