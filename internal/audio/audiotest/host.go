// Package audiotest provides an in-memory audio.Host for tests.
package audiotest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/petems/mixtray/internal/audio"
)

var ErrNoDevice = errors.New("no such device")

// Host is a fake audio.Host. Streams never run on their own; tests drive
// callbacks through PushInput and PullOutput.
type Host struct {
	mu sync.Mutex

	Input  *audio.Device
	Output *audio.Device

	FailOpenInput  error
	FailOpenOutput error
	FailNegotiate  error

	inputs  []*Stream
	outputs []*Stream
}

// NewHost returns a host with a default input and output device
func NewHost(inChannels, outChannels int) *Host {
	return &Host{
		Input: &audio.Device{
			ID: "fake-in", Name: "Fake Input",
			MaxInputChannels: inChannels, DefaultSampleRate: 48000, Default: true,
		},
		Output: &audio.Device{
			ID: "fake-out", Name: "Fake Output",
			MaxOutputChannels: outChannels, DefaultSampleRate: 48000, Default: true,
		},
	}
}

func (h *Host) DefaultInput() (audio.Device, error) {
	if h.Input == nil {
		return audio.Device{}, ErrNoDevice
	}
	return *h.Input, nil
}

func (h *Host) DefaultOutput() (audio.Device, error) {
	if h.Output == nil {
		return audio.Device{}, ErrNoDevice
	}
	return *h.Output, nil
}

func (h *Host) Devices() ([]audio.Device, error) {
	var out []audio.Device
	if h.Input != nil {
		out = append(out, *h.Input)
	}
	if h.Output != nil {
		out = append(out, *h.Output)
	}
	return out, nil
}

func (h *Host) Negotiate(dev audio.Device, dir audio.Direction, want audio.StreamConfig) (audio.StreamConfig, error) {
	if h.FailNegotiate != nil {
		return audio.StreamConfig{}, h.FailNegotiate
	}
	maxCh := dev.MaxChannels(dir)
	if maxCh < 1 {
		return audio.StreamConfig{}, fmt.Errorf("device %q has no %s channels", dev.Name, dir)
	}
	cfg := want
	if cfg.Format.NumChannels < 1 || cfg.Format.NumChannels > maxCh {
		cfg.Format.NumChannels = maxCh
	}
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = int(dev.DefaultSampleRate)
	}
	return cfg, nil
}

func (h *Host) OpenInput(dev audio.Device, cfg audio.StreamConfig, cb audio.InputCallback) (audio.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.FailOpenInput != nil {
		return nil, h.FailOpenInput
	}
	s := &Stream{Config: cfg, in: cb}
	h.inputs = append(h.inputs, s)
	return s, nil
}

func (h *Host) OpenOutput(dev audio.Device, cfg audio.StreamConfig, cb audio.OutputCallback) (audio.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.FailOpenOutput != nil {
		return nil, h.FailOpenOutput
	}
	s := &Stream{Config: cfg, out: cb}
	h.outputs = append(h.outputs, s)
	return s, nil
}

func (h *Host) Close() error { return nil }

// InputStreams returns every input stream opened so far
func (h *Host) InputStreams() []*Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Stream(nil), h.inputs...)
}

// OutputStreams returns every output stream opened so far
func (h *Host) OutputStreams() []*Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Stream(nil), h.outputs...)
}

// Stream is a fake audio.Stream
type Stream struct {
	Config audio.StreamConfig

	mu      sync.Mutex
	started bool
	closed  bool
	in      audio.InputCallback
	out     audio.OutputCallback
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.started = true
	return nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PushInput invokes the input callback as the driver would
func (s *Stream) PushInput(frame []float32) {
	if s.in != nil {
		s.in(frame)
	}
}

// PullOutput invokes the output callback and returns the filled buffer
func (s *Stream) PullOutput() []float32 {
	out := make([]float32, s.Config.Samples())
	if s.out != nil {
		s.out(out)
	}
	return out
}
