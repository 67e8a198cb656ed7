package audio

import (
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"
)

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Host is the boundary to the operating system's audio subsystem
type Host interface {
	DefaultInput() (Device, error)
	DefaultOutput() (Device, error)
	Devices() ([]Device, error)
	// Negotiate returns the closest config the device accepts for want
	Negotiate(dev Device, dir Direction, want StreamConfig) (StreamConfig, error)
	OpenInput(dev Device, cfg StreamConfig, cb InputCallback) (Stream, error)
	OpenOutput(dev Device, cfg StreamConfig, cb OutputCallback) (Stream, error)
	Close() error
}

// Stream is an open hardware stream
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// InputCallback receives one interleaved hardware buffer. It runs on the
// driver's thread and must return quickly.
type InputCallback func(in []float32)

// OutputCallback fills one interleaved hardware buffer
type OutputCallback func(out []float32)

// Device represents an audio device
type Device struct {
	ID                string
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	Default           bool

	native any
}

func (d Device) MaxChannels(dir Direction) int {
	if dir == Output {
		return d.MaxOutputChannels
	}
	return d.MaxInputChannels
}

// StreamConfig is the negotiated shape of a stream
type StreamConfig struct {
	Format          goaudio.Format
	FramesPerBuffer int
	Latency         time.Duration
}

func (c StreamConfig) Channels() int   { return c.Format.NumChannels }
func (c StreamConfig) SampleRate() int { return c.Format.SampleRate }

// Samples is the length of one interleaved callback buffer
func (c StreamConfig) Samples() int {
	return c.Format.NumChannels * c.FramesPerBuffer
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%dch %dHz %d frames", c.Format.NumChannels, c.Format.SampleRate, c.FramesPerBuffer)
}

// FindDevice looks a device up by ID or name, falling back to the default
// device for dir when name is empty.
func FindDevice(h Host, name string, dir Direction) (Device, error) {
	if name == "" {
		if dir == Output {
			return h.DefaultOutput()
		}
		return h.DefaultInput()
	}

	devices, err := h.Devices()
	if err != nil {
		return Device{}, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if (d.ID == name || d.Name == name) && d.MaxChannels(dir) > 0 {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%s device not found: %s", dir, name)
}
