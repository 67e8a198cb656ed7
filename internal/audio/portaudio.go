package audio

import (
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
)

type portAudioHost struct{}

// New initializes PortAudio and returns a Host backed by it
func New() (Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioHost{}, nil
}

func (p *portAudioHost) DefaultInput() (Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("failed to get default input device: %w", err)
	}
	return fromInfo(info, true), nil
}

func (p *portAudioHost) DefaultOutput() (Device, error) {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("failed to get default output device: %w", err)
	}
	return fromInfo(info, true), nil
}

func (p *portAudioHost) Devices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, fromInfo(d, d == defaultIn || d == defaultOut))
	}
	return result, nil
}

func (p *portAudioHost) Negotiate(dev Device, dir Direction, want StreamConfig) (StreamConfig, error) {
	info, err := nativeInfo(dev)
	if err != nil {
		return StreamConfig{}, err
	}

	cfg := want
	maxCh := dev.MaxChannels(dir)
	if maxCh < 1 {
		return StreamConfig{}, fmt.Errorf("device %q has no %s channels", dev.Name, dir)
	}
	if cfg.Format.NumChannels < 1 || cfg.Format.NumChannels > maxCh {
		cfg.Format.NumChannels = maxCh
	}
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = int(info.DefaultSampleRate)
	}
	if cfg.Latency <= 0 {
		if dir == Output {
			cfg.Latency = info.DefaultLowOutputLatency
		} else {
			cfg.Latency = info.DefaultLowInputLatency
		}
	}

	params := streamParameters(info, dir, cfg)
	if err := portaudio.IsFormatSupported(params, func(in, out []float32) {}); err != nil {
		return StreamConfig{}, fmt.Errorf("unsupported %s config %s on %q: %w", dir, cfg, dev.Name, err)
	}
	return cfg, nil
}

func (p *portAudioHost) OpenInput(dev Device, cfg StreamConfig, cb InputCallback) (Stream, error) {
	info, err := nativeInfo(dev)
	if err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenStream(streamParameters(info, Input, cfg), func(in, _ []float32) {
		cb(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	return stream, nil
}

func (p *portAudioHost) OpenOutput(dev Device, cfg StreamConfig, cb OutputCallback) (Stream, error) {
	info, err := nativeInfo(dev)
	if err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenStream(streamParameters(info, Output, cfg), func(_, out []float32) {
		cb(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	return stream, nil
}

func (p *portAudioHost) Close() error {
	return portaudio.Terminate()
}

func streamParameters(info *portaudio.DeviceInfo, dir Direction, cfg StreamConfig) portaudio.StreamParameters {
	dp := portaudio.StreamDeviceParameters{
		Device:   info,
		Channels: cfg.Format.NumChannels,
		Latency:  cfg.Latency,
	}

	params := portaudio.StreamParameters{
		SampleRate:      float64(cfg.Format.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	if dir == Output {
		params.Output = dp
	} else {
		params.Input = dp
	}
	return params
}

func fromInfo(info *portaudio.DeviceInfo, isDefault bool) Device {
	return Device{
		ID:                info.Name,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		MaxOutputChannels: info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		Default:           isDefault,
		native:            info,
	}
}

func nativeInfo(dev Device) (*portaudio.DeviceInfo, error) {
	info, ok := dev.native.(*portaudio.DeviceInfo)
	if !ok || info == nil {
		return nil, fmt.Errorf("device %q was not enumerated by PortAudio", dev.Name)
	}
	return info, nil
}

// DefaultConfig is the starting point handed to Negotiate
func DefaultConfig(sampleRate, framesPerBuffer int) StreamConfig {
	return StreamConfig{
		Format:          goaudio.Format{SampleRate: sampleRate},
		FramesPerBuffer: framesPerBuffer,
	}
}
