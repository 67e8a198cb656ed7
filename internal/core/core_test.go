package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/petems/mixtray/internal/audio/audiotest"
	"github.com/petems/mixtray/internal/config"
	"github.com/petems/mixtray/internal/mixer"
	"github.com/petems/mixtray/internal/routing"
	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ { // Poll for 2 seconds
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newCore(t *testing.T, host *audiotest.Host, cfg *config.Config) *Core {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	c, err := New(host, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// startCore runs c until the test ends and waits for both streams
func startCore(t *testing.T, host *audiotest.Host, c *Core) chan struct{} {
	t.Helper()
	quit := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), quit) }()

	t.Cleanup(func() {
		select {
		case <-quit:
		default:
			close(quit)
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after quit")
		}
	})

	waitFor(t, "streams", func() bool {
		return len(host.InputStreams()) == 1 && len(host.OutputStreams()) == 1 &&
			host.InputStreams()[0].Started() && host.OutputStreams()[0].Started()
	})
	return quit
}

func TestNewNegotiatesBothDirections(t *testing.T) {
	c := newCore(t, audiotest.NewHost(1, 2), nil)

	if c.InputConfig.Channels() != 1 {
		t.Errorf("input channels = %d, want 1", c.InputConfig.Channels())
	}
	if c.OutputConfig.Channels() != 2 {
		t.Errorf("output channels = %d, want 2", c.OutputConfig.Channels())
	}
	if c.OutputConfig.SampleRate() != SampleRate {
		t.Errorf("sample rate = %d, want %d", c.OutputConfig.SampleRate(), SampleRate)
	}
	if len(c.Channels()) != 1 {
		t.Errorf("channels = %d, want 1", len(c.Channels()))
	}
}

func TestChannelLookup(t *testing.T) {
	cfg := config.Default()
	cfg.Channels = append(cfg.Channels, config.ChannelConfig{
		Name:   "Talkback",
		Input:  routing.MonoIO(0),
		Output: routing.MonoIO(1),
		Volume: 0.5,
	})
	c := newCore(t, audiotest.NewHost(1, 2), cfg)

	ch, err := c.Channel(1)
	if err != nil {
		t.Fatalf("Channel(1) error = %v", err)
	}
	if ch.Levels().Volume() != 0.5 {
		t.Errorf("volume = %v, want 0.5", ch.Levels().Volume())
	}
	if _, err := c.Channel(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Channel(2) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestNewMissingDevice(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	host.Output = nil

	_, err := New(host, config.Default(), zerolog.Nop())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("New() error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestNewNamedDeviceNotFound(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.InputDevice = "Studio Interface"

	_, err := New(audiotest.NewHost(1, 2), cfg, zerolog.Nop())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("New() error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestNewNegotiationFailure(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	host.FailNegotiate = errors.New("unsupported format")

	if _, err := New(host, config.Default(), zerolog.Nop()); err == nil {
		t.Fatal("expected negotiation error")
	}
}

func TestEndToEndMix(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	c := newCore(t, host, nil)
	startCore(t, host, c)

	in := host.InputStreams()[0]
	out := host.OutputStreams()[0]
	output := c.currentOutput()

	frame := make([]float32, c.InputConfig.Samples())
	for i := range frame {
		frame[i] = 0.5
	}

	in.PushInput(frame)
	waitFor(t, "overdub", func() bool {
		mixed, _ := output.Stats()
		return mixed > 0
	})
	got := out.PullOutput()

	if len(got) != c.OutputConfig.Samples() {
		t.Fatalf("output len = %d, want %d", len(got), c.OutputConfig.Samples())
	}
	for i, s := range got {
		if s != 0.5 {
			t.Fatalf("out[%d] = %v, want 0.5", i, s)
		}
	}

	// nothing new arrived, so the next pull is silence
	for i, s := range out.PullOutput() {
		if s != 0 {
			t.Fatalf("second pull out[%d] = %v, want 0", i, s)
		}
	}

	waitFor(t, "bus frame count", func() bool { return c.Frames() > 0 })
}

func TestMonoOutputDeviceGetsDefaultChannel(t *testing.T) {
	host := audiotest.NewHost(1, 1)
	c := newCore(t, host, nil)

	ch, err := c.Channel(0)
	if err != nil {
		t.Fatalf("Channel(0) error = %v", err)
	}
	snapCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	startCore(t, host, c)

	snap, err := ch.Describe(snapCtx)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if snap.Output != routing.MonoIO(0) {
		t.Fatalf("output = %s, want mono:0 on a one-channel device", snap.Output)
	}

	frame := make([]float32, c.InputConfig.Samples())
	for i := range frame {
		frame[i] = 0.5
	}
	output := c.currentOutput()
	host.InputStreams()[0].PushInput(frame)
	waitFor(t, "overdub", func() bool {
		mixed, _ := output.Stats()
		return mixed > 0
	})

	got := host.OutputStreams()[0].PullOutput()
	if len(got) != c.OutputConfig.Samples() {
		t.Fatalf("output len = %d, want %d", len(got), c.OutputConfig.Samples())
	}
	for i, s := range got {
		if s != 0.5 {
			t.Fatalf("out[%d] = %v, want 0.5", i, s)
		}
	}
	if _, dropped := output.Stats(); dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
}

func TestMasterMuteSilencesOutput(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	c := newCore(t, host, nil)
	startCore(t, host, c)

	c.Master().SetMuted(true)

	frame := make([]float32, c.InputConfig.Samples())
	for i := range frame {
		frame[i] = 1
	}
	output := c.currentOutput()
	before, _ := output.Stats()
	host.InputStreams()[0].PushInput(frame)
	waitFor(t, "overdub", func() bool {
		mixed, _ := output.Stats()
		return mixed > before
	})

	for i, s := range host.OutputStreams()[0].PullOutput() {
		if s != 0 {
			t.Fatalf("out[%d] = %v, want 0 while muted", i, s)
		}
	}
}

func TestInputOpenFailureIsNotFatal(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	host.FailOpenInput = errors.New("device busy")
	c := newCore(t, host, nil)

	quit := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), quit) }()

	waitFor(t, "output stream", func() bool {
		return len(host.OutputStreams()) == 1 && host.OutputStreams()[0].Started()
	})
	close(quit)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if !host.OutputStreams()[0].Closed() {
		t.Error("output stream not closed on shutdown")
	}
}

func TestRunTwice(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	c := newCore(t, host, nil)
	startCore(t, host, c)

	quit := make(chan struct{})
	if err := c.Run(context.Background(), quit); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestGetChannel(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	c := newCore(t, host, nil)
	startCore(t, host, c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	mb, err := c.GetChannel(ctx, 0)
	if err != nil {
		t.Fatalf("GetChannel(0) error = %v", err)
	}
	if mb != c.Channels()[0].Mailbox() {
		t.Error("GetChannel(0) returned a different mailbox")
	}

	if _, err := c.GetChannel(ctx, 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("GetChannel(5) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := c.GetChannel(ctx, -1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("GetChannel(-1) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestAddChannel(t *testing.T) {
	host := audiotest.NewHost(2, 2)
	c := newCore(t, host, nil)
	startCore(t, host, c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	index, err := c.AddChannel(ctx, "Guitar", routing.MonoIO(1), routing.MonoIO(1))
	if err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}
	if index != 1 {
		t.Errorf("index = %d, want 1", index)
	}

	mb, err := c.GetChannel(ctx, index)
	if err != nil {
		t.Fatalf("GetChannel() error = %v", err)
	}
	name, err := mixer.Ask(ctx, mb, func(r chan<- string) mixer.Message { return mixer.GetName{Reply: r} })
	if err != nil {
		t.Fatalf("Ask(GetName) error = %v", err)
	}
	if name != "Guitar" {
		t.Errorf("name = %q, want Guitar", name)
	}
}

func TestResetOutput(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	c := newCore(t, host, nil)
	startCore(t, host, c)

	frame := make([]float32, c.InputConfig.Samples())
	for i := range frame {
		frame[i] = 0.25
	}
	in := host.InputStreams()[0]
	ch := c.Channels()[0]

	old := c.currentOutput()
	waitFor(t, "mix before reset", func() bool {
		in.PushInput(frame)
		mixed, _ := old.Stats()
		return mixed > 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.ResetOutput(ctx); err != nil {
		t.Fatalf("ResetOutput() error = %v", err)
	}

	outputs := host.OutputStreams()
	if len(outputs) != 2 {
		t.Fatalf("output streams = %d, want 2", len(outputs))
	}
	if !outputs[0].Closed() {
		t.Error("retired output stream still open")
	}
	if !outputs[1].Started() {
		t.Error("new output stream not started")
	}
	if !old.Sink().Closed() {
		t.Error("retired sink still open")
	}

	sink, err := c.OutputSystem(ctx)
	if err != nil {
		t.Fatalf("OutputSystem() error = %v", err)
	}
	if sink != c.currentOutput().Sink() {
		t.Error("OutputSystem returned the retired sink")
	}

	// the channel notices the closed sink, reconnects and later frames mix
	fresh := c.currentOutput()
	waitFor(t, "mix after reset", func() bool {
		in.PushInput(frame)
		mixed, _ := fresh.Stats()
		return mixed > 0
	})
	if ch.Stats().Reconnects < 2 {
		t.Errorf("reconnects = %d, want at least 2", ch.Stats().Reconnects)
	}
}

func TestResetOutputBeforeRun(t *testing.T) {
	c := newCore(t, audiotest.NewHost(1, 2), nil)
	if err := c.ResetOutput(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("ResetOutput() error = %v, want ErrNotRunning", err)
	}
}

func TestSummary(t *testing.T) {
	host := audiotest.NewHost(1, 2)
	c := newCore(t, host, nil)
	startCore(t, host, c)

	c.Master().SetMuted(true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := c.Summary(ctx)
	for _, want := range []string{"Fake Input", "Fake Output", "(muted)", "Channel 1", "mono:0 -> stereo:0,1"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() missing %q:\n%s", want, got)
		}
	}
}
