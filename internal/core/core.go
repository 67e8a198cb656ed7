// Package core wires the hardware streams, the stream managers and the
// channel actors together and serves the system message bus.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/mixtray/internal/audio"
	"github.com/petems/mixtray/internal/buffer"
	"github.com/petems/mixtray/internal/config"
	"github.com/petems/mixtray/internal/mailbox"
	"github.com/petems/mixtray/internal/mixer"
	"github.com/petems/mixtray/internal/routing"
	"github.com/petems/mixtray/internal/stream"
	"github.com/rs/zerolog"
)

// SampleRate is requested for both directions unless the config overrides it
const SampleRate = 48000

var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrIndexOutOfRange   = errors.New("channel index out of range")
	ErrNotRunning        = errors.New("core is not running")
	ErrAlreadyStarted    = errors.New("core has already been started")
)

type Core struct {
	host audio.Host
	cfg  config.AudioConfig
	log  zerolog.Logger

	inputDevice  audio.Device
	outputDevice audio.Device
	InputConfig  audio.StreamConfig
	OutputConfig audio.StreamConfig

	// mu guards the registry. The output callback takes the read side.
	mu       sync.RWMutex
	channels []*mixer.Channel
	master   *mixer.Levels

	bus *mailbox.Mailbox[Message]

	input *stream.InputManager

	outMu  sync.Mutex
	output *stream.OutputManager

	started atomic.Bool
	runMu   sync.Mutex
	runCtx  context.Context
	wg      sync.WaitGroup

	frames atomic.Uint64
}

// New resolves devices and negotiates both stream configs. A missing
// device or a rejected config is fatal.
func New(host audio.Host, cfg *config.Config, log zerolog.Logger) (*Core, error) {
	c := &Core{
		host:   host,
		cfg:    cfg.Audio,
		log:    log.With().Str("component", "core").Logger(),
		master: mixer.NewLevels(cfg.Master.Volume, 0),
		bus:    mailbox.New[Message](cfg.Audio.BusMailbox, cfg.Audio.SendTimeout()),
	}

	var err error
	c.inputDevice, err = audio.FindDevice(host, cfg.Audio.InputDevice, audio.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: input: %w", ErrDeviceUnavailable, err)
	}
	c.outputDevice, err = audio.FindDevice(host, cfg.Audio.OutputDevice, audio.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: output: %w", ErrDeviceUnavailable, err)
	}

	rate := cfg.Audio.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}
	want := audio.DefaultConfig(rate, cfg.Audio.FramesPerBuffer)
	c.InputConfig, err = host.Negotiate(c.inputDevice, audio.Input, want)
	if err != nil {
		return nil, fmt.Errorf("negotiate input: %w", err)
	}
	c.OutputConfig, err = host.Negotiate(c.outputDevice, audio.Output, want)
	if err != nil {
		return nil, fmt.Errorf("negotiate output: %w", err)
	}

	opts := stream.Options{MailboxSize: cfg.Audio.ManagerMailbox, SendTimeout: cfg.Audio.SendTimeout()}
	c.input = stream.NewInputManager(host, c.dispatch, opts, log)
	c.output = stream.NewOutputManager(host, c.masterGain, opts, log)

	for _, chCfg := range cfg.Channels {
		out := c.fitOutput(chCfg.Name, chCfg.Output)
		c.channels = append(c.channels, c.newChannel(chCfg.Name, chCfg.Input, out, chCfg.Volume, chCfg.Pan))
	}
	if len(c.channels) == 0 {
		c.channels = append(c.channels, c.newChannel("Channel 1", routing.MonoIO(0), c.defaultOutput(), 1, 0))
	}

	c.log.Info().
		Str("input", c.inputDevice.Name).
		Str("input_config", c.InputConfig.String()).
		Str("output", c.outputDevice.Name).
		Str("output_config", c.OutputConfig.String()).
		Int("channels", len(c.channels)).
		Msg("Audio core initialized")

	return c, nil
}

func (c *Core) newChannel(name string, in, out routing.IO, volume, pan float32) *mixer.Channel {
	return mixer.New(mixer.Config{
		Name:        name,
		Input:       in,
		Output:      out,
		Volume:      volume,
		Panning:     pan,
		MailboxSize: c.cfg.ChannelMailbox,
		SendTimeout: c.cfg.SendTimeout(),
		Locator:     c,
		Logger:      c.log,
	})
}

// fitOutput replaces a route the output device cannot carry with the
// default route for its channel count.
func (c *Core) fitOutput(name string, out routing.IO) routing.IO {
	for _, ch := range out.Channels() {
		if ch < 0 || ch >= c.OutputConfig.Channels() {
			fitted := c.defaultOutput()
			c.log.Warn().
				Str("channel", name).
				Str("output", out.String()).
				Str("using", fitted.String()).
				Int("device_channels", c.OutputConfig.Channels()).
				Msg("Output route exceeds device, using default")
			return fitted
		}
	}
	return out
}

func (c *Core) defaultOutput() routing.IO {
	if c.OutputConfig.Channels() >= 2 {
		return routing.StereoIO(0, 1)
	}
	return routing.MonoIO(0)
}

// Channels returns a snapshot of the registry
func (c *Core) Channels() []*mixer.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*mixer.Channel(nil), c.channels...)
}

// Channel returns the registered channel at index
func (c *Core) Channel(index int) (*mixer.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if index < 0 || index >= len(c.channels) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(c.channels))
	}
	return c.channels[index], nil
}

// Master is the output fader applied in the output callback
func (c *Core) Master() *mixer.Levels {
	return c.master
}

// Frames returns the number of input frames announced on the bus
func (c *Core) Frames() uint64 {
	return c.frames.Load()
}

// Run starts every actor, opens and starts both streams and blocks until
// quit is closed or ctx ends. Stream open failures are logged, not fatal.
func (c *Core) Run(ctx context.Context, quit <-chan struct{}) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.runMu.Lock()
	c.runCtx = ctx
	c.runMu.Unlock()

	c.spawn(ctx, c.serveBus)
	for _, ch := range c.Channels() {
		c.spawn(ctx, ch.Run)
	}
	c.spawn(ctx, c.input.Run)
	output := c.currentOutput()
	c.spawn(ctx, output.Run)

	if err := c.openOutput(ctx, output); err != nil {
		c.log.Error().Err(err).Msg("Output stream unavailable")
	}
	if err := c.openInput(ctx); err != nil {
		c.log.Error().Err(err).Msg("Input stream unavailable")
	}

	c.log.Info().Msg("Mixer running")

	select {
	case <-quit:
		c.log.Info().Msg("Quit received")
	case <-ctx.Done():
	}

	c.shutdown(cancel)
	return nil
}

func (c *Core) spawn(ctx context.Context, run func(context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := run(ctx); err != nil {
			c.log.Error().Err(err).Msg("Actor stopped with error")
		}
	}()
}

func (c *Core) openInput(ctx context.Context) error {
	// queued ahead of any overdub from the new source, so it only clears
	// what the previous source left behind
	if err := c.currentOutput().Sink().Send(ctx, stream.NewInput{}); err != nil {
		c.log.Debug().Err(err).Msg("Output did not take NewInput")
	}

	reply := make(chan error, 1)
	msg := stream.NewInputSource{Device: c.inputDevice, Config: c.InputConfig, Reply: reply}
	if err := c.input.Mailbox().Send(ctx, msg); err != nil {
		return err
	}
	return wait(ctx, reply)
}

func (c *Core) openOutput(ctx context.Context, m *stream.OutputManager) error {
	reply := make(chan error, 1)
	msg := stream.NewOutputSink{Device: c.outputDevice, Config: c.OutputConfig, Reply: reply}
	if err := m.Sink().Send(ctx, msg); err != nil {
		return err
	}
	return wait(ctx, reply)
}

func wait(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown asks every actor to quit in input-to-output order, waits for
// them and then releases the streams.
func (c *Core) shutdown(cancel context.CancelFunc) {
	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()

	quitInput := c.input.Mailbox().Send(ctx, stream.Quit{})
	for _, ch := range c.Channels() {
		_ = ch.Mailbox().Send(ctx, mixer.Quit{})
	}
	_ = c.currentOutput().Sink().Send(ctx, stream.Quit{})
	if quitInput != nil {
		c.log.Debug().Err(quitInput).Msg("Input manager did not take Quit")
	}

	// no ResetOutput may spawn once the wait begins
	c.runMu.Lock()
	c.runCtx = nil
	c.runMu.Unlock()

	// anything that ignored Quit stops with the context
	cancel()
	c.wg.Wait()

	if err := c.input.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close input stream")
	}
	if err := c.currentOutput().Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close output stream")
	}
	c.bus.Close()

	c.log.Info().Msg("Mixer stopped")
}

func (c *Core) currentOutput() *stream.OutputManager {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.output
}

// dispatch runs on the input driver thread: hand the frame to every
// channel without waiting and note it on the bus.
func (c *Core) dispatch(frame uint64, v *buffer.Vector) {
	c.mu.RLock()
	for _, ch := range c.channels {
		_ = ch.Mailbox().TrySend(mixer.NewBuffer{Vector: v})
	}
	c.mu.RUnlock()

	_ = c.bus.TrySend(NewBuffer{Frame: frame})
}

// masterGain runs on the output driver thread
func (c *Core) masterGain() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.master.Gain()
}

// ResetOutput retires the output manager and starts a fresh one on the
// same device. Channels find the new sink through the bus once the old one
// reports closed.
func (c *Core) ResetOutput(ctx context.Context) error {
	opts := stream.Options{MailboxSize: c.cfg.ManagerMailbox, SendTimeout: c.cfg.SendTimeout()}
	fresh := stream.NewOutputManager(c.host, c.masterGain, opts, c.log)

	c.runMu.Lock()
	if c.runCtx == nil {
		c.runMu.Unlock()
		return ErrNotRunning
	}
	c.spawn(c.runCtx, fresh.Run)
	c.runMu.Unlock()

	c.outMu.Lock()
	old := c.output
	c.output = fresh
	c.outMu.Unlock()

	if err := old.Sink().Send(ctx, stream.Quit{}); err != nil && !errors.Is(err, mailbox.ErrClosed) {
		return fmt.Errorf("retire output: %w", err)
	}
	select {
	case <-old.Sink().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := old.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close retired output stream")
	}

	c.log.Info().Msg("Output reset")
	return c.openOutput(ctx, fresh)
}

// serveBus answers lookups until the bus is closed or ctx ends
func (c *Core) serveBus(ctx context.Context) error {
	for {
		msg, err := c.bus.Recv(ctx)
		if err != nil {
			if errors.Is(err, mailbox.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch msg := msg.(type) {
		case GetOutputSystem:
			answer(msg.Reply, c.currentOutput().Sink())
		case GetChannel:
			answer(msg.Reply, c.lookup(msg.Index))
		case NewChannel:
			answer(msg.Reply, c.register(ctx, msg))
		case NewBuffer:
			c.frames.Store(msg.Frame)
		}
	}
}

// answer never blocks the bus on a caller that stopped listening
func answer[T any](reply chan<- T, v T) {
	if reply == nil {
		return
	}
	select {
	case reply <- v:
	default:
	}
}

func (c *Core) lookup(index int) ChannelResult {
	ch, err := c.Channel(index)
	if err != nil {
		return ChannelResult{Index: index, Err: err}
	}
	return ChannelResult{Index: index, Mailbox: ch.Mailbox()}
}

func (c *Core) register(ctx context.Context, msg NewChannel) ChannelResult {
	ch := c.newChannel(msg.Name, msg.Input, msg.Output, 1, 0)

	c.mu.Lock()
	c.channels = append(c.channels, ch)
	index := len(c.channels) - 1
	c.mu.Unlock()

	c.spawn(ctx, ch.Run)
	c.log.Info().Str("name", msg.Name).Int("index", index).Msg("Channel added")
	return ChannelResult{Index: index, Mailbox: ch.Mailbox()}
}

// OutputSystem asks the bus for the current output sink
func (c *Core) OutputSystem(ctx context.Context) (stream.Sink, error) {
	reply := make(chan stream.Sink, 1)
	if err := c.bus.Send(ctx, GetOutputSystem{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case sink := <-reply:
		return sink, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetChannel asks the bus for a channel mailbox
func (c *Core) GetChannel(ctx context.Context, index int) (*mailbox.Mailbox[mixer.Message], error) {
	reply := make(chan ChannelResult, 1)
	if err := c.bus.Send(ctx, GetChannel{Index: index, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Mailbox, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddChannel asks the bus to register a new channel and returns its index
func (c *Core) AddChannel(ctx context.Context, name string, in, out routing.IO) (int, error) {
	reply := make(chan ChannelResult, 1)
	if err := c.bus.Send(ctx, NewChannel{Name: name, Input: in, Output: out, Reply: reply}); err != nil {
		return -1, err
	}
	select {
	case res := <-reply:
		return res.Index, res.Err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Summary renders the routing table, one channel per line
func (c *Core) Summary(ctx context.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "in:  %s (%s)\n", c.inputDevice.Name, c.InputConfig)
	fmt.Fprintf(&sb, "out: %s (%s)\n", c.outputDevice.Name, c.OutputConfig)
	fmt.Fprintf(&sb, "master: %.2f", c.master.Volume())
	if c.master.Muted() {
		sb.WriteString(" (muted)")
	}
	sb.WriteString("\n")

	for i, ch := range c.Channels() {
		snap, err := ch.Describe(ctx)
		if err != nil {
			fmt.Fprintf(&sb, "%d: unavailable (%v)\n", i+1, err)
			continue
		}
		fmt.Fprintf(&sb, "%d: %s  %s -> %s  vol %.2f  pan %+.2f\n",
			i+1, snap.Name, snap.Input, snap.Output, snap.Volume, snap.Panning)
	}
	return sb.String()
}
