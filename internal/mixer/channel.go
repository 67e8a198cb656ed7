// Package mixer implements the per-channel actor: a goroutine that owns a
// channel's routing and forwards gain-adjusted audio to the output sink.
package mixer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/petems/mixtray/internal/buffer"
	"github.com/petems/mixtray/internal/mailbox"
	"github.com/petems/mixtray/internal/routing"
	"github.com/petems/mixtray/internal/stream"
	"github.com/rs/zerolog"
)

// OutputLocator hands out the current output sink
type OutputLocator interface {
	OutputSystem(ctx context.Context) (stream.Sink, error)
}

// Config sets up a Channel. Volume is used as given; callers supply 1.0
// for unity gain.
type Config struct {
	Name    string
	Input   routing.IO
	Output  routing.IO
	Volume  float32
	Panning float32

	MailboxSize int
	SendTimeout time.Duration
	// LookupTimeout bounds a sink lookup after the sink went away
	LookupTimeout time.Duration

	Locator OutputLocator
	Logger  zerolog.Logger
}

// Stats counts what happened to NewBuffer messages
type Stats struct {
	Processed  uint64
	Dropped    uint64
	Reconnects uint64
}

// Channel is one mixer strip, driven through its mailbox by Run
type Channel struct {
	id      uuid.UUID
	mailbox *mailbox.Mailbox[Message]
	levels  *Levels
	locator OutputLocator
	lookup  time.Duration
	log     zerolog.Logger

	// owned by the Run goroutine
	name         string
	input        routing.IO
	output       routing.IO
	sink         stream.Sink
	stereoWarned bool

	processed  atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
}

// New builds a channel; it does nothing until Run is started
func New(cfg Config) *Channel {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 16
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 50 * time.Millisecond
	}

	id := uuid.New()
	return &Channel{
		id:      id,
		mailbox: mailbox.New[Message](cfg.MailboxSize, cfg.SendTimeout),
		levels:  NewLevels(cfg.Volume, cfg.Panning),
		locator: cfg.Locator,
		lookup:  cfg.LookupTimeout,
		log: cfg.Logger.With().
			Str("component", "channel").
			Str("channel_id", id.String()).
			Logger(),
		name:   cfg.Name,
		input:  cfg.Input,
		output: cfg.Output,
	}
}

// ID is assigned at construction and never changes
func (c *Channel) ID() uuid.UUID { return c.id }

// Mailbox is the only way to reach the channel's routing state
func (c *Channel) Mailbox() *mailbox.Mailbox[Message] { return c.mailbox }

// Levels exposes the volume and panning for direct access
func (c *Channel) Levels() *Levels { return c.levels }

// Stats returns the NewBuffer counters
func (c *Channel) Stats() Stats {
	return Stats{
		Processed:  c.processed.Load(),
		Dropped:    c.dropped.Load(),
		Reconnects: c.reconnects.Load(),
	}
}

// Run processes the mailbox in arrival order until Quit, closure or ctx ends
func (c *Channel) Run(ctx context.Context) error {
	defer c.mailbox.Close()

	c.log.Debug().Str("name", c.name).Msg("Channel running")
	for {
		msg, err := c.mailbox.Recv(ctx)
		if err != nil {
			if errors.Is(err, mailbox.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !c.handle(ctx, msg) {
			c.log.Debug().Str("name", c.name).Msg("Channel terminated")
			return nil
		}
	}
}

func (c *Channel) handle(ctx context.Context, msg Message) bool {
	switch msg := msg.(type) {
	case Quit:
		return false
	case GetID:
		answer(msg.Reply, c.id)
	case GetName:
		answer(msg.Reply, c.name)
	case SetName:
		c.name = msg.Name
	case GetVolume:
		answer(msg.Reply, c.levels.Volume())
	case SetVolume:
		c.levels.SetVolume(msg.Volume)
	case GetPanning:
		answer(msg.Reply, c.levels.Panning())
	case SetPanning:
		c.levels.SetPanning(msg.Panning)
	case GetInput:
		answer(msg.Reply, c.input)
	case SetInput:
		c.input = msg.Input
		c.stereoWarned = false
	case GetOutput:
		answer(msg.Reply, c.output)
	case SetOutput:
		c.output = msg.Output
	case SetOutputSystem:
		c.sink = msg.Sink
	case NewBuffer:
		c.process(ctx, msg.Vector)
	}
	return true
}

// answer never blocks the actor on a reply nobody reads
func answer[T any](reply chan<- T, v T) {
	select {
	case reply <- v:
	default:
	}
}

// process routes one hardware frame through the channel. Every outcome is
// final for this frame; nothing is queued for a later cycle.
func (c *Channel) process(ctx context.Context, v *buffer.Vector) {
	samples, ok := c.selectInput(v)
	if !ok {
		return
	}

	buffer.ApplyGain(samples, c.levels.Gain())
	c.processed.Add(1)

	if c.output.IsNone() {
		return
	}
	c.forward(ctx, stream.Overdub{Target: c.output.Physical, Samples: samples})
}

func (c *Channel) selectInput(v *buffer.Vector) ([]buffer.Sample, bool) {
	if c.input.IsNone() || v == nil {
		return nil, false
	}

	src := c.input.Physical.Left
	if c.input.Physical.Layout == routing.Stereo && !c.stereoWarned {
		// stereo sources are read from the left channel only
		c.log.Debug().Str("input", c.input.String()).Msg("Stereo input reduced to left channel")
		c.stereoWarned = true
	}

	samples, err := v.Buffer(src)
	if err != nil {
		c.dropped.Add(1)
		c.log.Debug().Err(err).Str("input", c.input.String()).Msg("Input channel unavailable")
		return nil, false
	}
	return samples, true
}

func (c *Channel) forward(ctx context.Context, msg stream.Overdub) {
	if c.sink == nil && !c.reconnect(ctx) {
		c.dropped.Add(1)
		return
	}

	err := c.sink.TrySend(msg)
	switch {
	case err == nil:
	case errors.Is(err, mailbox.ErrClosed):
		c.dropped.Add(1)
		c.log.Warn().Msg("Output sink unreachable, reconnecting")
		c.reconnect(ctx)
	default:
		c.dropped.Add(1)
	}
}

// reconnect asks the locator for the current sink and keeps it
func (c *Channel) reconnect(ctx context.Context) bool {
	if c.locator == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.lookup)
	defer cancel()

	sink, err := c.locator.OutputSystem(ctx)
	if err != nil || sink == nil {
		c.log.Warn().Err(err).Msg("Failed to obtain output sink")
		return false
	}
	c.sink = sink
	c.reconnects.Add(1)
	return true
}

// Snapshot is a point-in-time view of a channel
type Snapshot struct {
	ID      uuid.UUID
	Name    string
	Input   routing.IO
	Output  routing.IO
	Volume  float32
	Panning float32
	Stats   Stats
}

// Describe collects a Snapshot through the mailbox
func (c *Channel) Describe(ctx context.Context) (Snapshot, error) {
	name, err := Ask(ctx, c.mailbox, func(r chan<- string) Message { return GetName{Reply: r} })
	if err != nil {
		return Snapshot{}, err
	}
	in, err := Ask(ctx, c.mailbox, func(r chan<- routing.IO) Message { return GetInput{Reply: r} })
	if err != nil {
		return Snapshot{}, err
	}
	out, err := Ask(ctx, c.mailbox, func(r chan<- routing.IO) Message { return GetOutput{Reply: r} })
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:      c.id,
		Name:    name,
		Input:   in,
		Output:  out,
		Volume:  c.levels.Volume(),
		Panning: c.levels.Panning(),
		Stats:   c.Stats(),
	}, nil
}
