package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petems/mixtray/internal/audio"
	"github.com/petems/mixtray/internal/buffer"
	"github.com/petems/mixtray/internal/mailbox"
	"github.com/petems/mixtray/internal/routing"
	"github.com/rs/zerolog"
)

// GainFunc returns the gain applied to everything leaving the output stream.
// It is called on the driver's thread.
type GainFunc func() float32

type OutputManager struct {
	host    audio.Host
	mailbox *mailbox.Mailbox[OutputMessage]
	gain    GainFunc
	log     zerolog.Logger

	streamMu sync.Mutex
	stream   audio.Stream

	// accumMu guards accum between overdubs and the output callback
	accumMu sync.Mutex
	accum   *buffer.Vector

	mixed   atomic.Uint64
	dropped atomic.Uint64
}

func NewOutputManager(host audio.Host, gain GainFunc, opts Options, log zerolog.Logger) *OutputManager {
	opts = opts.withDefaults()
	if gain == nil {
		gain = func() float32 { return 1 }
	}
	return &OutputManager{
		host:    host,
		mailbox: mailbox.New[OutputMessage](opts.MailboxSize, opts.SendTimeout),
		gain:    gain,
		log:     log.With().Str("component", "output").Logger(),
	}
}

// Sink returns the mailbox channels deliver Overdub messages to
func (m *OutputManager) Sink() Sink {
	return m.mailbox
}

// Run processes messages until Quit, mailbox closure or ctx ends. The
// mailbox is closed on return so that channels holding it reconnect.
func (m *OutputManager) Run(ctx context.Context) error {
	defer m.mailbox.Close()

	for {
		msg, err := m.mailbox.Recv(ctx)
		if err != nil {
			if errors.Is(err, mailbox.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch msg := msg.(type) {
		case NewOutputSink:
			err := m.open(msg.Device, msg.Config)
			if err != nil {
				m.log.Error().Err(err).Str("device", msg.Device.Name).Msg("Failed to open output stream")
			}
			reply(msg.Reply, err)
		case NewInput:
			m.log.Debug().Msg("Input changed, clearing output buffer")
			m.accumMu.Lock()
			if m.accum != nil {
				m.accum.Reset()
			}
			m.accumMu.Unlock()
		case Overdub:
			if err := m.overdub(msg.Target, msg.Samples); err != nil {
				m.dropped.Add(1)
				m.log.Debug().Err(err).Msg("Dropped overdub")
			} else {
				m.mixed.Add(1)
			}
		case Quit:
			m.log.Debug().Msg("Output manager quitting")
			return nil
		}
	}
}

func (m *OutputManager) overdub(target routing.Physical, samples []buffer.Sample) error {
	m.accumMu.Lock()
	defer m.accumMu.Unlock()

	if m.accum == nil {
		return errors.New("no output stream")
	}

	channels := target.Channels()
	// validate every target before touching the accumulator
	for _, c := range channels {
		if c < 0 || c >= m.accum.Len() {
			return fmt.Errorf("output channel %d of %d: %w", c, m.accum.Len(), buffer.ErrOutOfBounds)
		}
	}
	if len(samples) != m.accum.Frames() {
		return fmt.Errorf("%d samples for %d frames: %w", len(samples), m.accum.Frames(), buffer.ErrMismatchedBufferSize)
	}
	for _, c := range channels {
		if err := m.accum.Overdub(c, samples); err != nil {
			return err
		}
	}
	return nil
}

func (m *OutputManager) open(dev audio.Device, cfg audio.StreamConfig) error {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()

	if m.stream != nil {
		m.log.Info().Msg("Replacing output stream")
		m.closeLocked()
	}

	m.accumMu.Lock()
	m.accum = buffer.NewVectorSized(cfg.Channels(), cfg.FramesPerBuffer)
	m.accumMu.Unlock()

	stream, err := m.host.OpenOutput(dev, cfg, m.onOutput)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStreamOpenFailed, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: failed to start output stream: %w", ErrStreamOpenFailed, err)
	}

	m.stream = stream
	m.log.Info().Str("device", dev.Name).Str("config", cfg.String()).Msg("Output stream started")
	return nil
}

func (m *OutputManager) onOutput(out []float32) {
	m.accumMu.Lock()
	if m.accum == nil {
		m.accumMu.Unlock()
		clear(out)
		return
	}
	m.accum.InterlaceInto(out)
	m.accum.Reset()
	m.accumMu.Unlock()

	buffer.ApplyGain(out, m.gain())
}

// Stats returns the number of overdubs mixed and dropped
func (m *OutputManager) Stats() (mixed, dropped uint64) {
	return m.mixed.Load(), m.dropped.Load()
}

func (m *OutputManager) HasStream() bool {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	return m.stream != nil
}

// Close stops and releases the stream. Call after Run has returned.
func (m *OutputManager) Close() error {
	m.mailbox.Close()

	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	return m.closeLocked()
}

func (m *OutputManager) closeLocked() error {
	if m.stream == nil {
		return nil
	}
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	m.stream = nil
	return errors.Join(stopErr, closeErr)
}
