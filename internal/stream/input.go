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
	"github.com/rs/zerolog"
)

// Dispatcher receives every deinterlaced input frame. It is called on the
// driver's thread and must not block.
type Dispatcher func(frame uint64, v *buffer.Vector)

type InputManager struct {
	host     audio.Host
	mailbox  *mailbox.Mailbox[InputMessage]
	dispatch Dispatcher
	log      zerolog.Logger

	mu       sync.Mutex
	stream   audio.Stream
	channels int

	frames atomic.Uint64
}

func NewInputManager(host audio.Host, dispatch Dispatcher, opts Options, log zerolog.Logger) *InputManager {
	opts = opts.withDefaults()
	return &InputManager{
		host:     host,
		mailbox:  mailbox.New[InputMessage](opts.MailboxSize, opts.SendTimeout),
		dispatch: dispatch,
		log:      log.With().Str("component", "input").Logger(),
	}
}

func (m *InputManager) Mailbox() *mailbox.Mailbox[InputMessage] {
	return m.mailbox
}

// Run processes lifecycle messages until Quit, mailbox closure or ctx ends
func (m *InputManager) Run(ctx context.Context) error {
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
		case NewInputSource:
			err := m.open(msg.Device, msg.Config)
			if err != nil {
				m.log.Error().Err(err).Str("device", msg.Device.Name).Msg("Failed to open input stream")
			}
			reply(msg.Reply, err)
		case Quit:
			m.log.Debug().Msg("Input manager quitting")
			return nil
		}
	}
}

func (m *InputManager) open(dev audio.Device, cfg audio.StreamConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		m.log.Info().Msg("Replacing input stream")
		m.closeLocked()
	}

	channels := cfg.Channels()
	stream, err := m.host.OpenInput(dev, cfg, func(in []float32) {
		m.onInput(in, channels)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStreamOpenFailed, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: failed to start input stream: %w", ErrStreamOpenFailed, err)
	}

	m.stream = stream
	m.channels = channels
	m.log.Info().Str("device", dev.Name).Str("config", cfg.String()).Msg("Input stream started")
	return nil
}

func (m *InputManager) onInput(in []float32, channels int) {
	frame := m.frames.Add(1)
	if m.dispatch != nil {
		m.dispatch(frame, buffer.Deinterlace(in, channels))
	}
}

// Frames returns how many hardware buffers have been received
func (m *InputManager) Frames() uint64 {
	return m.frames.Load()
}

func (m *InputManager) HasStream() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Close stops and releases the stream. Call after Run has returned.
func (m *InputManager) Close() error {
	m.mailbox.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *InputManager) closeLocked() error {
	if m.stream == nil {
		return nil
	}
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	m.stream = nil
	return errors.Join(stopErr, closeErr)
}
