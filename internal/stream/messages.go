// Package stream owns the hardware streams and bridges their callbacks to
// the actor side of the mixer.
package stream

import (
	"errors"
	"time"

	"github.com/petems/mixtray/internal/audio"
	"github.com/petems/mixtray/internal/buffer"
	"github.com/petems/mixtray/internal/mailbox"
	"github.com/petems/mixtray/internal/routing"
)

var ErrStreamOpenFailed = errors.New("stream open failed")

// InputMessage is handled by an InputManager
type InputMessage interface {
	inputMessage()
}

// OutputMessage is handled by an OutputManager
type OutputMessage interface {
	outputMessage()
}

// Sink is where channels deliver processed audio
type Sink = *mailbox.Mailbox[OutputMessage]

// NewInputSource opens (or replaces) the input stream
type NewInputSource struct {
	Device audio.Device
	Config audio.StreamConfig
	Reply  chan<- error // optional
}

// NewOutputSink opens (or replaces) the output stream
type NewOutputSink struct {
	Device audio.Device
	Config audio.StreamConfig
	Reply  chan<- error // optional
}

// NewInput tells the output manager that its sources changed
type NewInput struct{}

// Overdub mixes samples into the outgoing buffer of Target's channels
type Overdub struct {
	Target  routing.Physical
	Samples []buffer.Sample
}

// Quit stops a manager's loop. The stream stays open until Close.
type Quit struct{}

func (NewInputSource) inputMessage() {}
func (Quit) inputMessage()           {}

func (NewOutputSink) outputMessage() {}
func (NewInput) outputMessage()      {}
func (Overdub) outputMessage()       {}
func (Quit) outputMessage()          {}

// Options sizes a manager's mailbox
type Options struct {
	MailboxSize int
	SendTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MailboxSize <= 0 {
		o.MailboxSize = 128
	}
	return o
}

func reply(ch chan<- error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
