package core

import (
	"github.com/petems/mixtray/internal/mailbox"
	"github.com/petems/mixtray/internal/mixer"
	"github.com/petems/mixtray/internal/routing"
	"github.com/petems/mixtray/internal/stream"
)

// Message is handled by the core bus loop
type Message interface {
	coreMessage()
}

// GetOutputSystem asks for the current output sink
type GetOutputSystem struct {
	Reply chan<- stream.Sink
}

// GetChannel asks for a channel mailbox by registry index
type GetChannel struct {
	Index int
	Reply chan<- ChannelResult
}

// NewChannel registers and starts a channel
type NewChannel struct {
	Name   string
	Input  routing.IO
	Output routing.IO
	Reply  chan<- ChannelResult // optional
}

// NewBuffer announces that an input frame has been dispatched
type NewBuffer struct {
	Frame uint64
}

type ChannelResult struct {
	Index   int
	Mailbox *mailbox.Mailbox[mixer.Message]
	Err     error
}

func (GetOutputSystem) coreMessage() {}
func (GetChannel) coreMessage()      {}
func (NewChannel) coreMessage()      {}
func (NewBuffer) coreMessage()       {}
