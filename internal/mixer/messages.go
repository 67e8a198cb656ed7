package mixer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/petems/mixtray/internal/buffer"
	"github.com/petems/mixtray/internal/mailbox"
	"github.com/petems/mixtray/internal/routing"
	"github.com/petems/mixtray/internal/stream"
)

// Message is anything a Channel accepts in its mailbox
type Message interface {
	channelMessage()
}

type (
	Quit struct{}

	GetID   struct{ Reply chan<- uuid.UUID }
	GetName struct{ Reply chan<- string }
	SetName struct{ Name string }

	GetVolume struct{ Reply chan<- float32 }
	SetVolume struct{ Volume float32 }

	GetPanning struct{ Reply chan<- float32 }
	SetPanning struct{ Panning float32 }

	GetInput struct{ Reply chan<- routing.IO }
	SetInput struct{ Input routing.IO }

	GetOutput struct{ Reply chan<- routing.IO }
	SetOutput struct{ Output routing.IO }

	SetOutputSystem struct{ Sink stream.Sink }

	// NewBuffer carries a freshly deinterlaced hardware frame
	NewBuffer struct{ Vector *buffer.Vector }
)

func (Quit) channelMessage()            {}
func (GetID) channelMessage()           {}
func (GetName) channelMessage()         {}
func (SetName) channelMessage()         {}
func (GetVolume) channelMessage()       {}
func (SetVolume) channelMessage()       {}
func (GetPanning) channelMessage()      {}
func (SetPanning) channelMessage()      {}
func (GetInput) channelMessage()        {}
func (SetInput) channelMessage()        {}
func (GetOutput) channelMessage()       {}
func (SetOutput) channelMessage()       {}
func (SetOutputSystem) channelMessage() {}
func (NewBuffer) channelMessage()       {}

// Ask sends the message built around a one-shot reply channel and waits for
// the answer.
func Ask[T any](ctx context.Context, mb *mailbox.Mailbox[Message], build func(reply chan<- T) Message) (T, error) {
	var zero T
	reply := make(chan T, 1)

	if err := mb.Send(ctx, build(reply)); err != nil {
		return zero, fmt.Errorf("send: %w", err)
	}

	select {
	case v := <-reply:
		return v, nil
	case <-mb.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, mailbox.ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
