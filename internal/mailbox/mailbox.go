// Package mailbox provides the bounded queues actors use to talk to each other.
//
// A Mailbox is closed by its receiver. Senders never panic on a closed
// mailbox; they get ErrClosed and decide what to do about it.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrClosed = errors.New("mailbox closed")
	ErrFull   = errors.New("mailbox full")
)

// DefaultSendTimeout bounds how long Send waits on a full mailbox
const DefaultSendTimeout = 10 * time.Millisecond

type Mailbox[T any] struct {
	ch      chan T
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
}

// New creates a mailbox holding up to capacity messages
func New[T any](capacity int, sendTimeout time.Duration) *Mailbox[T] {
	if capacity < 1 {
		capacity = 1
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Mailbox[T]{
		ch:      make(chan T, capacity),
		done:    make(chan struct{}),
		timeout: sendTimeout,
	}
}

// Send enqueues msg, waiting at most the send timeout for room
func (m *Mailbox[T]) Send(ctx context.Context, msg T) error {
	if m.Closed() {
		return ErrClosed
	}

	select {
	case m.ch <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case m.ch <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrFull
	}
}

// TrySend enqueues msg without waiting. Safe to call from audio callbacks.
func (m *Mailbox[T]) TrySend(msg T) error {
	if m.Closed() {
		return ErrClosed
	}
	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Recv blocks until a message arrives, the mailbox is closed or ctx ends
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	var zero T

	select {
	case msg := <-m.ch:
		return msg, nil
	default:
	}

	select {
	case msg := <-m.ch:
		return msg, nil
	case <-m.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close marks the mailbox closed. Pending messages are discarded.
func (m *Mailbox[T]) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *Mailbox[T]) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Done is closed when the mailbox is
func (m *Mailbox[T]) Done() <-chan struct{} {
	return m.done
}

func (m *Mailbox[T]) Len() int { return len(m.ch) }
func (m *Mailbox[T]) Cap() int { return cap(m.ch) }
