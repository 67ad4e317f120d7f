// Package mailbox provides the two queue shapes used between the control
// plane and its consumers: a bounded FIFO whose producer waits for space, and
// a depth-1 slot where the newest value replaces an unread one.
package mailbox

import (
	"context"
	"sync"
)

// Mailbox is a bounded FIFO. Send never drops: a full mailbox makes the
// producer wait, which throttles it to the consumer's pace.
type Mailbox[T any] struct {
	ch chan T
}

// New creates a mailbox holding up to depth values (minimum 1).
func New[T any](depth int) *Mailbox[T] {
	if depth < 1 {
		depth = 1
	}
	return &Mailbox[T]{ch: make(chan T, depth)}
}

// Send waits for capacity or for ctx to end.
func (m *Mailbox[T]) Send(ctx context.Context, v T) error {
	select {
	case m.ch <- v:
		return nil
	default:
	}
	select {
	case m.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues v only if there is room.
func (m *Mailbox[T]) TrySend(v T) bool {
	select {
	case m.ch <- v:
		return true
	default:
		return false
	}
}

// Recv waits for a value or for ctx to end.
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-m.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryRecv returns a queued value if one is present.
func (m *Mailbox[T]) TryRecv() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for use in select statements.
func (m *Mailbox[T]) C() <-chan T { return m.ch }

func (m *Mailbox[T]) Len() int { return len(m.ch) }
func (m *Mailbox[T]) Cap() int { return cap(m.ch) }

// Slot is a depth-1 "latest wins" mailbox for configuration values.
type Slot[T any] struct {
	mu sync.Mutex // serialises Put's drain+send
	ch chan T
}

func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{ch: make(chan T, 1)}
}

// Put stores v, replacing any value not yet taken. It never blocks.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

// Take is a receive-or-nothing probe.
func (s *Slot[T]) Take() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for use in select statements.
func (s *Slot[T]) C() <-chan T { return s.ch }
