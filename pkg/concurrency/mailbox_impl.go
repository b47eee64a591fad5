package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
)

// boundedMailbox implements Mailbox using channels internally
// Hides chan type and select statements from public API
//
// The buffer channel itself is never closed; Close signals through a
// separate done channel instead. Blocked senders therefore can never race
// a close, and receivers drain whatever was buffered before the close.
type boundedMailbox struct {
	ch       chan interface{} // Hidden: internal buffer channel
	done     chan struct{}    // Closed by Close()
	once     sync.Once
	closed   int32 // Atomic flag
	capacity int
}

// NewBoundedMailbox creates a new bounded mailbox
// Hides channel creation from callers
func NewBoundedMailbox(capacity int) Mailbox {
	if capacity < 1 {
		capacity = 1
	}

	return &boundedMailbox{
		ch:       make(chan interface{}, capacity), // Hidden: channel creation
		done:     make(chan struct{}),
		capacity: capacity,
	}
}

// Send implements Mailbox interface
// Hides channel send and select statements
func (mb *boundedMailbox) Send(msg interface{}) error {
	if atomic.LoadInt32(&mb.closed) == 1 {
		return ErrMailboxClosed
	}

	// Try to send (non-blocking for backpressure)
	select {
	case mb.ch <- msg: // Hidden: channel send
		return nil
	case <-mb.done:
		return ErrMailboxClosed
	default:
		// Mailbox full - backpressure
		return ErrMailboxFull
	}
}

// Put implements Mailbox interface
// Blocking variant of Send: waits for buffer space rather than failing
func (mb *boundedMailbox) Put(ctx context.Context, msg interface{}) error {
	if atomic.LoadInt32(&mb.closed) == 1 {
		return ErrMailboxClosed
	}

	select {
	case mb.ch <- msg: // Hidden: channel send
		return nil
	case <-mb.done:
		return ErrMailboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Mailbox interface
// Hides channel receive and select statements
// Messages buffered before Close are drained before ErrMailboxClosed
func (mb *boundedMailbox) Receive(ctx context.Context) (interface{}, error) {
	// Fast path: anything already buffered wins, even after Close.
	select {
	case msg := <-mb.ch: // Hidden: channel receive
		return msg, nil
	default:
	}

	select {
	case msg := <-mb.ch:
		return msg, nil
	case <-mb.done:
		// Closed while waiting; take anything that slipped into the buffer.
		select {
		case msg := <-mb.ch:
			return msg, nil
		default:
			return nil, ErrMailboxClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryReceive implements Mailbox interface
// Hides channel receive and select statements
func (mb *boundedMailbox) TryReceive() (interface{}, bool, error) {
	select {
	case msg := <-mb.ch: // Hidden: channel receive
		return msg, true, nil
	default:
		if atomic.LoadInt32(&mb.closed) == 1 {
			return nil, false, ErrMailboxClosed
		}
		// Mailbox empty
		return nil, false, nil
	}
}

// Close implements Mailbox interface
// Idempotent; buffered messages remain receivable afterwards
func (mb *boundedMailbox) Close() {
	mb.once.Do(func() {
		atomic.StoreInt32(&mb.closed, 1)
		close(mb.done) // Hidden: channel close
	})
}

// Capacity implements Mailbox interface
func (mb *boundedMailbox) Capacity() int {
	return mb.capacity
}

// Size implements Mailbox interface
func (mb *boundedMailbox) Size() int {
	return len(mb.ch) // Hidden: channel length
}

// IsClosed implements Mailbox interface
func (mb *boundedMailbox) IsClosed() bool {
	return atomic.LoadInt32(&mb.closed) == 1
}
