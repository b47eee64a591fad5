package concurrency

import (
	"context"
	"errors"
)

var (
	// ErrMailboxClosed is returned when trying to send/receive on a closed mailbox
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned when trying to send to a full mailbox (backpressure)
	ErrMailboxFull = errors.New("mailbox is full")
)

// Mailbox abstracts channel operations behind a message passing API
// Hides chan type and select statements from application code
type Mailbox interface {
	// Send sends a message to the mailbox without blocking
	// Returns ErrMailboxFull if mailbox is full (backpressure)
	// Returns ErrMailboxClosed if mailbox is closed
	Send(msg interface{}) error

	// Put sends a message to the mailbox, blocking while it is full
	// Blocks until space is available or ctx is cancelled
	// Returns ErrMailboxClosed if mailbox is closed
	Put(ctx context.Context, msg interface{}) error

	// Receive receives a message from the mailbox
	// Blocks until a message is available or ctx is cancelled
	// Messages buffered before Close are still delivered; once the buffer
	// is exhausted Receive returns ErrMailboxClosed
	Receive(ctx context.Context) (interface{}, error)

	// TryReceive attempts to receive a message without blocking
	// Returns (msg, true) if a message was available, (nil, false) if empty
	// Returns ErrMailboxClosed once closed and drained
	TryReceive() (interface{}, bool, error)

	// Close closes the mailbox
	// After closing, Send/Put return ErrMailboxClosed; receivers drain
	// the remaining buffered messages first
	Close()

	// Capacity returns the maximum capacity of the mailbox
	Capacity() int

	// Size returns the current number of messages in the mailbox
	Size() int

	// IsClosed returns true if the mailbox is closed
	IsClosed() bool
}
