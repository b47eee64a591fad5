// Package payload models the transport of values between concurrency
// domains: move (ownership transfer through a Box handle) versus copy
// (deep clone). A Box whose contents were moved keeps a marker so any
// further use by the previous owner fails with ErrMoved.
package payload

import (
	"errors"
	"sync"
)

// ErrMoved is returned when a value is used after its ownership was moved
// to another domain.
var ErrMoved = errors.New("payload: value has been moved")

// Box is an explicit ownership handle around a non-shareable value.
// A domain that hands a Box to another domain under move semantics must
// not touch it again; the drained Box reports Moved.
type Box struct {
	mu    sync.Mutex
	value interface{}
	moved bool
}

// NewBox wraps v in a fresh ownership handle owned by the caller.
func NewBox(v interface{}) *Box {
	return &Box{value: v}
}

// Value borrows the boxed value without transferring ownership.
func (b *Box) Value() (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.moved {
		return nil, ErrMoved
	}
	return b.value, nil
}

// Take drains the box, transferring ownership of the value to the caller.
// The box is marked moved; every later Value/Take fails with ErrMoved.
func (b *Box) Take() (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.moved {
		return nil, ErrMoved
	}
	v := b.value
	b.value = nil
	b.moved = true
	return v, nil
}

// Moved reports whether the box's contents were transferred away.
func (b *Box) Moved() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moved
}
