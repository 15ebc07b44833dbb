// Package transport defines the pluggable, transport-agnostic contract
// the engine consumes to move opaque message bytes between a local
// address and the outside world (spec.md §6).
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/tribe-health/streams/address"
)

// ErrNoMessage is returned by RecvMessage when no message exists at the
// requested address.
var ErrNoMessage = errors.New("transport: no message at address")

// ErrAmbiguous is returned by RecvMessage when more than one message
// exists at the requested address.
var ErrAmbiguous = errors.New("transport: ambiguous address")

// ErrDuplicate is returned by SendMessage when a message already
// exists at the requested address.
var ErrDuplicate = errors.New("transport: duplicate address")

// Transport is the contract every concrete transport implements.
// Messages are opaque byte strings; the transport never parses them.
type Transport interface {
	// SendMessage stores msg at address, failing with ErrDuplicate if
	// the address is already occupied.
	SendMessage(ctx context.Context, addr address.Address, msg []byte) error
	// RecvMessages returns every message stored at address, in
	// storage order, or an empty slice if none exist.
	RecvMessages(ctx context.Context, addr address.Address) ([][]byte, error)
	// RecvMessage succeeds iff exactly one message exists at address.
	RecvMessage(ctx context.Context, addr address.Address) ([]byte, error)
}

// Shared wraps a single Transport so it can be used concurrently by
// multiple local Users. Every call is serialized through one mutex.
// There is no runtime borrow check: a call back into the wrapper from
// within a call already in flight on the same goroutine is not
// detected and deadlocks on the mutex.
type Shared struct {
	mu    sync.Mutex
	inner Transport
}

// NewShared wraps inner for concurrent use.
func NewShared(inner Transport) *Shared {
	return &Shared{inner: inner}
}

func (s *Shared) SendMessage(ctx context.Context, addr address.Address, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SendMessage(ctx, addr, msg)
}

func (s *Shared) RecvMessages(ctx context.Context, addr address.Address) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.RecvMessages(ctx, addr)
}

func (s *Shared) RecvMessage(ctx context.Context, addr address.Address) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.RecvMessage(ctx, addr)
}
