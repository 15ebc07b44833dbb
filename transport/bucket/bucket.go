// Package bucket implements an in-memory transport: a map from address
// to the list of messages stored there, guarded by a mutex. Grounded
// on original_source/iota-streams-app/src/transport/bucket.rs, adapted
// from an async HashMap<Link, Vec<Msg>> to a synchronous Go map with
// explicit locking (this engine's User is single-owner per spec.md §5,
// so the lock only matters when a Bucket is deliberately shared).
package bucket

import (
	"context"
	"sync"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/transport"
)

// Bucket is an in-memory Transport suitable for tests and single-process
// demonstrations.
type Bucket struct {
	mu     sync.Mutex
	byAddr map[address.Address][][]byte
}

// New returns an empty Bucket.
func New() *Bucket {
	return &Bucket{byAddr: make(map[address.Address][][]byte)}
}

func (b *Bucket) SendMessage(_ context.Context, addr address.Address, msg []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byAddr[addr]; ok {
		return transport.ErrDuplicate
	}
	stored := append([]byte(nil), msg...)
	b.byAddr[addr] = [][]byte{stored}
	return nil
}

func (b *Bucket) RecvMessages(_ context.Context, addr address.Address) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.byAddr[addr]
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = append([]byte(nil), m...)
	}
	return out, nil
}

func (b *Bucket) RecvMessage(ctx context.Context, addr address.Address) ([]byte, error) {
	msgs, err := b.RecvMessages(ctx, addr)
	if err != nil {
		return nil, err
	}
	switch len(msgs) {
	case 0:
		return nil, transport.ErrNoMessage
	case 1:
		return msgs[0], nil
	default:
		return nil, transport.ErrAmbiguous
	}
}

var _ transport.Transport = (*Bucket)(nil)
