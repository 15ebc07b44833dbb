package user

import (
	"context"
	"errors"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/transport"
)

// pendingCandidates computes the next candidate address for every
// known (topic, writer) pair: spec.md §4.5's
// "MsgId::gen(base, writer, topic, cursor+1)".
func (u *User) pendingCandidates() []address.Address {
	streamAddr, ok := u.StreamAddress()
	if !ok {
		return nil
	}
	entries := u.state.cursorStore.Cursors()
	out := make([]address.Address, 0, len(entries))
	for _, e := range entries {
		next := e.Cursor + 1
		rel := address.GenMsgId(streamAddr.Base, e.Perm.Identifier(), e.Topic, next)
		out = append(out, address.NewAddress(streamAddr.Base, rel))
	}
	return out
}

// FetchNextMessages repeatedly polls the transport for every pending
// candidate address until a full round discovers nothing new,
// returning every message handled along the way (spec.md §4.5, §6).
func (u *User) FetchNextMessages(ctx context.Context) ([]Message, error) {
	var out []Message
	for {
		advanced := false
		for _, addr := range u.pendingCandidates() {
			msg, err := u.ReceiveMessage(ctx, addr)
			if err != nil {
				if errors.Is(err, transport.ErrNoMessage) {
					continue
				}
				return out, err
			}
			out = append(out, msg)
			if !msg.Orphan {
				advanced = true
			}
		}
		if !advanced {
			return out, nil
		}
	}
}

// Sync is FetchNextMessages, returning only how many messages it
// returned (orphans included).
func (u *User) Sync(ctx context.Context) (int, error) {
	msgs, err := u.FetchNextMessages(ctx)
	return len(msgs), err
}
