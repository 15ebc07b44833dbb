package user

import (
	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// State is the aggregate user state of spec.md §3: optional own
// identity, optional stream address, optional author identifier, the
// cursor store, the PSK store, the subscriber set, the sponge snapshot
// cache, the base branch topic, the lean flag and the known-topics set.
type State struct {
	identity         id.Identity
	streamAddress    *address.Address
	authorIdentifier *id.Identifier

	cursorStore   *CursorStore
	pskStore      map[id.PskID]id.Psk
	subscribers   map[string]id.Identifier
	spongosStore  map[address.MsgId]sponge.State
	baseBranch    address.Topic
	lean          bool
	topics        map[address.Topic]struct{}
}

func newState() State {
	return State{
		cursorStore:  NewCursorStore(),
		pskStore:     make(map[id.PskID]id.Psk),
		subscribers:  make(map[string]id.Identifier),
		spongosStore: make(map[address.MsgId]sponge.State),
		topics:       make(map[address.Topic]struct{}),
	}
}
