package user

import (
	"github.com/op/go-logging"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
	"github.com/tribe-health/streams/transport"
)

// User is the single-owner engine core: one identity, one transport,
// one State. Per spec.md §5 it carries no mutex — callers must not
// share a *User across goroutines without their own synchronization
// (the teacher's *Server/*provider make the identical assumption and
// rely on explicit worker boundaries instead).
type User struct {
	state     State
	transport transport.Transport
	log       *logging.Logger
}

// New constructs a User around identity (nil is legal: a User with no
// identity can still receive/observe, but every write operation that
// needs to sign will fail with ErrNoIdentity) and transport.
func New(identity id.Identity, tr transport.Transport, log *logging.Logger) *User {
	st := newState()
	st.identity = identity
	return &User{state: st, transport: tr, log: log}
}

// SetLean toggles the snapshot-cache eviction policy of spec.md §4.1.
func (u *User) SetLean(lean bool) { u.state.lean = lean }

func (u *User) Lean() bool { return u.state.lean }

// Identifier returns the user's own identifier, or the zero value and
// false if no identity is configured.
func (u *User) Identifier() (id.Identifier, bool) {
	if u.state.identity == nil {
		return id.Identifier{}, false
	}
	return u.state.identity.Identifier(), true
}

func (u *User) identity() (id.Identity, error) {
	if u.state.identity == nil {
		return nil, newErr(ErrNoIdentity, "user has no configured identity")
	}
	return u.state.identity, nil
}

// StreamAddress returns the stream address, if the user has joined one.
func (u *User) StreamAddress() (address.Address, bool) {
	if u.state.streamAddress == nil {
		return address.Address{}, false
	}
	return *u.state.streamAddress, true
}

func (u *User) streamAddress() (address.Address, error) {
	if u.state.streamAddress == nil {
		return address.Address{}, newErr(ErrNotJoined, "user has not joined a stream")
	}
	return *u.state.streamAddress, nil
}

// BaseBranch returns the stream's base branch topic.
func (u *User) BaseBranch() address.Topic { return u.state.baseBranch }

// Topics returns every known branch topic.
func (u *User) Topics() []address.Topic {
	out := make([]address.Topic, 0, len(u.state.topics))
	for t := range u.state.topics {
		out = append(out, t)
	}
	return out
}

// Cursors returns every (topic, perm, cursor) row known to the user.
func (u *User) Cursors() []CursorEntry { return u.state.cursorStore.Cursors() }

// Subscribers returns every identifier in the author's subscriber set.
func (u *User) Subscribers() []id.Identifier {
	out := make([]id.Identifier, 0, len(u.state.subscribers))
	for _, s := range u.state.subscribers {
		out = append(out, s)
	}
	return out
}

// AddPsk registers a PSK, returning true iff it was not already known.
func (u *User) AddPsk(psk id.Psk) bool {
	pskID := psk.DeriveID()
	_, existed := u.state.pskStore[pskID]
	u.state.pskStore[pskID] = psk
	return !existed
}

// RemovePsk forgets a PSK by id, returning true iff it was known.
func (u *User) RemovePsk(pskID id.PskID) bool {
	_, ok := u.state.pskStore[pskID]
	delete(u.state.pskStore, pskID)
	return ok
}

func (u *User) addSubscriber(i id.Identifier) bool {
	_, existed := u.state.subscribers[i.Key()]
	u.state.subscribers[i.Key()] = i
	return !existed
}

func (u *User) removeSubscriber(i id.Identifier) bool {
	_, ok := u.state.subscribers[i.Key()]
	delete(u.state.subscribers, i.Key())
	return ok
}

// permission returns the caller's own stored permission in topic.
func (u *User) permission(topic address.Topic) (id.Permissioned, bool) {
	identifier, ok := u.Identifier()
	if !ok {
		return id.Permissioned{}, false
	}
	return u.state.cursorStore.GetPermission(topic, identifier)
}

func (u *User) cursor(topic address.Topic) (uint64, bool) {
	identifier, ok := u.Identifier()
	if !ok {
		return 0, false
	}
	return u.state.cursorStore.GetCursor(topic, identifier)
}

func (u *User) nextCursor(topic address.Topic) (uint64, error) {
	c, ok := u.cursor(topic)
	if !ok {
		return 0, newErr(ErrMissingCursor, "user is not a publisher on "+string(topic))
	}
	return c + 1, nil
}

// topicByHash finds the known topic whose hash matches h, if any.
func (u *User) topicByHash(h address.TopicHash) (address.Topic, bool) {
	for t := range u.state.topics {
		if t.Hash() == h {
			return t, true
		}
	}
	return "", false
}

// shouldStoreCursor reports whether a keyload recipient warrants a
// fresh cursor-store entry: not read-only, and not already tracked
// under that exact permission.
func (u *User) shouldStoreCursor(topic address.Topic, subscriber id.Permissioned) bool {
	existing, ok := u.state.cursorStore.GetPermission(topic, subscriber.Identifier())
	trackedAndEqual := ok && existing.Equal(subscriber)
	return !subscriber.IsReadOnly() && !trackedAndEqual
}

// setLatestLink records the branch tip, creating the branch if needed.
func (u *User) setLatestLink(topic address.Topic, link address.MsgId) {
	u.state.cursorStore.SetLatestLink(topic, link)
}

func (u *User) getLatestLink(topic address.Topic) (address.MsgId, bool) {
	return u.state.cursorStore.GetLatestLink(topic)
}

// storeSpongos inserts a new snapshot and, in lean mode, evicts the
// predecessor's snapshot unless it is the stream announcement
// (spec.md §4.1, §9 Design Notes).
func (u *User) storeSpongos(msgAddr address.MsgId, snap sponge.State, linkedAddr address.MsgId) {
	isAnnouncement := u.state.streamAddress != nil && u.state.streamAddress.Relative == linkedAddr
	if u.state.lean && !isAnnouncement {
		delete(u.state.spongosStore, linkedAddr)
	}
	u.state.spongosStore[msgAddr] = snap
}

func (u *User) getSnapshot(msgAddr address.MsgId) (sponge.State, bool) {
	s, ok := u.state.spongosStore[msgAddr]
	return s, ok
}

func (u *User) logf(format string, args ...interface{}) {
	if u.log != nil {
		u.log.Debugf(format, args...)
	}
}
