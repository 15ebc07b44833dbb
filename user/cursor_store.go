// Package user implements the per-user state machine: the aggregate
// state described by spec.md §3 (identity, cursors, sponge-snapshot
// cache, topic tree, subscribers, PSKs), the seven message-type
// handlers, message iteration, and backup/restore.
package user

import (
	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
)

// cursorEntry pairs a permission with its sequence cursor. Identifier
// is not itself comparable (the DID variant carries a slice), so
// InnerCursorStore keys its entries on id.Identifier.Key().
type cursorEntry struct {
	perm   id.Permissioned
	cursor uint64
}

// InnerCursorStore is the per-branch cursor table plus its tip link,
// grounded on original_source/streams/src/api/cursor_store.rs.
type InnerCursorStore struct {
	cursors       map[string]cursorEntry
	latestLink    address.MsgId
	hasLatestLink bool
}

func newInnerCursorStore() *InnerCursorStore {
	return &InnerCursorStore{cursors: make(map[string]cursorEntry)}
}

// CursorStore is a Topic → InnerCursorStore map: at most one entry per
// identifier per branch (spec.md §3 Invariants, §8 invariant 1).
type CursorStore struct {
	branches map[address.Topic]*InnerCursorStore
}

func NewCursorStore() *CursorStore {
	return &CursorStore{branches: make(map[address.Topic]*InnerCursorStore)}
}

// NewBranch inserts an empty branch, returning true iff it did not
// already exist.
func (s *CursorStore) NewBranch(topic address.Topic) bool {
	if _, ok := s.branches[topic]; ok {
		return false
	}
	s.branches[topic] = newInnerCursorStore()
	return true
}

// Remove drops the entry for id from every branch, returning true iff
// any removal occurred.
func (s *CursorStore) Remove(identifier id.Identifier) bool {
	key := identifier.Key()
	removed := false
	for _, branch := range s.branches {
		if _, ok := branch.cursors[key]; ok {
			delete(branch.cursors, key)
			removed = true
		}
	}
	return removed
}

// GetPermission returns the stored permission for identifier in topic.
func (s *CursorStore) GetPermission(topic address.Topic, identifier id.Identifier) (id.Permissioned, bool) {
	branch, ok := s.branches[topic]
	if !ok {
		return id.Permissioned{}, false
	}
	entry, ok := branch.cursors[identifier.Key()]
	if !ok {
		return id.Permissioned{}, false
	}
	return entry.perm, true
}

// GetCursor returns the stored cursor for identifier in topic.
func (s *CursorStore) GetCursor(topic address.Topic, identifier id.Identifier) (uint64, bool) {
	branch, ok := s.branches[topic]
	if !ok {
		return 0, false
	}
	entry, ok := branch.cursors[identifier.Key()]
	if !ok {
		return 0, false
	}
	return entry.cursor, true
}

// CursorEntry is one row of Cursors()/CursorsByTopic().
type CursorEntry struct {
	Topic  address.Topic
	Perm   id.Permissioned
	Cursor uint64
}

// Cursors returns every (topic, perm, cursor) row across all branches.
func (s *CursorStore) Cursors() []CursorEntry {
	var out []CursorEntry
	for topic, branch := range s.branches {
		for _, e := range branch.cursors {
			out = append(out, CursorEntry{Topic: topic, Perm: e.perm, Cursor: e.cursor})
		}
	}
	return out
}

// CursorsByTopic returns every (perm, cursor) row for one branch, and
// false if the branch itself is unknown.
func (s *CursorStore) CursorsByTopic(topic address.Topic) ([]CursorEntry, bool) {
	branch, ok := s.branches[topic]
	if !ok {
		return nil, false
	}
	out := make([]CursorEntry, 0, len(branch.cursors))
	for _, e := range branch.cursors {
		out = append(out, CursorEntry{Topic: topic, Perm: e.perm, Cursor: e.cursor})
	}
	return out, true
}

// InsertCursor inserts or rebinds an entry in topic. If an entry
// already exists for perm.Identifier() under a *different* permission
// (tag, duration), the old entry is removed first but its existing
// cursor value is retained — the cursor argument is dropped in that
// case. This is load-bearing for keyload demotion (spec.md §4.2, §9
// open question (c), §8 invariant 7) and must not be "simplified".
func (s *CursorStore) InsertCursor(topic address.Topic, perm id.Permissioned, cursor uint64) {
	branch, ok := s.branches[topic]
	if !ok {
		branch = newInnerCursorStore()
		s.branches[topic] = branch
	}

	if existing, ok := s.GetPermission(topic, perm.Identifier()); ok {
		if !existing.Equal(perm) {
			oldCursor, _ := s.GetCursor(topic, perm.Identifier())
			delete(branch.cursors, perm.Identifier().Key())
			cursor = oldCursor
		}
	}

	branch.cursors[perm.Identifier().Key()] = cursorEntry{perm: perm, cursor: cursor}
}

// SetLatestLink records the branch tip, creating the branch if absent.
func (s *CursorStore) SetLatestLink(topic address.Topic, latest address.MsgId) {
	branch, ok := s.branches[topic]
	if !ok {
		branch = newInnerCursorStore()
		s.branches[topic] = branch
	}
	branch.latestLink = latest
	branch.hasLatestLink = true
}

// GetLatestLink returns the branch tip, if any.
func (s *CursorStore) GetLatestLink(topic address.Topic) (address.MsgId, bool) {
	branch, ok := s.branches[topic]
	if !ok || !branch.hasLatestLink {
		return address.MsgId{}, false
	}
	return branch.latestLink, true
}

// HasBranch reports whether topic has ever been registered.
func (s *CursorStore) HasBranch(topic address.Topic) bool {
	_, ok := s.branches[topic]
	return ok
}
