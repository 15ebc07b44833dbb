package user

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
)

// TestInsertCursorRebindPreservesOldCursor pins down the teacher-source
// behavior documented as spec.md §9 open question (c): rebinding an
// identifier to a different permission level keeps the identifier's
// prior cursor value instead of adopting whatever cursor the rebind
// call was given.
func TestInsertCursorRebindPreservesOldCursor(t *testing.T) {
	require := require.New(t)
	topic := address.Topic("base")

	identity, err := id.NewEd25519Identity()
	require.NoError(err)
	identifier := identity.Identifier()

	store := NewCursorStore()
	store.NewBranch(topic)
	store.InsertCursor(topic, id.NewRead(identifier), 5)

	cursor, ok := store.GetCursor(topic, identifier)
	require.True(ok)
	require.EqualValues(5, cursor)

	// Rebind to ReadWrite, passing a cursor that should be ignored.
	store.InsertCursor(topic, id.NewReadWrite(identifier, id.PerpetualDuration()), 0)

	cursor, ok = store.GetCursor(topic, identifier)
	require.True(ok)
	require.EqualValues(5, cursor, "rebind must preserve the prior cursor value")

	perm, ok := store.GetPermission(topic, identifier)
	require.True(ok)
	require.Equal(id.ReadWrite, perm.Level)
}

// TestInsertCursorSamePermissionUsesGivenCursor checks the non-rebind
// path: inserting the identical permission again does adopt the new
// cursor value (this is the ordinary cursor-bump case).
func TestInsertCursorSamePermissionUsesGivenCursor(t *testing.T) {
	require := require.New(t)
	topic := address.Topic("base")

	identity, err := id.NewEd25519Identity()
	require.NoError(err)
	identifier := identity.Identifier()

	store := NewCursorStore()
	store.NewBranch(topic)
	store.InsertCursor(topic, id.NewAdmin(identifier), 1)
	store.InsertCursor(topic, id.NewAdmin(identifier), 2)

	cursor, ok := store.GetCursor(topic, identifier)
	require.True(ok)
	require.EqualValues(2, cursor)
}
