package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/transport/bucket"
)

// TestBackupRestoreRoundTrip checks that a restored User can resume
// publishing against the same stream: its latest-link and snapshot
// state must survive the seal/unseal cycle intact.
func TestBackupRestoreRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	tr := bucket.New()

	authorIdentity, err := id.NewEd25519Identity()
	require.NoError(err)

	author := New(authorIdentity, tr, nil)
	topic := address.Topic("base")
	_, err = author.CreateStream(ctx, topic)
	require.NoError(err)

	pwd := []byte("correct horse battery staple")
	blob, err := author.Backup(pwd)
	require.NoError(err)

	restored, err := Restore(blob, pwd, tr, nil)
	require.NoError(err)

	ident, ok := restored.Identifier()
	require.True(ok)
	require.True(ident.Equal(authorIdentity.Identifier()))

	addr, ok := restored.StreamAddress()
	require.True(ok)
	origAddr, _ := author.StreamAddress()
	require.True(addr.Equal(origAddr))

	// A restored author must be able to keep publishing to the stream.
	_, err = restored.SendTaggedPacket(ctx, topic, []byte("after restore"), nil)
	require.NoError(err)
}

func TestRestoreWrongPasswordFails(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	tr := bucket.New()

	authorIdentity, err := id.NewEd25519Identity()
	require.NoError(err)

	author := New(authorIdentity, tr, nil)
	_, err = author.CreateStream(ctx, address.Topic("base"))
	require.NoError(err)

	blob, err := author.Backup([]byte("right password"))
	require.NoError(err)

	_, err = Restore(blob, []byte("wrong password"), tr, nil)
	require.Error(err)
	require.ErrorIs(err, &Error{Kind: ErrMACMismatch})
}
