package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/transport/bucket"
)

// TestStreamLifecycleIntegration walks an author and a subscriber
// through create, subscribe, keyload and publish/receive over a shared
// in-memory transport, mirroring the shape (if not the mix-network
// particulars) of the teacher's own client/server integration test.
func TestStreamLifecycleIntegration(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	tr := bucket.New()

	authorIdentity, err := id.NewEd25519Identity()
	require.NoError(err, "author identity")
	subIdentity, err := id.NewEd25519Identity()
	require.NoError(err, "subscriber identity")

	author := New(authorIdentity, tr, nil)
	subscriber := New(subIdentity, tr, nil)

	topic := address.Topic("base")
	streamResp, err := author.CreateStream(ctx, topic)
	require.NoError(err, "CreateStream")

	// The subscriber learns the stream address out of band, then
	// processes the announcement like any other message.
	annMsg, err := subscriber.ReceiveMessage(ctx, streamResp.Address)
	require.NoError(err, "subscriber receiving announcement")
	require.NotNil(annMsg.Announcement)
	require.False(annMsg.Orphan)

	subResp, err := subscriber.Subscribe(ctx)
	require.NoError(err, "Subscribe")

	subMsg, err := author.ReceiveMessage(ctx, subResp.Address)
	require.NoError(err, "author receiving subscription")
	require.True(subMsg.Subscriber.Equal(subIdentity.Identifier()))
	require.Contains(author.Subscribers(), subIdentity.Identifier())

	keyloadResp, err := author.SendKeyloadForAll(ctx, topic)
	require.NoError(err, "SendKeyloadForAll")

	keyloadMsg, err := subscriber.ReceiveMessage(ctx, keyloadResp.Address)
	require.NoError(err, "subscriber receiving keyload")
	require.NotNil(keyloadMsg.Keyload)
	require.False(keyloadMsg.Orphan)

	// A read-only keyload recipient gets no cursor entry of its own, so
	// it cannot publish on the branch.
	_, ok := subscriber.permission(topic)
	require.False(ok, "read-only keyload recipient should have no cursor entry")
	_, err = subscriber.SendTaggedPacket(ctx, topic, []byte("denied"), nil)
	require.ErrorIs(err, &Error{Kind: ErrMissingCursor})

	public := []byte("announcement body")
	masked := []byte("secret payload")
	packetResp, err := author.SendTaggedPacket(ctx, topic, public, masked)
	require.NoError(err, "SendTaggedPacket")

	packetMsg, err := subscriber.ReceiveMessage(ctx, packetResp.Address)
	require.NoError(err, "subscriber receiving tagged packet")
	require.False(packetMsg.Orphan)
	require.Equal(public, packetMsg.Public)
	require.Equal(masked, packetMsg.Masked)
}

// TestSyncDiscoversPublishedMessages exercises FetchNextMessages end to
// end: a subscriber with a keyload cursor should discover a
// subsequently published packet without being told its address.
func TestSyncDiscoversPublishedMessages(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	tr := bucket.New()

	authorIdentity, err := id.NewEd25519Identity()
	require.NoError(err, "author identity")
	subIdentity, err := id.NewEd25519Identity()
	require.NoError(err, "subscriber identity")

	author := New(authorIdentity, tr, nil)
	subscriber := New(subIdentity, tr, nil)

	topic := address.Topic("base")
	streamResp, err := author.CreateStream(ctx, topic)
	require.NoError(err, "CreateStream")

	_, err = subscriber.ReceiveMessage(ctx, streamResp.Address)
	require.NoError(err, "subscriber receiving announcement")

	subResp, err := subscriber.Subscribe(ctx)
	require.NoError(err, "Subscribe")
	_, err = author.ReceiveMessage(ctx, subResp.Address)
	require.NoError(err, "author receiving subscription")

	keyloadResp, err := author.SendKeyloadForAllReadWrite(ctx, topic)
	require.NoError(err, "SendKeyloadForAllReadWrite")
	_, err = subscriber.ReceiveMessage(ctx, keyloadResp.Address)
	require.NoError(err, "subscriber receiving keyload")

	_, err = author.SendTaggedPacket(ctx, topic, []byte("a"), nil)
	require.NoError(err, "author publishing first packet")
	_, err = author.SendTaggedPacket(ctx, topic, []byte("b"), nil)
	require.NoError(err, "author publishing second packet")

	n, err := subscriber.Sync(ctx)
	require.NoError(err, "Sync")
	require.Equal(2, n, "should discover both published packets")

	n, err = subscriber.Sync(ctx)
	require.NoError(err, "Sync again")
	require.Equal(0, n, "nothing new to discover on second sync")
}
