package user

import (
	"context"
	"crypto/rand"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/message"
	"github.com/tribe-health/streams/sponge"
)

// SendResponse carries the address a message was stored at. The
// transport's SendMessage returns only an error, so nothing else from
// the store is recorded.
type SendResponse struct {
	Address address.Address
}

// probeDuplicate is the mandatory pre-send check of spec.md §7
// (Duplicate-address): the transport already holding a message at addr
// is fatal to the send.
func (u *User) probeDuplicate(ctx context.Context, addr address.Address) error {
	if _, err := u.transport.RecvMessage(ctx, addr); err == nil {
		return newErr(ErrDuplicateAddress, "a message already exists at "+addr.String())
	}
	return nil
}

// CreateStream wraps and sends the stream announcement, spec.md §4.4.1.
func (u *User) CreateStream(ctx context.Context, topic address.Topic) (SendResponse, error) {
	if u.state.streamAddress != nil {
		return SendResponse{}, newErr(ErrDuplicateAddress, "user is already registered to a stream")
	}
	author, err := u.identity()
	if err != nil {
		return SendResponse{}, err
	}
	identifier := author.Identifier()

	base := address.GenAppAddr(identifier, topic)
	rel := address.GenMsgId(base, identifier, topic, address.InitMessageNum)
	streamAddr := address.NewAddress(base, rel)

	hdf := message.NewHDF(message.TypeAnnouncement, address.AnnMessageNum, identifier, topic.Hash())
	wctx := sponge.NewWrapContext(sponge.New())
	message.WrapHDF(wctx, hdf)
	if err := message.WrapAnnouncement(wctx, author, topic); err != nil {
		return SendResponse{}, err
	}

	if err := u.probeDuplicate(ctx, streamAddr); err != nil {
		return SendResponse{}, err
	}
	if err := u.transport.SendMessage(ctx, streamAddr, wctx.Bytes()); err != nil {
		return SendResponse{}, wrapErr(ErrTransport, "sending announcement", err)
	}

	u.state.cursorStore.NewBranch(topic)
	u.state.topics[topic] = struct{}{}
	u.state.cursorStore.InsertCursor(topic, id.NewAdmin(identifier), address.InitMessageNum)
	u.state.spongosStore[streamAddr.Relative] = wctx.Snapshot()
	u.setLatestLink(topic, streamAddr.Relative)

	u.state.streamAddress = &streamAddr
	u.state.authorIdentifier = &identifier
	u.state.baseBranch = topic

	return SendResponse{Address: streamAddr}, nil
}

// NewBranch wraps and sends a branch announcement, spec.md §4.4.2.
func (u *User) NewBranch(ctx context.Context, fromTopic, toTopic address.Topic) (SendResponse, error) {
	streamAddr, err := u.streamAddress()
	if err != nil {
		return SendResponse{}, err
	}
	author, err := u.identity()
	if err != nil {
		return SendResponse{}, err
	}
	identifier := author.Identifier()

	perm, ok := u.permission(fromTopic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingCursor, "no cursor stored for "+string(fromTopic))
	}
	if perm.IsReadOnly() {
		return SendResponse{}, newErr(ErrPermissionDenied, "read-only permission on "+string(fromTopic))
	}
	linkTo, ok := u.getLatestLink(fromTopic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "no latest link in "+string(fromTopic))
	}
	cursor, err := u.nextCursor(fromTopic)
	if err != nil {
		return SendResponse{}, err
	}
	rel := address.GenMsgId(streamAddr.Base, identifier, fromTopic, cursor)
	addr := address.NewAddress(streamAddr.Base, rel)

	linkedSnap, ok := u.getSnapshot(linkTo)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "snapshot for "+linkTo.String()+" not found")
	}

	hdf := message.NewHDF(message.TypeBranchAnnouncement, cursor, identifier, fromTopic.Hash()).WithLink(linkTo)
	wctx := sponge.NewWrapContext(linkedSnap)
	message.WrapHDF(wctx, hdf)
	if err := message.WrapBranchAnnouncement(wctx, author, toTopic); err != nil {
		return SendResponse{}, err
	}

	if err := u.probeDuplicate(ctx, addr); err != nil {
		return SendResponse{}, err
	}
	if err := u.transport.SendMessage(ctx, addr, wctx.Bytes()); err != nil {
		return SendResponse{}, wrapErr(ErrTransport, "sending branch announcement", err)
	}

	u.state.cursorStore.NewBranch(toTopic)
	u.state.topics[toTopic] = struct{}{}
	u.state.cursorStore.InsertCursor(fromTopic, perm, cursor)
	u.state.spongosStore[rel] = wctx.Snapshot()

	prevEntries, _ := u.state.cursorStore.CursorsByTopic(fromTopic)
	for _, e := range prevEntries {
		u.state.cursorStore.InsertCursor(toTopic, e.Perm, address.InitMessageNum)
	}
	u.setLatestLink(toTopic, rel)

	return SendResponse{Address: addr}, nil
}

// Subscribe wraps and sends a subscription message, spec.md §4.4.3.
// Subscription messages are never stored in the snapshot cache and
// record no cursor (spec.md §9 open question (b)).
func (u *User) Subscribe(ctx context.Context) (SendResponse, error) {
	streamAddr, err := u.streamAddress()
	if err != nil {
		return SendResponse{}, err
	}
	subscriber, err := u.identity()
	if err != nil {
		return SendResponse{}, err
	}
	identifier := subscriber.Identifier()
	baseBranch := u.state.baseBranch

	linkTo := streamAddr.Relative
	rel := address.GenMsgId(streamAddr.Base, identifier, baseBranch, address.SubMessageNum)

	linkedSnap, ok := u.getSnapshot(linkTo)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "snapshot for "+linkTo.String()+" not found")
	}
	if u.state.authorIdentifier == nil {
		return SendResponse{}, newErr(ErrNotJoined, "author identifier not yet known")
	}
	authorXK, err := id.ExchangeKeyFromIdentifier(*u.state.authorIdentifier)
	if err != nil {
		return SendResponse{}, err
	}

	var unsubscribeKey [message.UnsubscribeKeySize]byte
	if _, err := rand.Read(unsubscribeKey[:]); err != nil {
		return SendResponse{}, err
	}

	hdf := message.NewHDF(message.TypeSubscription, address.SubMessageNum, identifier, baseBranch.Hash()).WithLink(linkTo)
	wctx := sponge.NewWrapContext(linkedSnap)
	message.WrapHDF(wctx, hdf)
	if err := message.WrapSubscription(wctx, subscriber, authorXK, unsubscribeKey); err != nil {
		return SendResponse{}, err
	}

	addr := address.NewAddress(streamAddr.Base, rel)
	if err := u.probeDuplicate(ctx, addr); err != nil {
		return SendResponse{}, err
	}
	if err := u.transport.SendMessage(ctx, addr, wctx.Bytes()); err != nil {
		return SendResponse{}, wrapErr(ErrTransport, "sending subscription", err)
	}

	return SendResponse{Address: addr}, nil
}

// Unsubscribe wraps and sends an unsubscription message, spec.md §4.4.4.
func (u *User) Unsubscribe(ctx context.Context) (SendResponse, error) {
	streamAddr, err := u.streamAddress()
	if err != nil {
		return SendResponse{}, err
	}
	subscriber, err := u.identity()
	if err != nil {
		return SendResponse{}, err
	}
	identifier := subscriber.Identifier()
	baseBranch := u.state.baseBranch

	linkTo, ok := u.getLatestLink(baseBranch)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "no latest link in "+string(baseBranch))
	}
	cursor, err := u.nextCursor(baseBranch)
	if err != nil {
		return SendResponse{}, err
	}
	rel := address.GenMsgId(streamAddr.Base, identifier, baseBranch, cursor)

	linkedSnap, ok := u.getSnapshot(linkTo)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "snapshot for "+linkTo.String()+" not found")
	}

	hdf := message.NewHDF(message.TypeUnsubscription, cursor, identifier, baseBranch.Hash()).WithLink(linkTo)
	wctx := sponge.NewWrapContext(linkedSnap)
	message.WrapHDF(wctx, hdf)
	if err := message.WrapUnsubscription(wctx, subscriber); err != nil {
		return SendResponse{}, err
	}

	addr := address.NewAddress(streamAddr.Base, rel)
	if err := u.probeDuplicate(ctx, addr); err != nil {
		return SendResponse{}, err
	}
	if err := u.transport.SendMessage(ctx, addr, wctx.Bytes()); err != nil {
		return SendResponse{}, wrapErr(ErrTransport, "sending unsubscription", err)
	}

	u.state.cursorStore.InsertCursor(baseBranch, id.NewRead(identifier), cursor)
	u.storeSpongos(rel, wctx.Snapshot(), linkTo)

	return SendResponse{Address: addr}, nil
}

// SendKeyload wraps and sends a keyload broadcast, spec.md §4.4.5.
// subscribers lists the permissioned identifier recipients; pskIDs
// lists recipients to wrap via a locally-known PSK.
func (u *User) SendKeyload(ctx context.Context, topic address.Topic, subscribers []id.Permissioned, pskIDs []id.PskID) (SendResponse, error) {
	streamAddr, err := u.streamAddress()
	if err != nil {
		return SendResponse{}, err
	}
	admin, err := u.identity()
	if err != nil {
		return SendResponse{}, err
	}
	identifier := admin.Identifier()

	perm, ok := u.permission(topic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingCursor, "no cursor stored for "+string(topic))
	}
	if perm.Level != id.Admin {
		return SendResponse{}, newErr(ErrPermissionDenied, "admin permission required on "+string(topic))
	}
	linkTo, ok := u.getLatestLink(topic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "no latest link in "+string(topic))
	}
	cursor, err := u.nextCursor(topic)
	if err != nil {
		return SendResponse{}, err
	}
	rel := address.GenMsgId(streamAddr.Base, identifier, topic, cursor)

	annSnap, ok := u.getSnapshot(streamAddr.Relative)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "announcement snapshot not found")
	}

	var idRecipients []message.KeyloadIdentifierRecipient
	for _, s := range subscribers {
		xk, err := id.ExchangeKeyFromIdentifier(s.Identifier())
		if err != nil {
			return SendResponse{}, err
		}
		idRecipients = append(idRecipients, message.KeyloadIdentifierRecipient{Perm: s, XK: xk})
	}
	var pskRecipients []message.KeyloadPskRecipient
	for _, pskID := range pskIDs {
		secret, ok := u.state.pskStore[pskID]
		if !ok {
			return SendResponse{}, newErr(ErrParse, "unknown psk "+pskID.String())
		}
		pskRecipients = append(pskRecipients, message.KeyloadPskRecipient{ID: pskID, Secret: secret})
	}

	hdf := message.NewHDF(message.TypeKeyload, cursor, identifier, topic.Hash()).WithLink(linkTo)
	wctx := sponge.NewWrapContext(annSnap)
	message.WrapHDF(wctx, hdf)
	if _, err := message.WrapKeyload(wctx, admin, idRecipients, pskRecipients); err != nil {
		return SendResponse{}, err
	}

	addr := address.NewAddress(streamAddr.Base, rel)
	if err := u.probeDuplicate(ctx, addr); err != nil {
		return SendResponse{}, err
	}
	if err := u.transport.SendMessage(ctx, addr, wctx.Bytes()); err != nil {
		return SendResponse{}, wrapErr(ErrTransport, "sending keyload", err)
	}

	for _, s := range subscribers {
		if u.shouldStoreCursor(topic, s) {
			u.state.cursorStore.InsertCursor(topic, s, address.InitMessageNum)
		}
	}
	u.state.cursorStore.InsertCursor(topic, id.NewAdmin(identifier), cursor)
	u.storeSpongos(rel, wctx.Snapshot(), linkTo)
	u.setLatestLink(topic, rel)

	return SendResponse{Address: addr}, nil
}

// SendKeyloadForAll sends a keyload granting every known subscriber
// Read (and the admin Admin), plus every known PSK.
func (u *User) SendKeyloadForAll(ctx context.Context, topic address.Topic) (SendResponse, error) {
	return u.sendKeyloadForAll(ctx, topic, false)
}

// SendKeyloadForAllReadWrite is SendKeyloadForAll but grants every
// subscriber ReadWrite(Perpetual) instead of Read.
func (u *User) SendKeyloadForAllReadWrite(ctx context.Context, topic address.Topic) (SendResponse, error) {
	return u.sendKeyloadForAll(ctx, topic, true)
}

func (u *User) sendKeyloadForAll(ctx context.Context, topic address.Topic, readWrite bool) (SendResponse, error) {
	perm, ok := u.permission(topic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingCursor, "no cursor stored for "+string(topic))
	}
	if perm.Level != id.Admin {
		return SendResponse{}, newErr(ErrPermissionDenied, "admin permission required on "+string(topic))
	}

	var pskIDs []id.PskID
	for pskID := range u.state.pskStore {
		pskIDs = append(pskIDs, pskID)
	}

	var subscribers []id.Permissioned
	for _, s := range u.state.subscribers {
		if s.Equal(perm.Identifier()) {
			subscribers = append(subscribers, id.NewAdmin(s))
			continue
		}
		if readWrite {
			subscribers = append(subscribers, id.NewReadWrite(s, id.PerpetualDuration()))
		} else {
			subscribers = append(subscribers, id.NewRead(s))
		}
	}

	return u.SendKeyload(ctx, topic, subscribers, pskIDs)
}

// SendSignedPacket wraps and sends a signed packet, spec.md §4.4.6.
func (u *User) SendSignedPacket(ctx context.Context, topic address.Topic, public, masked []byte) (SendResponse, error) {
	streamAddr, err := u.streamAddress()
	if err != nil {
		return SendResponse{}, err
	}
	publisher, err := u.identity()
	if err != nil {
		return SendResponse{}, err
	}
	identifier := publisher.Identifier()

	perm, ok := u.permission(topic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingCursor, "no cursor stored for "+string(topic))
	}
	if perm.IsReadOnly() {
		return SendResponse{}, newErr(ErrPermissionDenied, "read-only permission on "+string(topic))
	}
	linkTo, ok := u.getLatestLink(topic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "no latest link in "+string(topic))
	}
	cursor, err := u.nextCursor(topic)
	if err != nil {
		return SendResponse{}, err
	}
	rel := address.GenMsgId(streamAddr.Base, identifier, topic, cursor)

	linkedSnap, ok := u.getSnapshot(linkTo)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "snapshot for "+linkTo.String()+" not found")
	}

	hdf := message.NewHDF(message.TypeSignedPacket, cursor, identifier, topic.Hash()).WithLink(linkTo)
	wctx := sponge.NewWrapContext(linkedSnap)
	message.WrapHDF(wctx, hdf)
	if err := message.WrapSignedPacket(wctx, publisher, public, masked); err != nil {
		return SendResponse{}, err
	}

	addr := address.NewAddress(streamAddr.Base, rel)
	if err := u.probeDuplicate(ctx, addr); err != nil {
		return SendResponse{}, err
	}
	if err := u.transport.SendMessage(ctx, addr, wctx.Bytes()); err != nil {
		return SendResponse{}, wrapErr(ErrTransport, "sending signed packet", err)
	}

	u.state.cursorStore.InsertCursor(topic, perm, cursor)
	u.storeSpongos(rel, wctx.Snapshot(), linkTo)
	u.setLatestLink(topic, rel)

	return SendResponse{Address: addr}, nil
}

// SendTaggedPacket wraps and sends a tagged packet, spec.md §4.4.7.
func (u *User) SendTaggedPacket(ctx context.Context, topic address.Topic, public, masked []byte) (SendResponse, error) {
	streamAddr, err := u.streamAddress()
	if err != nil {
		return SendResponse{}, err
	}
	publisher, err := u.identity()
	if err != nil {
		return SendResponse{}, err
	}
	identifier := publisher.Identifier()

	perm, ok := u.permission(topic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingCursor, "no cursor stored for "+string(topic))
	}
	if perm.IsReadOnly() {
		return SendResponse{}, newErr(ErrPermissionDenied, "read-only permission on "+string(topic))
	}
	linkTo, ok := u.getLatestLink(topic)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "no latest link in "+string(topic))
	}
	cursor, err := u.nextCursor(topic)
	if err != nil {
		return SendResponse{}, err
	}
	rel := address.GenMsgId(streamAddr.Base, identifier, topic, cursor)

	linkedSnap, ok := u.getSnapshot(linkTo)
	if !ok {
		return SendResponse{}, newErr(ErrMissingPredecessor, "snapshot for "+linkTo.String()+" not found")
	}

	hdf := message.NewHDF(message.TypeTaggedPacket, cursor, identifier, topic.Hash()).WithLink(linkTo)
	wctx := sponge.NewWrapContext(linkedSnap)
	message.WrapHDF(wctx, hdf)
	message.WrapTaggedPacket(wctx, public, masked)

	addr := address.NewAddress(streamAddr.Base, rel)
	if err := u.probeDuplicate(ctx, addr); err != nil {
		return SendResponse{}, err
	}
	if err := u.transport.SendMessage(ctx, addr, wctx.Bytes()); err != nil {
		return SendResponse{}, wrapErr(ErrTransport, "sending tagged packet", err)
	}

	u.state.cursorStore.InsertCursor(topic, perm, cursor)
	u.storeSpongos(rel, wctx.Snapshot(), linkTo)
	u.setLatestLink(topic, rel)

	return SendResponse{Address: addr}, nil
}
