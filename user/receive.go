package user

import (
	"context"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/message"
	"github.com/tribe-health/streams/sponge"
)

// Message is the parsed result of handling one wire message. Orphan
// messages carry only the header: their linked predecessor's snapshot
// was not yet available, so no body was parsed and no state mutated
// (spec.md §4.4/§7).
type Message struct {
	Address address.Address
	HDF     message.HDF
	Orphan  bool

	Announcement *message.AnnouncementBody
	BranchTopic  address.Topic
	Subscriber   id.Identifier
	UnsubKey     [message.UnsubscribeKeySize]byte
	Keyload      *message.KeyloadBody
	Public       []byte
	Masked       []byte
}

func orphanMessage(addr address.Address, hdf message.HDF) Message {
	return Message{Address: addr, HDF: hdf, Orphan: true}
}

// ReceiveMessage fetches the single message stored at addr and handles
// it, spec.md §6 public API surface.
func (u *User) ReceiveMessage(ctx context.Context, addr address.Address) (Message, error) {
	raw, err := u.transport.RecvMessage(ctx, addr)
	if err != nil {
		return Message{}, wrapErr(ErrTransport, "receiving "+addr.String(), err)
	}
	return u.handleMessage(addr, raw)
}

func (u *User) handleMessage(addr address.Address, raw []byte) (Message, error) {
	uctx := sponge.NewUnwrapContext(sponge.New(), raw)
	hdf, err := message.UnwrapHDF(uctx)
	if err != nil {
		return Message{}, wrapErr(ErrParse, "parsing header", err)
	}

	switch hdf.Type {
	case message.TypeAnnouncement:
		return u.handleAnnouncement(addr, hdf, raw)
	case message.TypeBranchAnnouncement:
		return u.handleBranchAnnouncement(addr, hdf, raw)
	case message.TypeSubscription:
		return u.handleSubscription(addr, hdf, raw)
	case message.TypeUnsubscription:
		return u.handleUnsubscription(addr, hdf, raw)
	case message.TypeKeyload:
		return u.handleKeyload(addr, hdf, raw)
	case message.TypeSignedPacket:
		return u.handleSignedPacket(addr, hdf, raw)
	case message.TypeTaggedPacket:
		return u.handleTaggedPacket(addr, hdf, raw)
	default:
		return Message{}, newErr(ErrParse, "unexpected message type")
	}
}

// reparseHeader re-runs UnwrapHDF on a fresh context seeded the same
// way handleMessage's initial parse was, so per-type handlers can
// resume body parsing against the correct seed snapshot without
// threading the already-advanced context back out of handleMessage.
func reparseHeader(raw []byte, seed sponge.State) (*sponge.UnwrapContext, message.HDF, error) {
	uctx := sponge.NewUnwrapContext(seed, raw)
	hdf, err := message.UnwrapHDF(uctx)
	return uctx, hdf, err
}

func (u *User) handleAnnouncement(addr address.Address, hdf message.HDF, raw []byte) (Message, error) {
	uctx, _, err := reparseHeader(raw, sponge.New())
	if err != nil {
		return Message{}, wrapErr(ErrParse, "re-parsing header", err)
	}
	body, err := message.UnwrapAnnouncement(uctx)
	if err != nil {
		return Message{}, err
	}

	u.state.cursorStore.NewBranch(body.Topic)
	u.state.topics[body.Topic] = struct{}{}
	u.state.cursorStore.InsertCursor(body.Topic, id.NewAdmin(hdf.Publisher), address.InitMessageNum)
	u.state.spongosStore[addr.Relative] = uctx.Snapshot()

	u.setLatestLink(body.Topic, addr.Relative)
	author := body.Author
	u.state.authorIdentifier = &author
	u.state.baseBranch = body.Topic
	u.state.streamAddress = &addr

	return Message{Address: addr, HDF: hdf, Announcement: &body}, nil
}

func (u *User) handleBranchAnnouncement(addr address.Address, hdf message.HDF, raw []byte) (Message, error) {
	prevTopic, ok := u.topicByHash(hdf.Topic)
	if !ok {
		return Message{}, newErr(ErrUnknownTopic, "no known topic matches header topic hash")
	}
	perm, ok := u.state.cursorStore.GetPermission(prevTopic, hdf.Publisher)
	if !ok {
		return Message{}, newErr(ErrPermissionDenied, "branch announcement from untracked publisher")
	}
	// Open question (a), spec.md §9: the cursor is bumped before the
	// unwrap is attempted, even if unwrap later fails for a non-orphan
	// reason — from the cursor-tracking perspective the message exists.
	u.state.cursorStore.InsertCursor(prevTopic, perm, hdf.Sequence)

	if hdf.Linked == nil {
		return Message{}, newErr(ErrParse, "branch announcement missing linked address")
	}
	linkedSnap, ok := u.getSnapshot(*hdf.Linked)
	if !ok {
		return orphanMessage(addr, hdf), nil
	}

	uctx, _, err := reparseHeader(raw, linkedSnap)
	if err != nil {
		return Message{}, wrapErr(ErrParse, "re-parsing header", err)
	}
	newTopic, err := message.UnwrapBranchAnnouncement(uctx, hdf.Publisher)
	if err != nil {
		return Message{}, err
	}

	u.storeSpongos(addr.Relative, uctx.Snapshot(), *hdf.Linked)
	u.state.cursorStore.NewBranch(newTopic)
	u.state.topics[newTopic] = struct{}{}

	prevEntries, _ := u.state.cursorStore.CursorsByTopic(prevTopic)
	for _, e := range prevEntries {
		u.state.cursorStore.InsertCursor(newTopic, e.Perm, address.InitMessageNum)
	}
	u.setLatestLink(newTopic, addr.Relative)

	return Message{Address: addr, HDF: hdf, BranchTopic: newTopic}, nil
}

func (u *User) handleSubscription(addr address.Address, hdf message.HDF, raw []byte) (Message, error) {
	if hdf.Linked == nil {
		return Message{}, newErr(ErrParse, "subscription missing linked address")
	}
	linkedSnap, ok := u.getSnapshot(*hdf.Linked)
	if !ok {
		return orphanMessage(addr, hdf), nil
	}
	author, err := u.identity()
	if err != nil {
		return Message{}, err
	}

	uctx, _, err := reparseHeader(raw, linkedSnap)
	if err != nil {
		return Message{}, wrapErr(ErrParse, "re-parsing header", err)
	}
	key, err := message.UnwrapSubscription(uctx, author, hdf.Publisher)
	if err != nil {
		return Message{}, err
	}

	// Subscription messages are never stored in the snapshot cache, to
	// preserve view consistency across stateless recoveries (spec.md
	// §9 open question (b)).
	u.addSubscriber(hdf.Publisher)

	return Message{Address: addr, HDF: hdf, Subscriber: hdf.Publisher, UnsubKey: key}, nil
}

func (u *User) handleUnsubscription(addr address.Address, hdf message.HDF, raw []byte) (Message, error) {
	if hdf.Linked == nil {
		return Message{}, newErr(ErrParse, "unsubscription missing linked address")
	}
	linkedSnap, ok := u.getSnapshot(*hdf.Linked)
	if !ok {
		return orphanMessage(addr, hdf), nil
	}

	uctx, _, err := reparseHeader(raw, linkedSnap)
	if err != nil {
		return Message{}, wrapErr(ErrParse, "re-parsing header", err)
	}
	if err := message.UnwrapUnsubscription(uctx, hdf.Publisher); err != nil {
		return Message{}, err
	}

	u.storeSpongos(addr.Relative, uctx.Snapshot(), *hdf.Linked)
	u.removeSubscriber(hdf.Publisher)

	return Message{Address: addr, HDF: hdf, Subscriber: hdf.Publisher}, nil
}

func (u *User) handleKeyload(addr address.Address, hdf message.HDF, raw []byte) (Message, error) {
	streamAddr, err := u.streamAddress()
	if err != nil {
		return Message{}, err
	}
	topic, ok := u.topicByHash(hdf.Topic)
	if !ok {
		return Message{}, newErr(ErrUnknownTopic, "no known topic matches header topic hash")
	}
	perm, ok := u.state.cursorStore.GetPermission(topic, hdf.Publisher)
	if !ok {
		return Message{}, newErr(ErrMissingCursor, "no cursor stored for "+string(topic))
	}
	if perm.Level != id.Admin {
		return Message{}, newErr(ErrPermissionDenied, "keyload from non-admin publisher")
	}
	// Cursor-tracking perspective: bump before attempting the unwrap.
	u.state.cursorStore.InsertCursor(topic, id.NewAdmin(hdf.Publisher), hdf.Sequence)

	annSnap, ok := u.getSnapshot(streamAddr.Relative)
	if !ok {
		return Message{}, newErr(ErrMissingPredecessor, "announcement snapshot not found")
	}
	if u.state.authorIdentifier == nil {
		return Message{}, newErr(ErrNotJoined, "author identifier not yet known")
	}

	uctx, _, err := reparseHeader(raw, annSnap)
	if err != nil {
		return Message{}, wrapErr(ErrParse, "re-parsing header", err)
	}
	self, haveSelf := u.Identifier()
	var identity id.Identity
	if haveSelf {
		identity, _ = u.identity()
	}
	body, err := message.UnwrapKeyload(uctx, *u.state.authorIdentifier, self, identity, u.state.pskStore)
	if err != nil {
		return Message{}, err
	}

	u.state.spongosStore[addr.Relative] = uctx.Snapshot()

	stored, _ := u.state.cursorStore.CursorsByTopic(topic)
	for _, e := range stored {
		if e.Perm.Identifier().Equal(*u.state.authorIdentifier) {
			continue
		}
		found := false
		for _, recipient := range body.Identifiers {
			if recipient.Identifier().Equal(e.Perm.Identifier()) {
				found = true
				break
			}
		}
		if !found {
			u.state.cursorStore.InsertCursor(topic, id.NewRead(e.Perm.Identifier()), e.Cursor)
		}
	}

	for _, recipient := range body.Identifiers {
		if u.shouldStoreCursor(topic, recipient) {
			u.state.cursorStore.InsertCursor(topic, recipient, address.InitMessageNum)
		}
	}

	u.setLatestLink(topic, addr.Relative)

	return Message{Address: addr, HDF: hdf, Keyload: &body}, nil
}

func (u *User) handleSignedPacket(addr address.Address, hdf message.HDF, raw []byte) (Message, error) {
	topic, ok := u.topicByHash(hdf.Topic)
	if !ok {
		return Message{}, newErr(ErrUnknownTopic, "no known topic matches header topic hash")
	}
	perm, ok := u.state.cursorStore.GetPermission(topic, hdf.Publisher)
	if !ok {
		return Message{}, newErr(ErrMissingCursor, "publisher has no stored cursor")
	}
	u.state.cursorStore.InsertCursor(topic, perm, hdf.Sequence)

	if hdf.Linked == nil {
		return Message{}, newErr(ErrParse, "signed packet missing linked address")
	}
	linkedSnap, ok := u.getSnapshot(*hdf.Linked)
	if !ok {
		return orphanMessage(addr, hdf), nil
	}

	uctx, _, err := reparseHeader(raw, linkedSnap)
	if err != nil {
		return Message{}, wrapErr(ErrParse, "re-parsing header", err)
	}
	public, masked, err := message.UnwrapSignedPacket(uctx, hdf.Publisher)
	if err != nil {
		return Message{}, err
	}

	u.storeSpongos(addr.Relative, uctx.Snapshot(), *hdf.Linked)
	u.setLatestLink(topic, addr.Relative)

	return Message{Address: addr, HDF: hdf, Public: public, Masked: masked}, nil
}

func (u *User) handleTaggedPacket(addr address.Address, hdf message.HDF, raw []byte) (Message, error) {
	topic, ok := u.topicByHash(hdf.Topic)
	if !ok {
		return Message{}, newErr(ErrUnknownTopic, "no known topic matches header topic hash")
	}
	perm, ok := u.state.cursorStore.GetPermission(topic, hdf.Publisher)
	if !ok {
		return Message{}, newErr(ErrMissingCursor, "publisher has no stored cursor")
	}
	u.state.cursorStore.InsertCursor(topic, perm, hdf.Sequence)

	if hdf.Linked == nil {
		return Message{}, newErr(ErrParse, "tagged packet missing linked address")
	}
	linkedSnap, ok := u.getSnapshot(*hdf.Linked)
	if !ok {
		return orphanMessage(addr, hdf), nil
	}

	uctx, _, err := reparseHeader(raw, linkedSnap)
	if err != nil {
		return Message{}, wrapErr(ErrParse, "re-parsing header", err)
	}
	public, masked, err := message.UnwrapTaggedPacket(uctx)
	if err != nil {
		return Message{}, err
	}

	u.storeSpongos(addr.Relative, uctx.Snapshot(), *hdf.Linked)
	u.setLatestLink(topic, addr.Relative)

	return Message{Address: addr, HDF: hdf, Public: public, Masked: masked}, nil
}
