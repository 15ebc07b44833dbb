// Package message implements the wire envelope (HDF/PCF) and the seven
// per-type content codecs that compose over the sponge: announcement,
// branch announcement, subscription, unsubscription, keyload, signed
// packet, tagged packet.
package message

import (
	"errors"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// Type is the HDF message-type tag, spec.md §4.3/§6.
type Type uint8

const (
	TypeAnnouncement Type = iota
	TypeBranchAnnouncement
	TypeSubscription
	TypeUnsubscription
	TypeKeyload
	TypeSignedPacket
	TypeTaggedPacket
)

func (t Type) String() string {
	switch t {
	case TypeAnnouncement:
		return "announcement"
	case TypeBranchAnnouncement:
		return "branch-announcement"
	case TypeSubscription:
		return "subscription"
	case TypeUnsubscription:
		return "unsubscription"
	case TypeKeyload:
		return "keyload"
	case TypeSignedPacket:
		return "signed-packet"
	case TypeTaggedPacket:
		return "tagged-packet"
	default:
		return "unknown"
	}
}

// ErrUnknownType is returned by UnwrapHDF for an unrecognized type byte,
// and by UnwrapKeyload for an unrecognized recipient kind.
var ErrUnknownType = errors.New("message: unknown message type")

// ErrSignatureInvalid is returned by any codec's Unwrap when a
// signature fails to verify.
var ErrSignatureInvalid = errors.New("message: signature invalid")

// HDF is the message header: type, sequence, publisher, topic hash, and
// an optional link to the predecessor this message was wrapped against.
type HDF struct {
	Type      Type
	Sequence  uint64
	Publisher id.Identifier
	Topic     address.TopicHash
	Linked    *address.MsgId
}

// NewHDF builds a header for a message with no linked predecessor (the
// announcement).
func NewHDF(typ Type, seq uint64, publisher id.Identifier, topicHash address.TopicHash) HDF {
	return HDF{Type: typ, Sequence: seq, Publisher: publisher, Topic: topicHash}
}

// WithLink attaches the relative MsgId of this message's predecessor.
func (h HDF) WithLink(link address.MsgId) HDF {
	h.Linked = &link
	return h
}

// WrapHDF serializes the header and absorbs it into ctx.
func WrapHDF(ctx *sponge.WrapContext, h HDF) {
	ctx.AbsorbUint8(uint8(h.Type))
	ctx.AbsorbUvarint(h.Sequence)
	ctx.AbsorbBytes(h.Publisher.WireEncode())
	ctx.AbsorbBytes(h.Topic[:])
	if h.Linked != nil {
		ctx.AbsorbUint8(1)
		ctx.AbsorbBytes(h.Linked[:])
	} else {
		ctx.AbsorbUint8(0)
	}
}

// UnwrapHDF is the inverse of WrapHDF.
func UnwrapHDF(ctx *sponge.UnwrapContext) (HDF, error) {
	var h HDF
	typByte, err := ctx.AbsorbUint8()
	if err != nil {
		return h, err
	}
	if typByte > uint8(TypeTaggedPacket) {
		return h, ErrUnknownType
	}
	h.Type = Type(typByte)

	seq, err := ctx.AbsorbUvarint()
	if err != nil {
		return h, err
	}
	h.Sequence = seq

	publisher, err := absorbIdentifier(ctx)
	if err != nil {
		return h, err
	}
	h.Publisher = publisher

	topicHashBytes, err := ctx.AbsorbBytes(len(h.Topic))
	if err != nil {
		return h, err
	}
	copy(h.Topic[:], topicHashBytes)

	present, err := ctx.AbsorbUint8()
	if err != nil {
		return h, err
	}
	if present == 1 {
		var linked address.MsgId
		linkedBytes, err := ctx.AbsorbBytes(len(linked))
		if err != nil {
			return h, err
		}
		copy(linked[:], linkedBytes)
		h.Linked = &linked
	}
	return h, nil
}

func absorbIdentifier(ctx *sponge.UnwrapContext) (id.Identifier, error) {
	identifier, n, err := id.ParseIdentifier(ctx.Remaining())
	if err != nil {
		return id.Identifier{}, err
	}
	if _, err := ctx.AbsorbBytes(n); err != nil {
		return id.Identifier{}, err
	}
	return identifier, nil
}

func wrapPermissioned(ctx *sponge.WrapContext, p id.Permissioned) {
	ctx.AbsorbUint8(uint8(p.Level))
	ctx.AbsorbBytes(p.ID.WireEncode())
	if p.Level == id.ReadWrite {
		ctx.AbsorbUint8(uint8(p.Duration.Kind))
		if p.Duration.Kind == id.UntilSequence {
			ctx.AbsorbUvarint(p.Duration.Sequence)
		}
	}
}

func unwrapPermissioned(ctx *sponge.UnwrapContext) (id.Permissioned, error) {
	var perm id.Permissioned
	levelByte, err := ctx.AbsorbUint8()
	if err != nil {
		return perm, err
	}
	perm.Level = id.PermissionLevel(levelByte)

	identifier, err := absorbIdentifier(ctx)
	if err != nil {
		return perm, err
	}
	perm.ID = identifier

	if perm.Level == id.ReadWrite {
		durByte, err := ctx.AbsorbUint8()
		if err != nil {
			return perm, err
		}
		perm.Duration.Kind = id.DurationKind(durByte)
		if perm.Duration.Kind == id.UntilSequence {
			seq, err := ctx.AbsorbUvarint()
			if err != nil {
				return perm, err
			}
			perm.Duration.Sequence = seq
		}
	}
	return perm, nil
}
