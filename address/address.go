// Package address implements the content-derived addressing scheme:
// Topic/TopicHash, AppAddr, MsgId and Address, plus the reserved cursor
// constants from spec.md §3.
package address

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// Reserved cursor values, spec.md §3.
const (
	AnnMessageNum  uint64 = 0
	SubMessageNum  uint64 = 0
	InitMessageNum uint64 = 1
)

// Topic is a UTF-8 branch name.
type Topic string

// TopicHash is the fixed-length sponge hash of a topic's bytes, used on
// the wire in place of the topic text.
type TopicHash [sponge.HashSize]byte

// Hash derives the TopicHash for this topic.
func (t Topic) Hash() TopicHash {
	return TopicHash(sponge.Hash([]byte("topic"), []byte(t)))
}

func (h TopicHash) String() string { return hex.EncodeToString(h[:]) }

// AppAddr is sponge-hash(author-identifier ‖ base-topic).
type AppAddr [sponge.HashSize]byte

// GenAppAddr derives the stream's application address.
func GenAppAddr(author id.Identifier, baseTopic Topic) AppAddr {
	return AppAddr(sponge.Hash([]byte("appaddr"), author.WireEncode(), []byte(baseTopic)))
}

func (a AppAddr) String() string { return hex.EncodeToString(a[:]) }

// MsgId is sponge-hash(AppAddr ‖ publisher-identifier ‖ topic ‖ cursor).
type MsgId [sponge.HashSize]byte

// GenMsgId derives a message id deterministically: same
// (AppAddr, identifier, topic, cursor) always yields the same MsgId
// (spec.md §8 invariant 5).
func GenMsgId(base AppAddr, publisher id.Identifier, topic Topic, cursor uint64) MsgId {
	var cursorBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(cursorBuf[:], cursor)
	return MsgId(sponge.Hash([]byte("msgid"), base[:], publisher.WireEncode(), []byte(topic), cursorBuf[:n]))
}

func (m MsgId) String() string { return hex.EncodeToString(m[:]) }

// Address pairs an AppAddr with a relative MsgId, spec.md §3.
type Address struct {
	Base     AppAddr
	Relative MsgId
}

func NewAddress(base AppAddr, relative MsgId) Address {
	return Address{Base: base, Relative: relative}
}

func (a Address) String() string { return a.Base.String() + ":" + a.Relative.String() }

func (a Address) Equal(o Address) bool { return a.Base == o.Base && a.Relative == o.Relative }
