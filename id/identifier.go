// Package id implements the identity and permission primitives used to
// address publishers and subscribers: identifiers (Ed25519 keys, PSK
// ids, DID method ids), the signing/key-exchange Identity interface,
// and permissioned identifiers with their associated access level.
package id

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
)

// Tag values for the wire encoding of Identifier, per SPEC_FULL.md §3.
const (
	TagEd25519 uint8 = 0x00
	TagPskID   uint8 = 0x01
	TagDID     uint8 = 0x02
)

// Identifier is a tagged union of {Ed25519 public key, PSK id, DID
// method id}. The zero value is the default all-zero Ed25519 identifier.
type Identifier struct {
	tag    uint8
	ed     [ed25519.PublicKeySize]byte
	pskID  [32]byte
	didRaw []byte
}

// NewEd25519Identifier wraps an Ed25519 public key as an Identifier.
func NewEd25519Identifier(pk ed25519.PublicKey) Identifier {
	var id Identifier
	id.tag = TagEd25519
	copy(id.ed[:], pk)
	return id
}

// NewPskIdentifier wraps a PskId as an Identifier.
func NewPskIdentifier(pskID PskID) Identifier {
	var id Identifier
	id.tag = TagPskID
	id.pskID = pskID
	return id
}

// NewDIDIdentifier wraps a raw DID method id as an Identifier. No DID
// resolver is wired in this engine (see SPEC_FULL.md Non-goals); this
// constructor exists so the wire format round-trips.
func NewDIDIdentifier(methodID []byte) Identifier {
	var id Identifier
	id.tag = TagDID
	id.didRaw = append([]byte(nil), methodID...)
	return id
}

// Tag reports which union member this identifier holds.
func (i Identifier) Tag() uint8 { return i.tag }

// IsEd25519 reports whether this identifier is an Ed25519 public key.
func (i Identifier) IsEd25519() bool { return i.tag == TagEd25519 }

// IsPsk reports whether this identifier is a PSK id.
func (i Identifier) IsPsk() bool { return i.tag == TagPskID }

// Ed25519PublicKey returns the underlying key and true iff Tag() == TagEd25519.
func (i Identifier) Ed25519PublicKey() (ed25519.PublicKey, bool) {
	if i.tag != TagEd25519 {
		return nil, false
	}
	return ed25519.PublicKey(i.ed[:]), true
}

// PskID returns the underlying PskId and true iff Tag() == TagPskID.
func (i Identifier) PskID() (PskID, bool) {
	if i.tag != TagPskID {
		return PskID{}, false
	}
	return i.pskID, true
}

// Bytes returns the raw identifying payload (not including the tag),
// used for equality and map keys. AppAddr/MsgId derivation hashes
// WireEncode instead, which includes the tag.
func (i Identifier) Bytes() []byte {
	switch i.tag {
	case TagEd25519:
		return i.ed[:]
	case TagPskID:
		return i.pskID[:]
	case TagDID:
		return i.didRaw
	default:
		return nil
	}
}

// Equal reports whether two identifiers carry the same tag and payload.
func (i Identifier) Equal(o Identifier) bool {
	return i.tag == o.tag && bytes.Equal(i.Bytes(), o.Bytes())
}

// Key returns a comparable value suitable as a Go map key (Identifier
// itself contains a slice field for DID and so is not comparable).
func (i Identifier) Key() string {
	return string(append([]byte{i.tag}, i.Bytes()...))
}

func (i Identifier) String() string {
	switch i.tag {
	case TagEd25519:
		return fmt.Sprintf("ed25519:%x", i.ed[:8])
	case TagPskID:
		return fmt.Sprintf("psk:%x", i.pskID[:8])
	case TagDID:
		return fmt.Sprintf("did:%x", i.didRaw)
	default:
		return "identifier:unknown"
	}
}

// WireEncode serializes the tag + payload exactly as spec.md §6 requires.
func (i Identifier) WireEncode() []byte {
	switch i.tag {
	case TagEd25519:
		return append([]byte{TagEd25519}, i.ed[:]...)
	case TagPskID:
		return append([]byte{TagPskID}, i.pskID[:]...)
	case TagDID:
		var lenBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(lenBuf[:], uint64(len(i.didRaw)))
		out := append([]byte{TagDID}, lenBuf[:n]...)
		return append(out, i.didRaw...)
	default:
		return nil
	}
}

// ParseIdentifier is the inverse of WireEncode. An unrecognized tag is a
// parse failure, per spec.md §6 ("Unknown tag ⇒ parse failure").
func ParseIdentifier(b []byte) (Identifier, int, error) {
	if len(b) < 1 {
		return Identifier{}, 0, fmt.Errorf("id: empty identifier")
	}
	switch b[0] {
	case TagEd25519:
		if len(b) < 1+ed25519.PublicKeySize {
			return Identifier{}, 0, fmt.Errorf("id: truncated ed25519 identifier")
		}
		var id Identifier
		id.tag = TagEd25519
		copy(id.ed[:], b[1:1+ed25519.PublicKeySize])
		return id, 1 + ed25519.PublicKeySize, nil
	case TagPskID:
		if len(b) < 1+32 {
			return Identifier{}, 0, fmt.Errorf("id: truncated psk identifier")
		}
		var id Identifier
		id.tag = TagPskID
		copy(id.pskID[:], b[1:1+32])
		return id, 1 + 32, nil
	case TagDID:
		n, sz := binary.Uvarint(b[1:])
		if sz <= 0 {
			return Identifier{}, 0, fmt.Errorf("id: truncated did length")
		}
		start := 1 + sz
		end := start + int(n)
		if end > len(b) {
			return Identifier{}, 0, fmt.Errorf("id: truncated did payload")
		}
		return NewDIDIdentifier(b[start:end]), end, nil
	default:
		return Identifier{}, 0, fmt.Errorf("id: unknown identifier tag 0x%02x", b[0])
	}
}

// DefaultIdentifier is the zero-value Ed25519 identifier, used as a
// placeholder before a real one is parsed into it.
func DefaultIdentifier() Identifier { return Identifier{tag: TagEd25519} }
