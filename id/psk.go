package id

import "github.com/tribe-health/streams/sponge"

// Psk is a 32-byte pre-shared secret.
type Psk [32]byte

// PskID is the 32-byte id derived from a Psk by a fixed sponge hash.
type PskID [32]byte

// DeriveID computes the PskId for a Psk: a fixed sponge hash of the
// secret, domain-separated from general content hashing so a Psk and
// its id can never collide with an AppAddr/MsgId/TopicHash.
func (p Psk) DeriveID() PskID {
	return PskID(sponge.Hash([]byte("psk-id"), p[:]))
}

func (p PskID) String() string {
	return Identifier{tag: TagPskID, pskID: [32]byte(p)}.String()
}
