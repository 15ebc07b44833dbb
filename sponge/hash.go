package sponge

// HashSize is the fixed output length used throughout the engine for
// topic hashes, addresses and message ids.
const HashSize = 32

// Hash absorbs each part in order into a fresh sponge, commits, and
// squeezes HashSize bytes. It underlies AppAddr, MsgId, TopicHash and
// PskId derivation — every place spec.md calls for a "sponge hash".
func Hash(parts ...[]byte) [HashSize]byte {
	s := New()
	for _, p := range parts {
		s.Absorb(p)
	}
	s.Commit()
	var out [HashSize]byte
	copy(out[:], s.Squeeze(HashSize))
	return out
}
