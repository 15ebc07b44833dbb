package sponge

import (
	"encoding/binary"
	"fmt"
)

// RateBytes is the number of bytes of the 1600-bit Keccak state that are
// exposed to absorb/squeeze; the remaining 200-RateBytes bytes are the
// capacity and are only ever touched by the permutation itself. 136 bytes
// of rate (64 bytes of capacity, 512 bits) is the same rate used by
// SHA3-256/SHAKE256-class constructions.
const RateBytes = 136

// commitDomainSep is xored into the current position before the padding
// bit on Commit, analogous to the SHA3/SHAKE domain-separation byte.
const commitDomainSep = 0x1f

// State is the sponge's working state: a fixed-size value type so that an
// ordinary Go assignment is a full, independent copy — this is what lets
// the engine cache a "snapshot" per message id cheaply and correctly,
// without any Clone() method or explicit serialization.
type State struct {
	a   [25]uint64
	pos int
}

// New returns the canonical initial state (all-zero), the seed used by
// the very first message of a stream (the announcement).
func New() State {
	return State{}
}

func (s *State) permute() {
	keccakF1600(&s.a)
	s.pos = 0
}

// rateBytes serializes the rate portion of the permutation state to a
// byte slice in little-endian word order.
func rateBytes(a *[25]uint64) []byte {
	const words = RateBytes / 8
	buf := make([]byte, RateBytes)
	for i := 0; i < words; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], a[i])
	}
	return buf
}

func writeRateBytes(a *[25]uint64, buf []byte) {
	const words = RateBytes / 8
	for i := 0; i < words; i++ {
		a[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
}

// Absorb mixes public data into the state. Absorbed bytes do not leave
// the sponge; wrap/unwrap codecs separately append them to the wire
// buffer when the data is meant to be public.
func (s *State) Absorb(data []byte) {
	raw := rateBytes(&s.a)
	off := 0
	for off < len(data) {
		avail := RateBytes - s.pos
		n := avail
		if rem := len(data) - off; n > rem {
			n = rem
		}
		for i := 0; i < n; i++ {
			raw[s.pos+i] ^= data[off+i]
		}
		off += n
		s.pos += n
		if s.pos == RateBytes {
			writeRateBytes(&s.a, raw)
			s.permute()
			raw = rateBytes(&s.a)
		}
	}
	writeRateBytes(&s.a, raw)
}

// Squeeze extracts n bytes of keystream/digest from the current state,
// permuting as needed. Used both for the external authentication hash
// (pre-signature) and backup MACs.
func (s *State) Squeeze(n int) []byte {
	out := make([]byte, 0, n)
	raw := rateBytes(&s.a)
	for len(out) < n {
		avail := RateBytes - s.pos
		take := avail
		if need := n - len(out); take > need {
			take = need
		}
		out = append(out, raw[s.pos:s.pos+take]...)
		s.pos += take
		if s.pos == RateBytes {
			s.permute()
			raw = rateBytes(&s.a)
		}
	}
	return out
}

// duplex implements the encrypt/decrypt primitive shared by Encrypt and
// Decrypt: each output byte is the input XOR the current rate byte, and
// the ciphertext (not the plaintext) is written back into that exact
// slot before the next permutation. Both directions therefore leave the
// sponge in an identical state as long as they see the same ciphertext.
func (s *State) duplex(input []byte, decrypt bool) []byte {
	out := make([]byte, len(input))
	off := 0
	raw := rateBytes(&s.a)
	for off < len(input) {
		avail := RateBytes - s.pos
		n := avail
		if rem := len(input) - off; n > rem {
			n = rem
		}
		for i := 0; i < n; i++ {
			ks := raw[s.pos+i]
			in := input[off+i]
			var outByte, absorbByte byte
			if decrypt {
				outByte = in ^ ks
				absorbByte = in
			} else {
				outByte = in ^ ks
				absorbByte = outByte
			}
			out[off+i] = outByte
			raw[s.pos+i] = absorbByte
		}
		off += n
		s.pos += n
		if s.pos == RateBytes {
			writeRateBytes(&s.a, raw)
			s.permute()
			raw = rateBytes(&s.a)
		}
	}
	writeRateBytes(&s.a, raw)
	return out
}

// Encrypt masks plaintext into ciphertext, folding the ciphertext back
// into the sponge so a subsequent Commit/Squeeze authenticates it.
func (s *State) Encrypt(plaintext []byte) []byte { return s.duplex(plaintext, false) }

// Decrypt is the inverse of Encrypt: it unmasks ciphertext and folds the
// same ciphertext bytes back into the sponge, so a correctly-keyed
// decrypt reaches the same state as the original encrypt.
func (s *State) Decrypt(ciphertext []byte) []byte { return s.duplex(ciphertext, true) }

// MarshalSize is the length of State.Marshal's output.
const MarshalSize = 25*8 + 1

// Marshal serializes the full permutation state (for backup), not just
// the exposed rate — a restored backup must resume squeezing identical
// keystream to the one that produced it.
func (s State) Marshal() []byte {
	buf := make([]byte, MarshalSize)
	for i, w := range s.a {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	buf[25*8] = byte(s.pos)
	return buf
}

// UnmarshalState is the inverse of State.Marshal.
func UnmarshalState(b []byte) (State, error) {
	if len(b) != MarshalSize {
		return State{}, fmt.Errorf("sponge: state must be %d bytes, got %d", MarshalSize, len(b))
	}
	var s State
	for i := range s.a {
		s.a[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	s.pos = int(b[25*8])
	return s, nil
}

// Commit pads and permutes, sealing everything absorbed/masked so far
// behind a single permutation boundary. Squeeze calls after Commit
// produce the authenticator; Absorb/Mask calls after Commit start a new
// authenticated segment.
func (s *State) Commit() {
	raw := rateBytes(&s.a)
	raw[s.pos] ^= commitDomainSep
	raw[RateBytes-1] ^= 0x80
	writeRateBytes(&s.a, raw)
	s.permute()
}
