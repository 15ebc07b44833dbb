package sponge

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when an Unwrap command needs more bytes
// than remain in the input.
var ErrShortBuffer = errors.New("sponge: short buffer")

// ErrMACMismatch is returned when a squeezed authenticator does not
// match the bytes found on the wire.
var ErrMACMismatch = errors.New("sponge: mac mismatch")

// WrapContext drives a sponge.State forward while serializing every
// absorbed/masked field into a wire buffer. One WrapContext is used per
// message: it is seeded from the linked predecessor's snapshot (or the
// canonical initial state for an announcement), and its final State is
// the new snapshot stored in the cache.
type WrapContext struct {
	State State
	buf   []byte
}

// NewWrapContext seeds a wrap with the given predecessor state.
func NewWrapContext(seed State) *WrapContext {
	return &WrapContext{State: seed}
}

// AbsorbUint8 absorbs and serializes a single byte (e.g. the HDF type tag).
func (c *WrapContext) AbsorbUint8(v uint8) *WrapContext {
	c.State.Absorb([]byte{v})
	c.buf = append(c.buf, v)
	return c
}

// AbsorbUvarint absorbs and serializes an unsigned varint (sequence numbers).
func (c *WrapContext) AbsorbUvarint(v uint64) *WrapContext {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	c.State.Absorb(tmp[:n])
	c.buf = append(c.buf, tmp[:n]...)
	return c
}

// AbsorbBytes absorbs and serializes a fixed-length byte string whose
// length is implied by the field (hashes, public keys, signatures).
func (c *WrapContext) AbsorbBytes(b []byte) *WrapContext {
	c.State.Absorb(b)
	c.buf = append(c.buf, b...)
	return c
}

// AbsorbSized absorbs and serializes a length-prefixed byte string
// (topic text, public payloads).
func (c *WrapContext) AbsorbSized(b []byte) *WrapContext {
	c.AbsorbUvarint(uint64(len(b)))
	return c.AbsorbBytes(b)
}

// AbsorbExternal perturbs the sponge state with secret material (a PSK,
// a backup password key, an X25519 shared secret) that must never be
// written to the wire.
func (c *WrapContext) AbsorbExternal(b []byte) *WrapContext {
	c.State.Absorb(b)
	return c
}

// Mask encrypts b and serializes the ciphertext; the plaintext length
// must already be known to the reader (fixed-size secrets).
func (c *WrapContext) Mask(b []byte) *WrapContext {
	ct := c.State.Encrypt(b)
	c.buf = append(c.buf, ct...)
	return c
}

// MaskSized serializes a public length prefix followed by masked
// (encrypted) content of that length.
func (c *WrapContext) MaskSized(b []byte) *WrapContext {
	c.AbsorbUvarint(uint64(len(b)))
	return c.Mask(b)
}

// Commit seals the fields absorbed/masked so far.
func (c *WrapContext) Commit() *WrapContext {
	c.State.Commit()
	return c
}

// Squeeze extracts and serializes n bytes (a MAC, or the external hash
// that a signature step signs over).
func (c *WrapContext) Squeeze(n int) []byte {
	out := c.State.Squeeze(n)
	c.buf = append(c.buf, out...)
	return out
}

// SqueezeNoWrite extracts n bytes without writing them to the wire —
// used to derive the digest that a signature signs, since the signature
// itself (not the digest) is what gets serialized.
func (c *WrapContext) SqueezeNoWrite(n int) []byte {
	return c.State.Squeeze(n)
}

// WritePlain appends raw bytes to the wire buffer without absorbing
// them into the sponge — used for signatures, which are derived from a
// squeezed digest and would be circular (and pointless) to absorb back.
func (c *WrapContext) WritePlain(b []byte) *WrapContext {
	c.buf = append(c.buf, b...)
	return c
}

// Bytes returns the accumulated wire buffer.
func (c *WrapContext) Bytes() []byte { return c.buf }

// Snapshot returns the sponge state reached after the last command;
// callers store this (by value) in the snapshot cache.
func (c *WrapContext) Snapshot() State { return c.State }

// UnwrapContext is the read-side counterpart of WrapContext: it drives
// the same sponge State forward while consuming bytes from a wire
// buffer, returning an error the moment a field can't be parsed,
// decrypted or authenticated.
type UnwrapContext struct {
	State State
	in    []byte
	off   int
}

// NewUnwrapContext seeds an unwrap with the predecessor state and the
// wire bytes to parse.
func NewUnwrapContext(seed State, in []byte) *UnwrapContext {
	return &UnwrapContext{State: seed, in: in}
}

func (c *UnwrapContext) take(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.in) {
		return nil, ErrShortBuffer
	}
	b := c.in[c.off : c.off+n]
	c.off += n
	return b, nil
}

// AbsorbUint8 reads, absorbs and returns a single byte.
func (c *UnwrapContext) AbsorbUint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	c.State.Absorb(b)
	return b[0], nil
}

// AbsorbUvarint reads, absorbs and returns an unsigned varint.
func (c *UnwrapContext) AbsorbUvarint() (uint64, error) {
	v, n := binary.Uvarint(c.in[c.off:])
	if n <= 0 {
		return 0, ErrShortBuffer
	}
	b, err := c.take(n)
	if err != nil {
		return 0, err
	}
	c.State.Absorb(b)
	return v, nil
}

// AbsorbBytes reads, absorbs and returns n raw bytes.
func (c *UnwrapContext) AbsorbBytes(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	c.State.Absorb(out)
	return out, nil
}

// AbsorbSized reads a length prefix followed by that many raw bytes.
func (c *UnwrapContext) AbsorbSized() ([]byte, error) {
	n, err := c.AbsorbUvarint()
	if err != nil {
		return nil, err
	}
	return c.AbsorbBytes(int(n))
}

// AbsorbExternal perturbs the state with secret material supplied by
// the caller (never read from the wire).
func (c *UnwrapContext) AbsorbExternal(b []byte) {
	c.State.Absorb(b)
}

// Unmask reads and decrypts n bytes of masked content.
func (c *UnwrapContext) Unmask(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	return c.State.Decrypt(b), nil
}

// UnmaskSized reads a public length prefix followed by masked content.
func (c *UnwrapContext) UnmaskSized() ([]byte, error) {
	n, err := c.AbsorbUvarint()
	if err != nil {
		return nil, err
	}
	return c.Unmask(int(n))
}

// Commit seals the fields consumed so far.
func (c *UnwrapContext) Commit() {
	c.State.Commit()
}

// SqueezeVerify reads n bytes from the wire, computes n bytes from the
// current state, and fails with ErrMACMismatch if they differ.
func (c *UnwrapContext) SqueezeVerify(n int) ([]byte, error) {
	wire, err := c.take(n)
	if err != nil {
		return nil, err
	}
	computed := c.State.Squeeze(n)
	if !constantTimeEqual(wire, computed) {
		return nil, ErrMACMismatch
	}
	return computed, nil
}

// SqueezeDigest extracts n bytes from the state without reading
// anything from the wire — the digest a signature was computed over.
func (c *UnwrapContext) SqueezeDigest(n int) []byte {
	return c.State.Squeeze(n)
}

// ReadPlain reads n raw bytes without absorbing them (the counterpart
// of WritePlain — signatures).
func (c *UnwrapContext) ReadPlain(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Remaining returns the unconsumed tail of the wire buffer.
func (c *UnwrapContext) Remaining() []byte { return c.in[c.off:] }

// Snapshot returns the sponge state reached after the last command.
func (c *UnwrapContext) Snapshot() State { return c.State }

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
