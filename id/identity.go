package id

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

// Identity owns private keying material for one identifier: it can sign
// on behalf of that identifier and derive an X25519 shared secret for
// key-exchange wraps (keyload, subscription).
type Identity interface {
	Identifier() Identifier
	Sign(digest []byte) ([]byte, error)
	ExchangePublicKey() [32]byte
	ExchangeSharedSecret(peer [32]byte) ([32]byte, error)
}

// VerifySignature checks a signature produced by an Identity's Sign
// method against the given identifier and digest.
func VerifySignature(identifier Identifier, digest, sig []byte) bool {
	pk, ok := identifier.Ed25519PublicKey()
	if !ok {
		return false
	}
	return ed25519.Verify(pk, digest, sig)
}

// Ed25519Identity is the concrete Identity backing every author and
// subscriber in this engine (DID identities are not implemented, see
// SPEC_FULL.md Non-goals).
type Ed25519Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	xPriv [32]byte
	xPub  [32]byte
}

// NewEd25519Identity generates a fresh Ed25519 keypair and derives its
// X25519 key-exchange keypair via the birational Edwards<->Montgomery
// map, the same conversion the teacher's ecdh/eddsa packages perform
// between their own key types.
func NewEd25519Identity() (*Ed25519Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newEd25519Identity(pub, priv)
}

// NewEd25519IdentityFromSeed reconstructs an identity from a 32-byte
// Ed25519 seed (used by backup/restore and by cmd/streamsd's persisted
// identity).
func NewEd25519IdentityFromSeed(seed []byte) (*Ed25519Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("id: ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return newEd25519Identity(pub, priv)
}

func newEd25519Identity(pub ed25519.PublicKey, priv ed25519.PrivateKey) (*Ed25519Identity, error) {
	xPriv, err := ed25519PrivateToX25519(priv)
	if err != nil {
		return nil, err
	}
	xPub, err := ed25519PublicToX25519(pub)
	if err != nil {
		return nil, err
	}
	id := &Ed25519Identity{priv: priv, pub: pub}
	copy(id.xPriv[:], xPriv)
	copy(id.xPub[:], xPub)
	return id, nil
}

// Seed returns the 32-byte Ed25519 seed, for backup serialization.
func (e *Ed25519Identity) Seed() []byte {
	return append([]byte(nil), e.priv.Seed()...)
}

func (e *Ed25519Identity) Identifier() Identifier {
	return NewEd25519Identifier(e.pub)
}

func (e *Ed25519Identity) Sign(digest []byte) ([]byte, error) {
	return ed25519.Sign(e.priv, digest), nil
}

func (e *Ed25519Identity) ExchangePublicKey() [32]byte {
	return e.xPub
}

func (e *Ed25519Identity) ExchangeSharedSecret(peer [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(e.xPriv[:], peer[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], out)
	return shared, nil
}

// ExchangeKeyFromIdentifier derives the X25519 public key implied by an
// Ed25519 identifier, via the same Edwards<->Montgomery conversion used
// to derive a local Identity's own exchange key. Only Ed25519
// identifiers support this; PSK and DID identifiers do not carry a
// derivable exchange key.
func ExchangeKeyFromIdentifier(identifier Identifier) ([32]byte, error) {
	var out [32]byte
	pk, ok := identifier.Ed25519PublicKey()
	if !ok {
		return out, fmt.Errorf("id: identifier %s has no derivable exchange key", identifier)
	}
	x, err := ed25519PublicToX25519(pk)
	if err != nil {
		return out, err
	}
	copy(out[:], x)
	return out, nil
}

// ed25519PrivateToX25519 converts an Ed25519 private key to the
// Montgomery-form scalar used for X25519, following the standard
// "hash the seed, clamp" derivation (RFC 7748 / libsodium
// crypto_sign_ed25519_sk_to_curve25519).
func ed25519PrivateToX25519(priv ed25519.PrivateKey) ([]byte, error) {
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32], nil
}

// ed25519PublicToX25519 converts an Ed25519 public key (an Edwards
// point) to its Montgomery u-coordinate via filippo.io/edwards25519.
func ed25519PublicToX25519(pub ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("id: invalid ed25519 public key: %w", err)
	}
	return p.BytesMontgomery(), nil
}
