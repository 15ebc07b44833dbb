package message

import (
	"crypto/rand"

	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// KeyloadKeySize is the length of the random branch encryption key a
// keyload distributes.
const KeyloadKeySize = 32

// keyload recipient kinds, the per-entry tag distinguishing an
// exchange-key wrap from a PSK-absorbed wrap (spec.md §4.4.5).
const (
	recipientKindIdentifier uint8 = 0
	recipientKindPsk        uint8 = 1
)

// KeyloadIdentifierRecipient is a permissioned identifier recipient
// together with the X25519 exchange key the admin must wrap the branch
// key to. For Ed25519 identifiers this key is derived automatically by
// the caller via id.ExchangeKeyFromIdentifier.
type KeyloadIdentifierRecipient struct {
	Perm id.Permissioned
	XK   [32]byte
}

// KeyloadPskRecipient is a raw PSK-id recipient together with the
// locally-known secret.
type KeyloadPskRecipient struct {
	ID     id.PskID
	Secret id.Psk
}

// WrapKeyload absorbs the recipient list and, for each recipient, forks
// the sponge state to compute that recipient's wrapped copy of the
// random branch key without leaking other recipients' shared secrets
// into the shared (main) thread — only the resulting ciphertext, which
// is public, is absorbed back into ctx. ctx is seeded from the stream
// announcement's snapshot, and the HDF (carrying the target branch
// topic hash and a link to that branch's latest message) must already
// be wrapped into it.
func WrapKeyload(ctx *sponge.WrapContext, admin id.Identity, identifiers []KeyloadIdentifierRecipient, psks []KeyloadPskRecipient) ([KeyloadKeySize]byte, error) {
	var key [KeyloadKeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}

	ctx.AbsorbUvarint(uint64(len(identifiers) + len(psks)))

	for _, r := range identifiers {
		ctx.AbsorbUint8(recipientKindIdentifier)
		wrapPermissioned(ctx, r.Perm)

		fork := ctx.Snapshot()
		shared, err := admin.ExchangeSharedSecret(r.XK)
		if err != nil {
			return key, err
		}
		fork.Absorb(shared[:])
		fork.Commit()
		ciphertext := fork.Encrypt(key[:])
		ctx.AbsorbBytes(ciphertext)
	}

	for _, r := range psks {
		ctx.AbsorbUint8(recipientKindPsk)
		ctx.AbsorbBytes(r.ID[:])

		fork := ctx.Snapshot()
		fork.Absorb(r.Secret[:])
		fork.Commit()
		ciphertext := fork.Encrypt(key[:])
		ctx.AbsorbBytes(ciphertext)
	}

	ctx.Commit()
	digest := ctx.SqueezeNoWrite(digestSize)
	sig, err := admin.Sign(digest)
	if err != nil {
		return key, err
	}
	ctx.WritePlain(sig)
	return key, nil
}

// KeyloadBody is the parsed result of a keyload: every recipient's
// public metadata (for cursor-store bookkeeping), plus the recovered
// branch key when the local user was among the recipients.
type KeyloadBody struct {
	Identifiers []id.Permissioned
	PskIDs      []id.PskID
	Key         [KeyloadKeySize]byte
	KeyFound    bool
}

// UnwrapKeyload parses a keyload body, trying to recover the branch key
// using `self` (the local identifier, if it appears among the
// identifier recipients) and any locally-known PSKs. `identity` is the
// local Identity used for the X25519 branch, required only if `self`
// is an Ed25519 identifier. The HDF's publisher (the admin) must
// already have been verified to hold Admin permission by the caller.
func UnwrapKeyload(ctx *sponge.UnwrapContext, admin id.Identifier, self id.Identifier, identity id.Identity, knownPsks map[id.PskID]id.Psk) (KeyloadBody, error) {
	var body KeyloadBody

	count, err := ctx.AbsorbUvarint()
	if err != nil {
		return body, err
	}

	for i := uint64(0); i < count; i++ {
		kind, err := ctx.AbsorbUint8()
		if err != nil {
			return body, err
		}
		switch kind {
		case recipientKindIdentifier:
			perm, err := unwrapPermissioned(ctx)
			if err != nil {
				return body, err
			}
			body.Identifiers = append(body.Identifiers, perm)

			fork := ctx.Snapshot()
			ciphertext, err := ctx.AbsorbBytes(KeyloadKeySize)
			if err != nil {
				return body, err
			}
			if !body.KeyFound && identity != nil && perm.ID.Equal(self) {
				peerXK, err := id.ExchangeKeyFromIdentifier(admin)
				if err != nil {
					return body, err
				}
				shared, err := identity.ExchangeSharedSecret(peerXK)
				if err != nil {
					return body, err
				}
				fork.Absorb(shared[:])
				fork.Commit()
				plain := fork.Decrypt(ciphertext)
				copy(body.Key[:], plain)
				body.KeyFound = true
			}
		case recipientKindPsk:
			idBytes, err := ctx.AbsorbBytes(32)
			if err != nil {
				return body, err
			}
			var pskID id.PskID
			copy(pskID[:], idBytes)
			body.PskIDs = append(body.PskIDs, pskID)

			fork := ctx.Snapshot()
			ciphertext, err := ctx.AbsorbBytes(KeyloadKeySize)
			if err != nil {
				return body, err
			}
			if secret, ok := knownPsks[pskID]; !body.KeyFound && ok {
				fork.Absorb(secret[:])
				fork.Commit()
				plain := fork.Decrypt(ciphertext)
				copy(body.Key[:], plain)
				body.KeyFound = true
			}
		default:
			return body, ErrUnknownType
		}
	}

	ctx.Commit()
	digest := ctx.SqueezeDigest(digestSize)
	sig, err := ctx.ReadPlain(signatureSize)
	if err != nil {
		return body, err
	}
	if !id.VerifySignature(admin, digest, sig) {
		return body, ErrSignatureInvalid
	}
	return body, nil
}
