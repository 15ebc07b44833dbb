package message

import (
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// UnsubscribeKeySize is the length of the random key a subscription
// carries; the author recovers it when unwrapping the subscription.
const UnsubscribeKeySize = 32

// WrapSubscription absorbs a freshly generated unsubscribe key, masked
// via X25519 to the author's exchange key, and appends the
// subscriber's signature. The caller generates unsubscribeKey and
// keeps it if needed; only an error is returned.
func WrapSubscription(ctx *sponge.WrapContext, subscriber id.Identity, authorXK [32]byte, unsubscribeKey [UnsubscribeKeySize]byte) error {
	shared, err := subscriber.ExchangeSharedSecret(authorXK)
	if err != nil {
		return err
	}
	ctx.AbsorbExternal(shared[:])
	ctx.Commit()
	ctx.Mask(unsubscribeKey[:])
	ctx.Commit()
	digest := ctx.SqueezeNoWrite(digestSize)
	sig, err := subscriber.Sign(digest)
	if err != nil {
		return err
	}
	ctx.WritePlain(sig)
	return nil
}

// UnwrapSubscription recovers the unsubscribe key using the author's
// identity and the subscriber identifier from the parsed HDF (whose
// X25519 exchange key is derived, not transmitted).
func UnwrapSubscription(ctx *sponge.UnwrapContext, author id.Identity, subscriber id.Identifier) ([UnsubscribeKeySize]byte, error) {
	var key [UnsubscribeKeySize]byte

	subscriberXK, err := id.ExchangeKeyFromIdentifier(subscriber)
	if err != nil {
		return key, err
	}
	shared, err := author.ExchangeSharedSecret(subscriberXK)
	if err != nil {
		return key, err
	}
	ctx.AbsorbExternal(shared[:])
	ctx.Commit()
	plain, err := ctx.Unmask(UnsubscribeKeySize)
	if err != nil {
		return key, err
	}
	copy(key[:], plain)
	ctx.Commit()
	digest := ctx.SqueezeDigest(digestSize)
	sig, err := ctx.ReadPlain(signatureSize)
	if err != nil {
		return key, err
	}
	if !id.VerifySignature(subscriber, digest, sig) {
		return key, ErrSignatureInvalid
	}
	return key, nil
}
