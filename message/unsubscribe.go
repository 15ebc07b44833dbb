package message

import (
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// WrapUnsubscription has no body beyond the signed commit — authenticity
// rests entirely on the HDF (publisher, sequence, link) plus the signature.
func WrapUnsubscription(ctx *sponge.WrapContext, subscriber id.Identity) error {
	ctx.Commit()
	digest := ctx.SqueezeNoWrite(digestSize)
	sig, err := subscriber.Sign(digest)
	if err != nil {
		return err
	}
	ctx.WritePlain(sig)
	return nil
}

// UnwrapUnsubscription verifies the signature against the publisher
// identifier taken from the parsed HDF.
func UnwrapUnsubscription(ctx *sponge.UnwrapContext, publisher id.Identifier) error {
	ctx.Commit()
	digest := ctx.SqueezeDigest(digestSize)
	sig, err := ctx.ReadPlain(signatureSize)
	if err != nil {
		return err
	}
	if !id.VerifySignature(publisher, digest, sig) {
		return ErrSignatureInvalid
	}
	return nil
}
