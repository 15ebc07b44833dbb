package message

import (
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// macSize is the length of the tagged-packet authenticator (no
// signature is present, so the squeezed MAC is itself the wire-visible
// authentication tag).
const macSize = 32

// WrapSignedPacket absorbs the public payload, masks the private
// payload, and appends the publisher's signature.
func WrapSignedPacket(ctx *sponge.WrapContext, publisher id.Identity, public, masked []byte) error {
	ctx.AbsorbSized(public)
	ctx.MaskSized(masked)
	ctx.Commit()
	digest := ctx.SqueezeNoWrite(digestSize)
	sig, err := publisher.Sign(digest)
	if err != nil {
		return err
	}
	ctx.WritePlain(sig)
	return nil
}

// UnwrapSignedPacket parses and verifies a signed packet.
func UnwrapSignedPacket(ctx *sponge.UnwrapContext, publisher id.Identifier) (public, masked []byte, err error) {
	public, err = ctx.AbsorbSized()
	if err != nil {
		return nil, nil, err
	}
	masked, err = ctx.UnmaskSized()
	if err != nil {
		return nil, nil, err
	}
	ctx.Commit()
	digest := ctx.SqueezeDigest(digestSize)
	sig, err := ctx.ReadPlain(signatureSize)
	if err != nil {
		return nil, nil, err
	}
	if !id.VerifySignature(publisher, digest, sig) {
		return nil, nil, ErrSignatureInvalid
	}
	return public, masked, nil
}

// WrapTaggedPacket absorbs the public payload, masks the private
// payload, and appends a plain MAC — authenticity rests on possessing
// the branch sponge state (via keyload), not on a signature.
func WrapTaggedPacket(ctx *sponge.WrapContext, public, masked []byte) {
	ctx.AbsorbSized(public)
	ctx.MaskSized(masked)
	ctx.Commit()
	ctx.Squeeze(macSize)
}

// UnwrapTaggedPacket parses and authenticates a tagged packet.
func UnwrapTaggedPacket(ctx *sponge.UnwrapContext) (public, masked []byte, err error) {
	public, err = ctx.AbsorbSized()
	if err != nil {
		return nil, nil, err
	}
	masked, err = ctx.UnmaskSized()
	if err != nil {
		return nil, nil, err
	}
	ctx.Commit()
	if _, err := ctx.SqueezeVerify(macSize); err != nil {
		return nil, nil, err
	}
	return public, masked, nil
}
