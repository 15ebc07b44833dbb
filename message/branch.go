package message

import (
	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// WrapBranchAnnouncement absorbs the new topic and appends the admin's
// signature. The HDF (carrying the source topic hash and linked
// address) must already be wrapped into ctx.
func WrapBranchAnnouncement(ctx *sponge.WrapContext, admin id.Identity, toTopic address.Topic) error {
	ctx.AbsorbSized([]byte(toTopic))
	ctx.Commit()
	digest := ctx.SqueezeNoWrite(digestSize)
	sig, err := admin.Sign(digest)
	if err != nil {
		return err
	}
	ctx.WritePlain(sig)
	return nil
}

// UnwrapBranchAnnouncement parses and verifies a branch announcement
// against the publisher identifier taken from the already-parsed HDF.
func UnwrapBranchAnnouncement(ctx *sponge.UnwrapContext, publisher id.Identifier) (address.Topic, error) {
	toTopicBytes, err := ctx.AbsorbSized()
	if err != nil {
		return "", err
	}
	ctx.Commit()
	digest := ctx.SqueezeDigest(digestSize)
	sig, err := ctx.ReadPlain(signatureSize)
	if err != nil {
		return "", err
	}
	if !id.VerifySignature(publisher, digest, sig) {
		return "", ErrSignatureInvalid
	}
	return address.Topic(toTopicBytes), nil
}
