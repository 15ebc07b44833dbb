package message

import (
	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
)

// digestSize is the length of the external hash a signature is computed
// over — large enough that a forged digest collision is infeasible,
// independent of the Ed25519 signature's own 64 bytes.
const digestSize = 64

// signatureSize is the length of an Ed25519 signature.
const signatureSize = 64

// AnnouncementBody is the parsed content of an announcement message.
type AnnouncementBody struct {
	Author   id.Identifier
	AuthorXK [32]byte
	Flags    uint8
	Topic    address.Topic
}

// WrapAnnouncement absorbs the announcement body (author identity, its
// exchange key, flags, topic) and appends the author's signature over
// the squeezed external hash. The HDF must already have been wrapped
// into ctx by the caller.
func WrapAnnouncement(ctx *sponge.WrapContext, author id.Identity, topic address.Topic) error {
	ctx.AbsorbBytes(author.Identifier().WireEncode())
	xpk := author.ExchangePublicKey()
	ctx.AbsorbBytes(xpk[:])
	ctx.AbsorbUint8(0) // flags: reserved, no flag bits defined yet
	ctx.AbsorbSized([]byte(topic))
	ctx.Commit()
	digest := ctx.SqueezeNoWrite(digestSize)
	sig, err := author.Sign(digest)
	if err != nil {
		return err
	}
	ctx.WritePlain(sig)
	return nil
}

// UnwrapAnnouncement parses and verifies an announcement body. The HDF
// must already have been unwrapped from ctx by the caller.
func UnwrapAnnouncement(ctx *sponge.UnwrapContext) (AnnouncementBody, error) {
	var body AnnouncementBody

	author, err := absorbIdentifier(ctx)
	if err != nil {
		return body, err
	}
	body.Author = author

	xpkBytes, err := ctx.AbsorbBytes(32)
	if err != nil {
		return body, err
	}
	copy(body.AuthorXK[:], xpkBytes)

	flags, err := ctx.AbsorbUint8()
	if err != nil {
		return body, err
	}
	body.Flags = flags

	topicBytes, err := ctx.AbsorbSized()
	if err != nil {
		return body, err
	}
	body.Topic = address.Topic(topicBytes)

	ctx.Commit()
	digest := ctx.SqueezeDigest(digestSize)
	sig, err := ctx.ReadPlain(signatureSize)
	if err != nil {
		return body, err
	}
	if !id.VerifySignature(author, digest, sig) {
		return body, ErrSignatureInvalid
	}
	return body, nil
}
