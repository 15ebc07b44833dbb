package user

import (
	"github.com/op/go-logging"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/id"
	"github.com/tribe-health/streams/sponge"
	"github.com/tribe-health/streams/transport"
)

// backupKeySize is the derived key length absorbed as external secret
// material before sealing a backup, spec.md §4.6/§6.
const backupKeySize = 32

// macSize is the length of each of the two backup authenticators (an
// early one right after the key is absorbed, for a fast wrong-password
// rejection, and a final one covering the fully serialized state).
const macSize = 32

func deriveBackupKey(pwd []byte) [backupKeySize]byte {
	return sponge.Hash([]byte("backup-key"), pwd)
}

// Backup derives a key from pwd, seals the user's full state behind it,
// and returns the resulting wire bytes, spec.md §4.6.
func (u *User) Backup(pwd []byte) ([]byte, error) {
	key := deriveBackupKey(pwd)

	wctx := sponge.NewWrapContext(sponge.New())
	wctx.AbsorbExternal(key[:])
	wctx.Commit()
	wctx.Squeeze(macSize)

	if err := u.wrapState(wctx); err != nil {
		return nil, err
	}

	wctx.Commit()
	wctx.Squeeze(macSize)

	return wctx.Bytes(), nil
}

// Restore rebuilds a User from a Backup blob, the given password, and a
// transport to attach. A wrong password (or corrupted blob) fails with
// ErrMACMismatch.
func Restore(data, pwd []byte, tr transport.Transport, log *logging.Logger) (*User, error) {
	key := deriveBackupKey(pwd)

	uctx := sponge.NewUnwrapContext(sponge.New(), data)
	uctx.AbsorbExternal(key[:])
	uctx.Commit()
	if _, err := uctx.SqueezeVerify(macSize); err != nil {
		return nil, wrapErr(ErrMACMismatch, "backup key check failed", err)
	}

	u := &User{state: newState(), transport: tr, log: log}
	if err := u.unwrapState(uctx); err != nil {
		return nil, err
	}

	uctx.Commit()
	if _, err := uctx.SqueezeVerify(macSize); err != nil {
		return nil, wrapErr(ErrMACMismatch, "backup content check failed", err)
	}

	return u, nil
}

func (u *User) wrapState(ctx *sponge.WrapContext) error {
	if seeder, ok := u.state.identity.(interface{ Seed() []byte }); u.state.identity != nil && ok {
		ctx.AbsorbUint8(1)
		ctx.MaskSized(seeder.Seed())
	} else {
		ctx.AbsorbUint8(0)
	}

	if u.state.streamAddress == nil {
		ctx.AbsorbUint8(0)
	} else {
		ctx.AbsorbUint8(1)
		ctx.Mask(u.state.streamAddress.Base[:])
		ctx.Mask(u.state.streamAddress.Relative[:])
	}

	if u.state.authorIdentifier == nil {
		ctx.AbsorbUint8(0)
	} else {
		ctx.AbsorbUint8(1)
		ctx.MaskSized(u.state.authorIdentifier.WireEncode())
	}

	ctx.MaskSized([]byte(u.state.baseBranch))

	ctx.AbsorbUvarint(uint64(len(u.state.spongosStore)))
	for msgID, snap := range u.state.spongosStore {
		ctx.Mask(msgID[:])
		ctx.Mask(snap.Marshal())
	}

	topics := u.Topics()
	ctx.AbsorbUvarint(uint64(len(topics)))
	for _, topic := range topics {
		ctx.MaskSized([]byte(topic))
		link, _ := u.getLatestLink(topic)
		ctx.Mask(link[:])
		entries, _ := u.state.cursorStore.CursorsByTopic(topic)
		ctx.AbsorbUvarint(uint64(len(entries)))
		for _, e := range entries {
			maskPermissioned(ctx, e.Perm)
			ctx.AbsorbUvarint(e.Cursor)
		}
	}

	subs := u.Subscribers()
	ctx.AbsorbUvarint(uint64(len(subs)))
	for _, s := range subs {
		ctx.MaskSized(s.WireEncode())
	}

	ctx.AbsorbUvarint(uint64(len(u.state.pskStore)))
	for pskID, psk := range u.state.pskStore {
		ctx.Mask(pskID[:])
		ctx.Mask(psk[:])
	}

	if u.state.lean {
		ctx.AbsorbUint8(1)
	} else {
		ctx.AbsorbUint8(0)
	}
	return nil
}

func (u *User) unwrapState(ctx *sponge.UnwrapContext) error {
	hasIdentity, err := ctx.AbsorbUint8()
	if err != nil {
		return wrapErr(ErrParse, "reading identity presence", err)
	}
	if hasIdentity == 1 {
		seed, err := ctx.UnmaskSized()
		if err != nil {
			return wrapErr(ErrParse, "reading identity seed", err)
		}
		identity, err := id.NewEd25519IdentityFromSeed(seed)
		if err != nil {
			return wrapErr(ErrParse, "reconstructing identity", err)
		}
		u.state.identity = identity
	}

	hasStream, err := ctx.AbsorbUint8()
	if err != nil {
		return wrapErr(ErrParse, "reading stream-address presence", err)
	}
	if hasStream == 1 {
		baseBytes, err := ctx.Unmask(32)
		if err != nil {
			return wrapErr(ErrParse, "reading stream base", err)
		}
		relBytes, err := ctx.Unmask(32)
		if err != nil {
			return wrapErr(ErrParse, "reading stream relative", err)
		}
		var addr address.Address
		copy(addr.Base[:], baseBytes)
		copy(addr.Relative[:], relBytes)
		u.state.streamAddress = &addr
	}

	hasAuthor, err := ctx.AbsorbUint8()
	if err != nil {
		return wrapErr(ErrParse, "reading author presence", err)
	}
	if hasAuthor == 1 {
		raw, err := ctx.UnmaskSized()
		if err != nil {
			return wrapErr(ErrParse, "reading author identifier", err)
		}
		author, _, err := id.ParseIdentifier(raw)
		if err != nil {
			return wrapErr(ErrParse, "parsing author identifier", err)
		}
		u.state.authorIdentifier = &author
	}

	baseBranch, err := ctx.UnmaskSized()
	if err != nil {
		return wrapErr(ErrParse, "reading base branch", err)
	}
	u.state.baseBranch = address.Topic(baseBranch)

	snapCount, err := ctx.AbsorbUvarint()
	if err != nil {
		return wrapErr(ErrParse, "reading snapshot count", err)
	}
	for i := uint64(0); i < snapCount; i++ {
		msgIDBytes, err := ctx.Unmask(32)
		if err != nil {
			return wrapErr(ErrParse, "reading snapshot msgid", err)
		}
		snapBytes, err := ctx.Unmask(sponge.MarshalSize)
		if err != nil {
			return wrapErr(ErrParse, "reading snapshot body", err)
		}
		snap, err := sponge.UnmarshalState(snapBytes)
		if err != nil {
			return wrapErr(ErrParse, "unmarshalling snapshot", err)
		}
		var msgID address.MsgId
		copy(msgID[:], msgIDBytes)
		u.state.spongosStore[msgID] = snap
	}

	topicCount, err := ctx.AbsorbUvarint()
	if err != nil {
		return wrapErr(ErrParse, "reading topic count", err)
	}
	for i := uint64(0); i < topicCount; i++ {
		topicBytes, err := ctx.UnmaskSized()
		if err != nil {
			return wrapErr(ErrParse, "reading topic", err)
		}
		topic := address.Topic(topicBytes)
		u.state.cursorStore.NewBranch(topic)
		u.state.topics[topic] = struct{}{}

		linkBytes, err := ctx.Unmask(32)
		if err != nil {
			return wrapErr(ErrParse, "reading topic latest link", err)
		}
		var link address.MsgId
		copy(link[:], linkBytes)
		u.setLatestLink(topic, link)

		entryCount, err := ctx.AbsorbUvarint()
		if err != nil {
			return wrapErr(ErrParse, "reading cursor entry count", err)
		}
		for j := uint64(0); j < entryCount; j++ {
			perm, err := unmaskPermissioned(ctx)
			if err != nil {
				return wrapErr(ErrParse, "reading permission", err)
			}
			cursor, err := ctx.AbsorbUvarint()
			if err != nil {
				return wrapErr(ErrParse, "reading cursor", err)
			}
			u.state.cursorStore.InsertCursor(topic, perm, cursor)
		}
	}

	subCount, err := ctx.AbsorbUvarint()
	if err != nil {
		return wrapErr(ErrParse, "reading subscriber count", err)
	}
	for i := uint64(0); i < subCount; i++ {
		raw, err := ctx.UnmaskSized()
		if err != nil {
			return wrapErr(ErrParse, "reading subscriber", err)
		}
		identifier, _, err := id.ParseIdentifier(raw)
		if err != nil {
			return wrapErr(ErrParse, "parsing subscriber", err)
		}
		u.addSubscriber(identifier)
	}

	pskCount, err := ctx.AbsorbUvarint()
	if err != nil {
		return wrapErr(ErrParse, "reading psk count", err)
	}
	for i := uint64(0); i < pskCount; i++ {
		idBytes, err := ctx.Unmask(32)
		if err != nil {
			return wrapErr(ErrParse, "reading psk id", err)
		}
		secretBytes, err := ctx.Unmask(32)
		if err != nil {
			return wrapErr(ErrParse, "reading psk secret", err)
		}
		var pskID id.PskID
		var psk id.Psk
		copy(pskID[:], idBytes)
		copy(psk[:], secretBytes)
		u.state.pskStore[pskID] = psk
	}

	lean, err := ctx.AbsorbUint8()
	if err != nil {
		return wrapErr(ErrParse, "reading lean flag", err)
	}
	u.state.lean = lean == 1

	return nil
}

// maskPermissioned/unmaskPermissioned are the backup encoding of a
// Permissioned. Unlike message package's wrapPermissioned, the
// identifier is masked behind a length prefix, and a ReadWrite entry
// always carries its duration sequence, whatever the duration kind.
func maskPermissioned(ctx *sponge.WrapContext, p id.Permissioned) {
	ctx.AbsorbUint8(uint8(p.Level))
	ctx.MaskSized(p.ID.WireEncode())
	if p.Level == id.ReadWrite {
		ctx.AbsorbUint8(uint8(p.Duration.Kind))
		ctx.AbsorbUvarint(p.Duration.Sequence)
	}
}

func unmaskPermissioned(ctx *sponge.UnwrapContext) (id.Permissioned, error) {
	var perm id.Permissioned
	levelByte, err := ctx.AbsorbUint8()
	if err != nil {
		return perm, err
	}
	perm.Level = id.PermissionLevel(levelByte)

	raw, err := ctx.UnmaskSized()
	if err != nil {
		return perm, err
	}
	identifier, _, err := id.ParseIdentifier(raw)
	if err != nil {
		return perm, err
	}
	perm.ID = identifier

	if perm.Level == id.ReadWrite {
		durByte, err := ctx.AbsorbUint8()
		if err != nil {
			return perm, err
		}
		perm.Duration.Kind = id.DurationKind(durByte)
		seq, err := ctx.AbsorbUvarint()
		if err != nil {
			return perm, err
		}
		perm.Duration.Sequence = seq
	}
	return perm, nil
}
