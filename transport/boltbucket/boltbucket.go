// Package boltbucket implements a bbolt-backed Transport, for
// durability across process restarts. Grounded on the teacher's
// userdb/boltuserdb package: same bolt.Open/CreateBucketIfNotExists/
// View/Update idiom, adapted from storing one public key per username
// to storing one ordered list of message bytes per wire address.
package boltbucket

import (
	"context"
	"encoding/binary"
	"fmt"

	bolt "github.com/coreos/bbolt"

	"github.com/tribe-health/streams/address"
	"github.com/tribe-health/streams/transport"
)

const metadataBucket = "metadata"
const versionKey = "version"
const currentVersion = 0

// BoltBucket is a durable Transport backed by a single bbolt file. Each
// address gets its own nested bucket holding the message under index
// key 0. SendMessage refuses a second message for an occupied address
// with ErrDuplicate; RecvMessage still reports ErrAmbiguous if a bucket
// somehow holds more than one entry rather than picking one.
type BoltBucket struct {
	db *bolt.DB
}

// New creates (or loads) a durable transport store at file f.
func New(f string) (*BoltBucket, error) {
	db, err := bolt.Open(f, 0600, nil)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if v := meta.Get([]byte(versionKey)); v != nil {
			if len(v) != 1 || v[0] != currentVersion {
				return fmt.Errorf("boltbucket: incompatible version: %d", uint(v[0]))
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{currentVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBucket{db: db}, nil
}

// Close flushes and closes the underlying database.
func (b *BoltBucket) Close() error {
	if err := b.db.Sync(); err != nil {
		b.db.Close()
		return err
	}
	return b.db.Close()
}

func addrKey(addr address.Address) []byte {
	return append(append([]byte{}, addr.Base[:]...), addr.Relative[:]...)
}

func (b *BoltBucket) SendMessage(_ context.Context, addr address.Address, msg []byte) error {
	key := addrKey(addr)
	return b.db.Update(func(tx *bolt.Tx) error {
		top, err := tx.CreateBucketIfNotExists([]byte("messages"))
		if err != nil {
			return err
		}
		bkt, err := top.CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		if bkt.Stats().KeyN > 0 {
			return transport.ErrDuplicate
		}
		var seqBuf [8]byte
		binary.BigEndian.PutUint64(seqBuf[:], 0)
		return bkt.Put(seqBuf[:], msg)
	})
}

func (b *BoltBucket) RecvMessages(_ context.Context, addr address.Address) ([][]byte, error) {
	key := addrKey(addr)
	var out [][]byte
	err := b.db.View(func(tx *bolt.Tx) error {
		top := tx.Bucket([]byte("messages"))
		if top == nil {
			return nil
		}
		bkt := top.Bucket(key)
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(_, v []byte) error {
			out = append(out, append([]byte(nil), v...))
			return nil
		})
	})
	return out, err
}

func (b *BoltBucket) RecvMessage(ctx context.Context, addr address.Address) ([]byte, error) {
	msgs, err := b.RecvMessages(ctx, addr)
	if err != nil {
		return nil, err
	}
	switch len(msgs) {
	case 0:
		return nil, transport.ErrNoMessage
	case 1:
		return msgs[0], nil
	default:
		return nil, transport.ErrAmbiguous
	}
}

var _ transport.Transport = (*BoltBucket)(nil)
