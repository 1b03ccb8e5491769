package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/brettbedarf/snapfs/internal/util"
	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("snapshots")

// Info describes one snapshot kept in a BoltStore
type Info struct {
	Seq  uint64
	Size int
}

// BoltStore keeps the most recent snapshots in a bolt database, keyed by
// an increasing sequence number
type BoltStore struct {
	db   *bolt.DB
	path string
	keep int
}

// OpenBoltStore opens or creates the database at path. keep bounds how
// many snapshots are retained; older ones are pruned on every write.
func OpenBoltStore(path string, keep int) (*BoltStore, error) {
	if keep < 1 {
		return nil, fmt.Errorf("bolt store must keep at least one snapshot, got %d", keep)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt store: %w", err)
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltStore{db: db, path: path, keep: keep}, nil
}

func (s *BoltStore) Location() string {
	return s.path
}

func (s *BoltStore) Write(src Saver) error {
	logger := util.GetLogger("BoltStore.Write")

	// encode outside the write transaction
	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		return err
	}

	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		var err error
		if seq, err = b.NextSequence(); err != nil {
			return err
		}
		if err = b.Put(u64tob(seq), buf.Bytes()); err != nil {
			return err
		}
		return prune(b, s.keep)
	})
	if err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	logger.Debug().Str("path", s.path).Uint64("seq", seq).Int("bytes", buf.Len()).Msg("Snapshot written")
	return nil
}

// prune deletes the oldest entries until at most keep remain
func prune(b *bolt.Bucket, keep int) error {
	c := b.Cursor()
	count := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	for ; count > keep; count-- {
		k, _ := c.First()
		if k == nil {
			break
		}
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Read loads the newest snapshot
func (s *BoltStore) Read(dst Loader) error {
	return s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(snapshotBucket).Cursor().Last()
		if v == nil {
			return fmt.Errorf("%w in %s", ErrNoSnapshot, s.path)
		}
		// v is only valid inside the transaction; Load copies what it keeps
		return dst.Load(bytes.NewReader(v))
	})
}

// List returns the retained snapshots, oldest first
func (s *BoltStore) List() ([]Info, error) {
	var infos []Info
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).ForEach(func(k, v []byte) error {
			infos = append(infos, Info{Seq: btou64(k), Size: len(v)})
			return nil
		})
	})
	return infos, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func u64tob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btou64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
