package bolt_tools

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketInitialRefs = "initial_refs"

// RefStore keeps initial references in a local bbolt file, one bucket per
// ORB id nested under initial_refs.
type RefStore struct {
	db    *bolt.DB
	orbID string
}

func Open(path, orbID string) (*RefStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	s := &RefStore{db: db, orbID: orbID}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := s.bucket(tx)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RefStore) bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	root, err := tx.CreateBucketIfNotExists([]byte(bucketInitialRefs))
	if err != nil {
		return nil, err
	}
	return root.CreateBucketIfNotExists([]byte(s.orbID))
}

func (s *RefStore) readBucket(tx *bolt.Tx) *bolt.Bucket {
	root := tx.Bucket([]byte(bucketInitialRefs))
	if root == nil {
		return nil
	}
	return root.Bucket([]byte(s.orbID))
}

func (s *RefStore) LoadInitialRefs(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := s.readBucket(tx)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			refs[string(k)] = string(v)
			return nil
		})
	})
	return refs, err
}

func (s *RefStore) PutRef(ctx context.Context, name, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), []byte(ref))
	})
}

// GetRef returns "" when name is absent.
func (s *RefStore) GetRef(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var ref string
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := s.readBucket(tx); b != nil {
			ref = string(b.Get([]byte(name)))
		}
		return nil
	})
	return ref, err
}

func (s *RefStore) DeleteRef(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx)
		if err != nil {
			return err
		}
		existed = b.Get([]byte(name)) != nil
		return b.Delete([]byte(name))
	})
	return existed, err
}

func (s *RefStore) Close() error {
	return s.db.Close()
}
