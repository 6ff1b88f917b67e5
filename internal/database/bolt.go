package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/factchecker/labdesk/internal/models"
	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("session_snapshots")

// BoltStore implements Store using an embedded BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the BoltDB file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &BoltStore{db: db}
	if err := store.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Migrate creates the snapshot bucket.
func (s *BoltStore) Migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot stores a session snapshot, replacing any previous one.
func (s *BoltStore) SaveSnapshot(ctx context.Context, key string, snap *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(key), data)
	})
}

// LoadSnapshot retrieves a session snapshot by storage key.
func (s *BoltStore) LoadSnapshot(ctx context.Context, key string) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Values are only valid inside the transaction.
		if v := tx.Bucket(snapshotBucket).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return decodeSnapshot(data)
}

// DeleteSnapshot removes a session snapshot.
func (s *BoltStore) DeleteSnapshot(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Delete([]byte(key))
	})
}
