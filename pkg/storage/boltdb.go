package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/cartage/bomtrack/pkg/types"
)

var (
	// Bucket names
	bucketProgress   = []byte("progress")
	bucketComponents = []byte("components")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed checkpoint store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "bomtrack.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketProgress, bucketComponents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveProgress persists the latest reconciled state for a job
func (s *BoltStore) SaveProgress(state *types.ProgressState) error {
	if state == nil || state.JobID == "" {
		return fmt.Errorf("progress state requires a job id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return b.Put([]byte(state.JobID), data)
	})
}

// GetProgress returns the last persisted state for a job
func (s *BoltStore) GetProgress(jobID string) (*types.ProgressState, error) {
	var state types.ProgressState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		data := b.Get([]byte(jobID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// componentKey namespaces component entries per job
func componentKey(jobID, componentID string) []byte {
	return []byte(jobID + "/" + componentID)
}

// SaveComponent persists one ledger entry
func (s *BoltStore) SaveComponent(jobID string, update *types.ComponentUpdate) error {
	if jobID == "" || update == nil || update.ComponentID == "" {
		return fmt.Errorf("component update requires job and component ids")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketComponents)
		data, err := json.Marshal(update)
		if err != nil {
			return err
		}
		return b.Put(componentKey(jobID, update.ComponentID), data)
	})
}

// ListComponents returns all persisted ledger entries for a job, ordered by
// update time
func (s *BoltStore) ListComponents(jobID string) ([]*types.ComponentUpdate, error) {
	var updates []*types.ComponentUpdate
	prefix := []byte(jobID + "/")

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketComponents).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var u types.ComponentUpdate
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			updates = append(updates, &u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(updates, func(i, j int) bool {
		return updates[i].UpdatedAt.Before(updates[j].UpdatedAt)
	})
	return updates, nil
}

// DeleteJob removes all checkpoint data for a job
func (s *BoltStore) DeleteJob(jobID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketProgress).Delete([]byte(jobID)); err != nil {
			return err
		}

		c := tx.Bucket(bucketComponents).Cursor()
		prefix := []byte(jobID + "/")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}
