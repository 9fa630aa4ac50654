package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// NewEntryID returns a fresh random entry identifier.
func NewEntryID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process is in far worse trouble
		// than a weak entry ID.
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func (s *BoltStore) SaveEntry(entry *Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketEntries)
		}
		data, err := json.Marshal(toStorage(entry))
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.ID), data)
	})
}

func (s *BoltStore) GetEntry(id string) (*Entry, error) {
	var st entryStorage
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketEntries)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("entry %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return nil, err
	}
	return fromStorage(st), nil
}

func (s *BoltStore) DeleteEntry(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketEntries)
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) ListEntries() ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return nil // no bucket = no entries
		}
		entries = make([]*Entry, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var st entryStorage
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			entries = append(entries, fromStorage(st))
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) UpdateEntry(id string, fn func(entry *Entry) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketEntries)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("entry %s: %w", id, ErrNotFound)
		}
		var st entryStorage
		if err := json.Unmarshal(data, &st); err != nil {
			return err
		}
		entry := fromStorage(st)
		if err := fn(entry); err != nil {
			return err
		}
		entry.UpdatedAt = time.Now().UTC()
		out, err := json.Marshal(toStorage(entry))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
