package store

import "errors"

// ErrNotFound is returned when a requested entry does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for config entries.
type Store interface {
	// Entry operations
	SaveEntry(entry *Entry) error
	GetEntry(id string) (*Entry, error)
	DeleteEntry(id string) error
	ListEntries() ([]*Entry, error)

	// UpdateEntry atomically reads, modifies, and saves an entry in a single
	// transaction. Returns ErrNotFound if the entry does not exist.
	UpdateEntry(id string, fn func(entry *Entry) error) error

	// Close the store
	Close() error
}
