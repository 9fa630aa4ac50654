package store

import "time"

// Entry is one user-configured appliance instance. The credential is hidden
// from API/JSON serialization via json:"-".
type Entry struct {
	ID         string    `json:"id"`
	Serial     string    `json:"serial"`
	Credential string    `json:"-"`
	DeviceType string    `json:"device_type"`
	Host       string    `json:"host,omitempty"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// entryStorage is the internal struct used for DB serialization, preserving
// the credential on disk.
type entryStorage struct {
	ID         string    `json:"id"`
	Serial     string    `json:"serial"`
	Credential string    `json:"credential"`
	DeviceType string    `json:"device_type"`
	Host       string    `json:"host,omitempty"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toStorage(e *Entry) entryStorage {
	return entryStorage{
		ID:         e.ID,
		Serial:     e.Serial,
		Credential: e.Credential,
		DeviceType: e.DeviceType,
		Host:       e.Host,
		Name:       e.Name,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func fromStorage(s entryStorage) *Entry {
	return &Entry{
		ID:         s.ID,
		Serial:     s.Serial,
		Credential: s.Credential,
		DeviceType: s.DeviceType,
		Host:       s.Host,
		Name:       s.Name,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}
