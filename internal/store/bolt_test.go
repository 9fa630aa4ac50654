package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestEntryCRUD(t *testing.T) {
	s, _ := openTestStore(t)

	entry := &Entry{
		ID:         NewEntryID(),
		Serial:     "XB1-EU-ABC1234A",
		Credential: "secret",
		DeviceType: "438",
		Host:       "192.168.1.10",
		Name:       "Bedroom",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.SaveEntry(entry); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	got, err := s.GetEntry(entry.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Serial != entry.Serial || got.Credential != "secret" || got.Host != entry.Host {
		t.Errorf("round trip mismatch: %+v", got)
	}

	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListEntries = %d entries, want 1", len(entries))
	}

	if err := s.DeleteEntry(entry.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := s.GetEntry(entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry after delete = %v, want ErrNotFound", err)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	if _, err := s.GetEntry("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateEntry(t *testing.T) {
	s, _ := openTestStore(t)

	entry := &Entry{ID: "e1", Serial: "XB1-EU-ABC1234A", Credential: "secret", DeviceType: "438"}
	if err := s.SaveEntry(entry); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	if err := s.UpdateEntry("e1", func(e *Entry) error {
		e.Host = "192.168.1.20"
		return nil
	}); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	got, err := s.GetEntry("e1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Host != "192.168.1.20" {
		t.Errorf("Host = %q", got.Host)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	// A failing mutation leaves the record alone.
	wantErr := errors.New("boom")
	if err := s.UpdateEntry("e1", func(e *Entry) error {
		e.Host = "10.0.0.1"
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	got, _ = s.GetEntry("e1")
	if got.Host != "192.168.1.20" {
		t.Errorf("failed update mutated record: Host = %q", got.Host)
	}

	if err := s.UpdateEntry("nope", func(e *Entry) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCredentialHiddenFromJSONButPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	entry := &Entry{ID: "e1", Serial: "XB1-EU-ABC1234A", Credential: "secret", DeviceType: "438"}
	if err := s.SaveEntry(entry); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("credential leaked into entry JSON: %s", data)
	}

	// Survives a reopen.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()
	got, err := s.GetEntry("e1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Credential != "secret" {
		t.Errorf("Credential = %q after reopen, want secret", got.Credential)
	}
}

func TestNewEntryIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewEntryID()
		if len(id) != 16 {
			t.Fatalf("id %q has length %d, want 16", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
