package entity

import (
	"fmt"
	"log/slog"
	"sync"

	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/store"
)

// BuildFunc produces the entities of one category for a connected device.
type BuildFunc func(entry *store.Entry, device dyson.Device) ([]*Entity, error)

// Platform implements integration.Platform for one entity category. Setup
// builds the category's entities, attaches them to the device message
// stream and indexes them in the shared registry; unload reverses all of
// that.
type Platform struct {
	category  string
	build     BuildFunc
	refresher Refresher
	registry  *Registry
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string][]*Entity // entry ID -> entities
}

// NewPlatform creates a platform for category using build.
func NewPlatform(category string, build BuildFunc, r Refresher, registry *Registry, logger *slog.Logger) *Platform {
	return &Platform{
		category:  category,
		build:     build,
		refresher: r,
		registry:  registry,
		logger:    logger.With("component", "platform", "category", category),
		entries:   make(map[string][]*Entity),
	}
}

func (p *Platform) Category() string { return p.category }

func (p *Platform) SetupEntry(entry *store.Entry, device dyson.Device) error {
	p.mu.Lock()
	if _, ok := p.entries[entry.ID]; ok {
		p.mu.Unlock()
		return fmt.Errorf("entry %s already set up on %s", entry.ID, p.category)
	}
	p.mu.Unlock()

	entities, err := p.build(entry, device)
	if err != nil {
		return fmt.Errorf("build %s entities: %w", p.category, err)
	}
	for i, e := range entities {
		if err := e.Attach(p.refresher); err != nil {
			for _, prev := range entities[:i] {
				prev.Detach()
				p.registry.Remove(prev)
			}
			return err
		}
		p.registry.Add(e)
	}

	p.mu.Lock()
	p.entries[entry.ID] = entities
	p.mu.Unlock()
	p.logger.Debug("entities added", "entry_id", entry.ID, "count", len(entities))
	return nil
}

func (p *Platform) UnloadEntry(entryID string) error {
	p.mu.Lock()
	entities, ok := p.entries[entryID]
	if ok {
		delete(p.entries, entryID)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("entry %s not set up on %s", entryID, p.category)
	}
	for _, e := range entities {
		e.Detach()
		p.registry.Remove(e)
	}
	p.logger.Debug("entities removed", "entry_id", entryID, "count", len(entities))
	return nil
}

// Entities returns the live entities for an entry.
func (p *Platform) Entities(entryID string) []*Entity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[entryID]
}

// displayName is the base entity name for an entry.
func displayName(entry *store.Entry, device dyson.Device) string {
	if entry.Name != "" {
		return entry.Name
	}
	return dyson.TypeName(device.Type()) + " " + device.Serial()
}

// Message filters shared by the category builders.
var (
	stateFilter = dyson.MessageTypeState
	envFilter   = dyson.MessageTypeEnvironmental
)
