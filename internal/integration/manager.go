package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"dyson-go-home/internal/discovery"
	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/store"
)

var (
	// ErrNotReady marks a transient setup failure: the device exists but
	// could not be reached right now. Callers retry later with backoff.
	ErrNotReady = errors.New("device not ready")

	// ErrEntryActive is returned when an entry already has a live device
	// handle or a pending discovery registration.
	ErrEntryActive = errors.New("entry already set up")

	// ErrEntryNotActive is returned by UnloadEntry for an entry with no
	// live lifecycle.
	ErrEntryNotActive = errors.New("entry not set up")
)

// Manager owns the setup/connect/forward lifecycle for config entries. It
// holds the only mapping from entry ID to live device handle; at most one
// handle exists per entry at any time.
type Manager struct {
	factory dyson.Factory
	disc    discovery.Discoverer
	events  *EventBus
	logger  *slog.Logger

	mu          sync.Mutex
	platforms   map[string]Platform
	active      map[string]struct{}           // entry IDs with any live lifecycle
	devices     map[string]dyson.Device       // entry ID -> connected handle
	watchers    map[string]context.CancelFunc // entry ID -> discovery watcher
	discStarted bool
	wg          sync.WaitGroup
}

// New creates a Manager. disc may be nil when discovery is disabled; setup
// of host-less entries then fails permanently.
func New(factory dyson.Factory, disc discovery.Discoverer, events *EventBus, logger *slog.Logger, platforms ...Platform) *Manager {
	m := &Manager{
		factory:   factory,
		disc:      disc,
		events:    events,
		logger:    logger.With("component", "integration"),
		platforms: make(map[string]Platform, len(platforms)),
		active:    make(map[string]struct{}),
		devices:   make(map[string]dyson.Device),
		watchers:  make(map[string]context.CancelFunc),
	}
	for _, p := range platforms {
		m.platforms[p.Category()] = p
	}
	return m
}

// SetUpEntry builds the device handle for entry and connects it.
//
// With a configured host the connect happens before SetUpEntry returns; a
// connection failure is reported as ErrNotReady so the caller can retry
// later. Without a host the device is registered for network discovery and
// SetUpEntry returns once the registration is in place; the connect then
// happens from a watcher goroutine on the next announcement.
//
// Factory failures (unknown type, bad credential) are permanent and are
// returned unwrapped of ErrNotReady.
func (m *Manager) SetUpEntry(ctx context.Context, entry *store.Entry) error {
	device, err := m.factory(entry.Serial, entry.Credential, dyson.DeviceType(entry.DeviceType))
	if err != nil {
		return fmt.Errorf("create device %s: %w", entry.Serial, err)
	}

	if err := m.reserve(entry.ID); err != nil {
		return err
	}

	if entry.Host != "" {
		if err := device.Connect(entry.Host); err != nil {
			m.release(entry.ID)
			m.logger.Warn("device connect failed", "serial", entry.Serial, "host", entry.Host, "err", err)
			return fmt.Errorf("connect %s at %s: %w", entry.Serial, entry.Host, ErrNotReady)
		}
		if err := m.finishSetup(entry, device); err != nil {
			m.release(entry.ID)
			return err
		}
		return nil
	}

	if err := m.ensureDiscovery(); err != nil {
		m.release(entry.ID)
		return err
	}
	hosts, err := m.disc.Register(device)
	if err != nil {
		m.release(entry.ID)
		return fmt.Errorf("register %s for discovery: %w", entry.Serial, err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.watchers[entry.ID] = cancel
	m.mu.Unlock()
	m.wg.Add(1)
	go m.watchDiscovery(wctx, entry, device, hosts)
	m.logger.Info("waiting for discovery", "serial", entry.Serial)
	return nil
}

// watchDiscovery consumes discovery announcements for one entry until a
// connect succeeds or the registration is torn down. Failed connects are
// logged and swallowed so one unreachable announcement never stops
// discovery for this or any other device.
func (m *Manager) watchDiscovery(ctx context.Context, entry *store.Entry, device dyson.Device, hosts <-chan string) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case host, ok := <-hosts:
			if !ok {
				return
			}
			if err := device.Connect(host); err != nil {
				m.logger.Error("failed to connect to discovered device", "serial", entry.Serial, "host", host, "err", err)
				continue
			}
			// The cancellation check, the watcher removal and the handle
			// store must be one critical section: UnloadEntry cancels under
			// the same lock, so either it sees the stored handle or this
			// watcher sees the cancellation. Nothing in between.
			m.mu.Lock()
			if ctx.Err() != nil {
				m.mu.Unlock()
				// Unloaded while the connect was in flight.
				if err := device.Disconnect(); err != nil {
					m.logger.Warn("disconnect after cancelled discovery", "serial", entry.Serial, "err", err)
				}
				return
			}
			delete(m.watchers, entry.ID)
			m.devices[entry.ID] = device
			m.mu.Unlock()
			m.disc.Unregister(device.Serial())
			if err := m.forwardEntry(entry, device); err != nil {
				m.logger.Error("entry setup after discovery", "serial", entry.Serial, "err", err)
				m.release(entry.ID)
			}
			return
		}
	}
}

// finishSetup publishes the handle and forwards the entry to each platform
// category for the device type. The handle is registered before any
// forwarding happens; a forwarding failure rolls everything back.
func (m *Manager) finishSetup(entry *store.Entry, device dyson.Device) error {
	m.mu.Lock()
	m.devices[entry.ID] = device
	m.mu.Unlock()
	return m.forwardEntry(entry, device)
}

// forwardEntry forwards an already-stored handle to each platform category
// for the device type, rolling back the handle on failure.
func (m *Manager) forwardEntry(entry *store.Entry, device dyson.Device) error {
	m.events.Emit(Event{Type: EventDeviceConnected, Data: map[string]any{
		"entry_id": entry.ID,
		"serial":   entry.Serial,
	}})

	var done []Platform
	var err error
	for _, category := range PlatformsFor(device.Type()) {
		p, ok := m.platforms[category]
		if !ok {
			err = fmt.Errorf("no platform registered for category %q", category)
			break
		}
		if perr := p.SetupEntry(entry, device); perr != nil {
			err = fmt.Errorf("setup %s platform: %w", category, perr)
			break
		}
		done = append(done, p)
	}
	if err != nil {
		for _, p := range done {
			if uerr := p.UnloadEntry(entry.ID); uerr != nil {
				m.logger.Error("rollback unload", "category", p.Category(), "err", uerr)
			}
		}
		m.mu.Lock()
		delete(m.devices, entry.ID)
		m.mu.Unlock()
		if derr := device.Disconnect(); derr != nil {
			m.logger.Warn("disconnect after failed setup", "serial", entry.Serial, "err", derr)
		}
		return err
	}

	m.logger.Info("entry set up", "entry_id", entry.ID, "serial", entry.Serial,
		"type", dyson.TypeName(device.Type()), "platforms", PlatformsFor(device.Type()))
	m.events.Emit(Event{Type: EventEntryAdded, Data: map[string]any{
		"entry_id": entry.ID,
		"serial":   entry.Serial,
	}})
	return nil
}

// UnloadEntry tears an entry down. Every forwarded platform category is
// unloaded concurrently; if any of them fails the device handle stays
// registered so the caller can retry. A successful unload removes the
// handle and disconnects the device. Pending discovery registrations are
// always removed.
func (m *Manager) UnloadEntry(ctx context.Context, entry *store.Entry) error {
	m.mu.Lock()
	cancel, watching := m.watchers[entry.ID]
	if watching {
		delete(m.watchers, entry.ID)
		// Cancel under the lock: a discovery watcher that has connected but
		// not yet stored its handle will observe this before proceeding.
		cancel()
	}
	device, connected := m.devices[entry.ID]
	m.mu.Unlock()

	if watching {
		m.disc.Unregister(entry.Serial)
		if !connected {
			m.release(entry.ID)
			m.logger.Info("entry unloaded before discovery", "entry_id", entry.ID, "serial", entry.Serial)
			return nil
		}
	}
	if !connected {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrEntryNotActive)
	}

	categories := PlatformsFor(device.Type())
	errs := make([]error, len(categories))
	var wg sync.WaitGroup
	for i, category := range categories {
		p, ok := m.platforms[category]
		if !ok {
			errs[i] = fmt.Errorf("no platform registered for category %q", category)
			continue
		}
		wg.Add(1)
		go func(i int, p Platform) {
			defer wg.Done()
			errs[i] = p.UnloadEntry(entry.ID)
		}(i, p)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("unload entry %s: %w", entry.ID, err)
	}

	m.mu.Lock()
	delete(m.devices, entry.ID)
	m.mu.Unlock()
	m.release(entry.ID)

	if err := device.Disconnect(); err != nil {
		m.logger.Warn("disconnect", "serial", entry.Serial, "err", err)
	}
	m.logger.Info("entry unloaded", "entry_id", entry.ID, "serial", entry.Serial)
	m.events.Emit(Event{Type: EventEntryRemoved, Data: map[string]any{
		"entry_id": entry.ID,
		"serial":   entry.Serial,
	}})
	return nil
}

// Device returns the connected handle for an entry, if any.
func (m *Manager) Device(entryID string) (dyson.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device, ok := m.devices[entryID]
	return device, ok
}

// Status reports the lifecycle state of an entry: "connected",
// "discovering", or "inactive".
func (m *Manager) Status(entryID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[entryID]; ok {
		return "connected"
	}
	if _, ok := m.watchers[entryID]; ok {
		return "discovering"
	}
	return "inactive"
}

// Events returns the integration event bus.
func (m *Manager) Events() *EventBus { return m.events }

// Platform returns the registered platform for a category.
func (m *Manager) Platform(category string) (Platform, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.platforms[category]
	return p, ok
}

// Shutdown cancels pending discovery watchers, stops the discoverer and
// disconnects every remaining device. Best effort; errors are logged.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	for id, cancel := range m.watchers {
		cancel()
		delete(m.watchers, id)
	}
	discStarted := m.discStarted
	m.discStarted = false
	devices := m.devices
	m.devices = make(map[string]dyson.Device)
	m.active = make(map[string]struct{})
	m.mu.Unlock()

	if discStarted {
		m.disc.Stop()
	}
	m.wg.Wait()

	for id, device := range devices {
		if err := device.Disconnect(); err != nil {
			m.logger.Warn("disconnect on shutdown", "entry_id", id, "err", err)
		}
		m.events.Emit(Event{Type: EventDeviceDisconnected, Data: map[string]any{
			"entry_id": id,
			"serial":   device.Serial(),
		}})
	}
	m.logger.Info("integration manager stopped")
}

// reserve claims the entry ID for a new lifecycle.
func (m *Manager) reserve(entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[entryID]; ok {
		return fmt.Errorf("entry %s: %w", entryID, ErrEntryActive)
	}
	m.active[entryID] = struct{}{}
	return nil
}

func (m *Manager) release(entryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, entryID)
}

// ensureDiscovery lazily starts the shared discoverer on first use. The
// discoverer lives for the rest of the process; Shutdown stops it.
func (m *Manager) ensureDiscovery() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discStarted {
		return nil
	}
	if m.disc == nil {
		return errors.New("no host configured and discovery is disabled")
	}
	if err := m.disc.Start(context.Background()); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}
	m.logger.Debug("discovery started")
	m.discStarted = true
	return nil
}
