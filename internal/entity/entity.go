package entity

import (
	"errors"
	"sync"

	"dyson-go-home/internal/dyson"
)

// Refresher accepts state-refresh requests from entities. Implementations
// must be safe to call from any goroutine; device message callbacks arrive
// on whatever goroutine the device library uses.
type Refresher interface {
	ScheduleRefresh(uniqueID string)
}

// DeviceInfo groups entities under one physical appliance in the host UI.
type DeviceInfo struct {
	Identifiers  string `json:"identifiers"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Name         string `json:"name"`
}

// Entity bridges one exposed capability of a device into the host platform.
// It starts unattached; Attach wires it to the device's message stream
// exactly once, after which every relevant message schedules a state
// refresh. State is push-driven only; entities are never polled.
type Entity struct {
	device   dyson.Device
	name     string
	uniqueID string
	category string
	filter   *dyson.MessageType
	snapshot func() map[string]any

	// Presentation hints consumed by the MQTT bridge.
	ObjectID    string
	ValueKey    string
	DeviceClass string
	Unit        string
	StateClass  string
	PayloadOn   string
	PayloadOff  string

	mu        sync.Mutex
	attached  bool
	remove    func()
	refresher Refresher
}

// New creates an unattached entity. A nil filter means every message type
// triggers a refresh; a non-nil filter restricts refreshes to that type so
// unrelated high-frequency telemetry does not cause redundant work.
// snapshot must return the entity's contribution to the device state
// payload and must be safe to call from any goroutine.
func New(device dyson.Device, name, uniqueID, category string, filter *dyson.MessageType, snapshot func() map[string]any) *Entity {
	return &Entity{
		device:   device,
		name:     name,
		uniqueID: uniqueID,
		category: category,
		filter:   filter,
		snapshot: snapshot,
	}
}

// Attach subscribes the entity to its device's message stream. Calling it
// a second time is an error; an entity stays attached until Detach.
func (e *Entity) Attach(r Refresher) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attached {
		return errors.New("entity already attached")
	}
	e.refresher = r
	e.remove = e.device.AddMessageListener(e.onMessage)
	e.attached = true
	return nil
}

// Detach unsubscribes from the device. It blocks until any in-flight
// message callback has finished, so no refreshes are scheduled after
// Detach returns.
func (e *Entity) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached {
		return
	}
	e.remove()
	e.remove = nil
	e.refresher = nil
	e.attached = false
}

// onMessage runs on the device library's goroutine. The refresh call stays
// under the lock so Detach, which takes the same lock, acts as a barrier;
// Refresher implementations must not block and must not call back into the
// entity.
func (e *Entity) onMessage(mt dyson.MessageType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached || (e.filter != nil && *e.filter != mt) {
		return
	}
	e.refresher.ScheduleRefresh(e.uniqueID)
}

// ShouldPoll reports whether the host must poll this entity. Always false:
// state arrives via device push messages.
func (e *Entity) ShouldPoll() bool { return false }

// Name returns the display name fixed at construction.
func (e *Entity) Name() string { return e.name }

// UniqueID returns the stable identifier the host uses for entity identity
// across restarts. Derived from the device serial.
func (e *Entity) UniqueID() string { return e.uniqueID }

// Category returns the platform category that built this entity.
func (e *Entity) Category() string { return e.category }

// Device returns the underlying device handle.
func (e *Entity) Device() dyson.Device { return e.device }

// State returns the entity's contribution to the device state payload.
func (e *Entity) State() map[string]any { return e.snapshot() }

// Info returns device metadata for grouping entities in the host UI.
func (e *Entity) Info() DeviceInfo {
	return DeviceInfo{
		Identifiers:  e.device.Serial(),
		Manufacturer: "Dyson",
		Model:        dyson.TypeName(e.device.Type()),
		Name:         e.name,
	}
}
