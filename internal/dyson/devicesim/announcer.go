package devicesim

import (
	"context"
	"sync"

	"dyson-go-home/internal/discovery"
	"dyson-go-home/internal/dyson"
)

// Announcer is a discovery.Discoverer for simulated appliances. Tests and
// the sim backend drive it with Announce.
type Announcer struct {
	mu      sync.Mutex
	started bool
	pending map[string]chan string
}

var _ discovery.Discoverer = (*Announcer)(nil)

// NewAnnouncer creates a stopped Announcer.
func NewAnnouncer() *Announcer {
	return &Announcer{pending: make(map[string]chan string)}
}

func (a *Announcer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	return nil
}

func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	for serial, ch := range a.pending {
		close(ch)
		delete(a.pending, serial)
	}
}

func (a *Announcer) Register(device dyson.Device) (<-chan string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	serial := device.Serial()
	if _, ok := a.pending[serial]; ok {
		return nil, discovery.ErrAlreadyRegistered
	}
	ch := make(chan string, 1)
	a.pending[serial] = ch
	return ch, nil
}

func (a *Announcer) Unregister(serial string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch, ok := a.pending[serial]; ok {
		close(ch)
		delete(a.pending, serial)
	}
}

// Announce delivers a host announcement for serial to its pending
// registration, if any. Announcements for unregistered serials are dropped,
// matching real network discovery. The send happens under the lock so that
// Unregister and Stop cannot close the channel mid-send; the buffered
// channel plus the default arm keep the critical section non-blocking.
func (a *Announcer) Announce(serial, host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.pending[serial]
	if !ok {
		return
	}
	select {
	case ch <- host:
	default:
		// Registration has an unconsumed announcement; the watcher will
		// pick up the earlier host first.
	}
}

// AnnounceAll delivers an announcement for every reachable device of b.
// Driving it from a ticker approximates real appliances broadcasting on the
// local network.
func (a *Announcer) AnnounceAll(b *Backend) {
	b.mu.Lock()
	hosts := make(map[string]string, len(b.reachable))
	for serial, host := range b.reachable {
		hosts[serial] = host
	}
	b.mu.Unlock()
	for serial, host := range hosts {
		a.Announce(serial, host)
	}
}

// Registered reports whether serial has a pending registration.
func (a *Announcer) Registered(serial string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[serial]
	return ok
}
