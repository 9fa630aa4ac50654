// Package devicesim provides in-memory appliances behind the dyson.Device
// contract, for development and tests. It speaks no vendor protocol; a
// device is "reachable" only at hosts the backend has been told about.
package devicesim

import (
	"errors"
	"sync"

	"dyson-go-home/internal/dyson"
)

// Backend owns a set of simulated appliances and hands out device handles
// through Factory.
type Backend struct {
	mu        sync.Mutex
	reachable map[string]string // serial -> host that accepts connects
	devices   map[string]*SimDevice
}

// New creates an empty simulator backend.
func New() *Backend {
	return &Backend{
		reachable: make(map[string]string),
		devices:   make(map[string]*SimDevice),
	}
}

// SetReachable marks serial as reachable at host. Connect attempts to any
// other host fail with a DeviceError.
func (b *Backend) SetReachable(serial, host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reachable[serial] = host
}

// Device returns the live handle for serial, or nil if the factory has not
// built one yet.
func (b *Backend) Device(serial string) *SimDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[serial]
}

// Factory is a dyson.Factory backed by this simulator.
func (b *Backend) Factory(serial, credential string, deviceType dyson.DeviceType) (dyson.Device, error) {
	if !dyson.Supported(deviceType) {
		return nil, dyson.ErrUnsupportedDeviceType
	}
	if credential == "" {
		return nil, dyson.ErrBadCredential
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if dev, ok := b.devices[serial]; ok {
		return dev, nil
	}
	dev := &SimDevice{
		backend:     b,
		serial:      serial,
		deviceType:  deviceType,
		listeners:   make(map[uint64]func(dyson.MessageType)),
		speed:       4,
		battery:     100,
		cleaning:    "charging",
		temperature: 295.0,
		humidity:    45,
		pm25:        8,
		voc:         3,
	}
	b.devices[serial] = dev
	return dev, nil
}

// SimDevice is a simulated appliance. It implements dyson.Device plus the
// typed state accessors for its product category.
type SimDevice struct {
	backend    *Backend
	serial     string
	deviceType dyson.DeviceType

	mu        sync.Mutex
	connected bool
	host      string
	listeners map[uint64]func(dyson.MessageType)
	nextID    uint64

	on          bool
	speed       int
	oscillating bool
	nightMode   bool

	cleaning string
	battery  int

	temperature float64
	humidity    int
	pm25        int
	voc         int
}

func (d *SimDevice) Serial() string         { return d.serial }
func (d *SimDevice) Type() dyson.DeviceType { return d.deviceType }

func (d *SimDevice) Connect(host string) error {
	d.backend.mu.Lock()
	want, ok := d.backend.reachable[d.serial]
	d.backend.mu.Unlock()
	if !ok || want != host {
		return &dyson.DeviceError{Serial: d.serial, Op: "connect", Err: errors.New("host unreachable")}
	}
	d.mu.Lock()
	d.connected = true
	d.host = host
	d.mu.Unlock()
	return nil
}

func (d *SimDevice) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return &dyson.DeviceError{Serial: d.serial, Op: "disconnect", Err: errors.New("not connected")}
	}
	d.connected = false
	d.host = ""
	return nil
}

// Connected reports whether the device currently holds a connection.
func (d *SimDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *SimDevice) AddMessageListener(fn func(dyson.MessageType)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// Push fires every message listener with mt from a fresh goroutine, the way
// a device library's own network goroutine would.
func (d *SimDevice) Push(mt dyson.MessageType) {
	d.mu.Lock()
	fns := make([]func(dyson.MessageType), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	go func() {
		for _, fn := range fns {
			fn(mt)
		}
	}()
}

// PushSync fires listeners on the calling goroutine. Tests use it to avoid
// racing against the goroutine Push spawns.
func (d *SimDevice) PushSync(mt dyson.MessageType) {
	d.mu.Lock()
	fns := make([]func(dyson.MessageType), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(mt)
	}
}

// SetFan updates fan state and pushes a state message.
func (d *SimDevice) SetFan(on bool, speed int, oscillating, nightMode bool) {
	d.mu.Lock()
	d.on = on
	d.speed = speed
	d.oscillating = oscillating
	d.nightMode = nightMode
	d.mu.Unlock()
	d.Push(dyson.MessageTypeState)
}

// SetVacuum updates vacuum state and pushes a state message.
func (d *SimDevice) SetVacuum(cleaning string, battery int) {
	d.mu.Lock()
	d.cleaning = cleaning
	d.battery = battery
	d.mu.Unlock()
	d.Push(dyson.MessageTypeState)
}

// SetEnvironment updates sensor readings and pushes an environmental message.
func (d *SimDevice) SetEnvironment(temperature float64, humidity, pm25, voc int) {
	d.mu.Lock()
	d.temperature = temperature
	d.humidity = humidity
	d.pm25 = pm25
	d.voc = voc
	d.mu.Unlock()
	d.Push(dyson.MessageTypeEnvironmental)
}

func (d *SimDevice) IsOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

func (d *SimDevice) Speed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.on {
		return 0
	}
	return d.speed
}

func (d *SimDevice) Oscillating() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.oscillating
}

func (d *SimDevice) NightMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nightMode
}

func (d *SimDevice) CleaningState() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cleaning
}

func (d *SimDevice) BatteryLevel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.battery
}

func (d *SimDevice) Temperature() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temperature
}

func (d *SimDevice) Humidity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.humidity
}

func (d *SimDevice) ParticulateMatter() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pm25
}

func (d *SimDevice) VolatileCompounds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voc
}
