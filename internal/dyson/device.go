package dyson

import (
	"errors"
	"fmt"
)

// Device is the contract of the external device-control library: one live
// handle per physical appliance. Protocol handling, discovery announcements
// and state parsing all live behind this interface.
type Device interface {
	// Serial returns the appliance serial number. Stable for the device's
	// lifetime; used as the unique identifier across the bridge.
	Serial() string

	// Type returns the product-type discriminator.
	Type() DeviceType

	// Connect establishes the local connection to the device at host.
	// Blocks on network I/O; callers must not run it on a serving path.
	Connect(host string) error

	// Disconnect tears down the connection. Blocks on network I/O.
	Disconnect() error

	// AddMessageListener registers fn for device-pushed notifications and
	// returns a removal function. fn may be invoked from any goroutine.
	AddMessageListener(fn func(MessageType)) (remove func())
}

// FanState is implemented by fan-type device handles.
type FanState interface {
	IsOn() bool
	Speed() int // 1..10, 0 when off
	Oscillating() bool
	NightMode() bool
}

// VacuumState is implemented by robot-vacuum device handles.
type VacuumState interface {
	CleaningState() string // "cleaning", "paused", "charging", "idle"
	BatteryLevel() int     // percent
}

// EnvironmentalState is implemented by handles with environmental sensors.
// A reading of -1 means the sensor is not present on this model.
type EnvironmentalState interface {
	Temperature() float64 // kelvin, as reported by the device
	Humidity() int        // percent
	ParticulateMatter() int
	VolatileCompounds() int
}

// Factory constructs a device handle for stored credentials. Construction
// failure (unsupported type, malformed credential) is permanent; it never
// depends on network reachability.
type Factory func(serial, credential string, deviceType DeviceType) (Device, error)

var (
	// ErrUnsupportedDeviceType is returned by factories for a device type
	// outside the supported catalogue.
	ErrUnsupportedDeviceType = errors.New("unsupported device type")

	// ErrBadCredential is returned by factories for a credential that fails
	// local validation.
	ErrBadCredential = errors.New("invalid device credential")
)

// DeviceError is a protocol or connection failure reported by a device
// handle.
type DeviceError struct {
	Serial string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.Serial, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsDeviceError reports whether err is (or wraps) a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
