package integration

import (
	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/store"
)

// Platform category names.
const (
	CategoryBinarySensor = "binary_sensor"
	CategoryFan          = "fan"
	CategorySensor       = "sensor"
	CategoryVacuum       = "vacuum"
)

// Platform is one entity category the bridge can forward a config entry to.
// Implementations build the category's entities for a connected device and
// tear them down on unload.
type Platform interface {
	Category() string
	SetupEntry(entry *store.Entry, device dyson.Device) error
	UnloadEntry(entryID string) error
}

// PlatformsFor maps a device type to the ordered set of platform categories
// to set up for it. Robot vacuums get vacuum-shaped categories; every other
// device is a fan with environmental sensors.
func PlatformsFor(t dyson.DeviceType) []string {
	if dyson.IsVacuum(t) {
		return []string{CategoryBinarySensor, CategorySensor, CategoryVacuum}
	}
	return []string{CategoryFan, CategorySensor}
}
