package entity

import (
	"fmt"
	"log/slog"

	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
)

// NewBinarySensorPlatform builds the binary_sensor category (vacuums only).
func NewBinarySensorPlatform(r Refresher, registry *Registry, logger *slog.Logger) *Platform {
	return NewPlatform(integration.CategoryBinarySensor, BinarySensorEntities, r, registry, logger)
}

// BinarySensorEntities builds the cleaning indicator for a vacuum.
func BinarySensorEntities(entry *store.Entry, device dyson.Device) ([]*Entity, error) {
	vac, ok := device.(dyson.VacuumState)
	if !ok {
		return nil, fmt.Errorf("device %s (%s) has no vacuum state", device.Serial(), dyson.TypeName(device.Type()))
	}
	e := New(device, displayName(entry, device)+" Cleaning", device.Serial()+"-cleaning", integration.CategoryBinarySensor, &stateFilter, func() map[string]any {
		cleaning := "OFF"
		if vac.CleaningState() == "cleaning" {
			cleaning = "ON"
		}
		return map[string]any{"cleaning": cleaning}
	})
	e.ObjectID = "cleaning"
	e.ValueKey = "cleaning"
	e.DeviceClass = "running"
	e.PayloadOn = "ON"
	e.PayloadOff = "OFF"
	return []*Entity{e}, nil
}
