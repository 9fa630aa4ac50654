package entity

import (
	"fmt"
	"log/slog"

	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
)

// NewFanPlatform builds the fan category.
func NewFanPlatform(r Refresher, registry *Registry, logger *slog.Logger) *Platform {
	return NewPlatform(integration.CategoryFan, FanEntities, r, registry, logger)
}

// FanEntities builds the single fan entity for a fan-type device. The
// device handle must expose fan state.
func FanEntities(entry *store.Entry, device dyson.Device) ([]*Entity, error) {
	fan, ok := device.(dyson.FanState)
	if !ok {
		return nil, fmt.Errorf("device %s (%s) has no fan state", device.Serial(), dyson.TypeName(device.Type()))
	}
	e := New(device, displayName(entry, device), device.Serial(), integration.CategoryFan, &stateFilter, func() map[string]any {
		state := "OFF"
		if fan.IsOn() {
			state = "ON"
		}
		return map[string]any{
			"state":       state,
			"speed":       fan.Speed(),
			"oscillating": fan.Oscillating(),
			"night_mode":  fan.NightMode(),
		}
	})
	e.ObjectID = "fan"
	e.ValueKey = "state"
	return []*Entity{e}, nil
}
