package entity

import (
	"fmt"
	"log/slog"

	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
)

// NewVacuumPlatform builds the vacuum category.
func NewVacuumPlatform(r Refresher, registry *Registry, logger *slog.Logger) *Platform {
	return NewPlatform(integration.CategoryVacuum, VacuumEntities, r, registry, logger)
}

// VacuumEntities builds the single vacuum entity for a robot vacuum.
func VacuumEntities(entry *store.Entry, device dyson.Device) ([]*Entity, error) {
	vac, ok := device.(dyson.VacuumState)
	if !ok {
		return nil, fmt.Errorf("device %s (%s) has no vacuum state", device.Serial(), dyson.TypeName(device.Type()))
	}
	e := New(device, displayName(entry, device), device.Serial(), integration.CategoryVacuum, &stateFilter, func() map[string]any {
		return map[string]any{
			"status":        vac.CleaningState(),
			"battery_level": vac.BatteryLevel(),
		}
	})
	e.ObjectID = "vacuum"
	e.ValueKey = "status"
	return []*Entity{e}, nil
}
