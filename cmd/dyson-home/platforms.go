package main

import (
	"log/slog"

	"dyson-go-home/internal/entity"
	"dyson-go-home/internal/integration"
)

// newPlatforms builds every entity category the bridge supports. The
// integration manager picks the right subset per device type.
func newPlatforms(r entity.Refresher, reg *entity.Registry, logger *slog.Logger) []integration.Platform {
	return []integration.Platform{
		entity.NewFanPlatform(r, reg, logger),
		entity.NewSensorPlatform(r, reg, logger),
		entity.NewBinarySensorPlatform(r, reg, logger),
		entity.NewVacuumPlatform(r, reg, logger),
	}
}

// logRefresher is the refresh sink when no MQTT bridge is running: state
// changes are only logged.
type logRefresher struct {
	logger *slog.Logger
}

func (r *logRefresher) ScheduleRefresh(uniqueID string) {
	r.logger.Debug("state refresh", "unique_id", uniqueID)
}
