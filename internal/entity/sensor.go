package entity

import (
	"fmt"
	"log/slog"
	"math"

	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
)

// NewSensorPlatform builds the sensor category.
func NewSensorPlatform(r Refresher, registry *Registry, logger *slog.Logger) *Platform {
	return NewPlatform(integration.CategorySensor, SensorEntities, r, registry, logger)
}

// SensorEntities builds the sensor entities for a device: environmental
// readings for fan-type devices, battery level for vacuums. Sensors the
// model does not carry (reading < 0 at setup) are skipped.
func SensorEntities(entry *store.Entry, device dyson.Device) ([]*Entity, error) {
	base := displayName(entry, device)
	serial := device.Serial()
	var entities []*Entity

	if env, ok := device.(dyson.EnvironmentalState); ok {
		if env.Temperature() >= 0 {
			e := New(device, base+" Temperature", serial+"-temperature", integration.CategorySensor, &envFilter, func() map[string]any {
				return map[string]any{"temperature": kelvinToCelsius(env.Temperature())}
			})
			e.ObjectID = "temperature"
			e.ValueKey = "temperature"
			e.DeviceClass = "temperature"
			e.Unit = "°C"
			e.StateClass = "measurement"
			entities = append(entities, e)
		}
		if env.Humidity() >= 0 {
			e := New(device, base+" Humidity", serial+"-humidity", integration.CategorySensor, &envFilter, func() map[string]any {
				return map[string]any{"humidity": env.Humidity()}
			})
			e.ObjectID = "humidity"
			e.ValueKey = "humidity"
			e.DeviceClass = "humidity"
			e.Unit = "%"
			e.StateClass = "measurement"
			entities = append(entities, e)
		}
		if env.ParticulateMatter() >= 0 {
			e := New(device, base+" Particulates", serial+"-pm25", integration.CategorySensor, &envFilter, func() map[string]any {
				return map[string]any{"pm25": env.ParticulateMatter()}
			})
			e.ObjectID = "pm25"
			e.ValueKey = "pm25"
			e.DeviceClass = "pm25"
			e.Unit = "µg/m³"
			e.StateClass = "measurement"
			entities = append(entities, e)
		}
		if env.VolatileCompounds() >= 0 {
			e := New(device, base+" Volatile Organic Compounds", serial+"-voc", integration.CategorySensor, &envFilter, func() map[string]any {
				return map[string]any{"voc": env.VolatileCompounds()}
			})
			e.ObjectID = "voc"
			e.ValueKey = "voc"
			e.StateClass = "measurement"
			entities = append(entities, e)
		}
	}

	if vac, ok := device.(dyson.VacuumState); ok && dyson.IsVacuum(device.Type()) {
		e := New(device, base+" Battery Level", serial+"-battery", integration.CategorySensor, &stateFilter, func() map[string]any {
			return map[string]any{"battery_level": vac.BatteryLevel()}
		})
		e.ObjectID = "battery"
		e.ValueKey = "battery_level"
		e.DeviceClass = "battery"
		e.Unit = "%"
		entities = append(entities, e)
	}

	if len(entities) == 0 {
		return nil, fmt.Errorf("device %s (%s) exposes no sensor state", serial, dyson.TypeName(device.Type()))
	}
	return entities, nil
}

// kelvinToCelsius converts a device temperature reading, keeping one
// decimal place.
func kelvinToCelsius(k float64) float64 {
	return math.Round((k-273.15)*10) / 10
}
