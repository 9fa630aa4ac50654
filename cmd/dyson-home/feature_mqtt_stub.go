//go:build no_mqtt

package main

import (
	"log/slog"

	"dyson-go-home/internal/entity"
	"dyson-go-home/internal/integration"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *entity.Registry, _ *integration.EventBus, _ *Config, logger *slog.Logger) (entity.Refresher, *mqttStopper) {
	return &logRefresher{logger: logger}, &mqttStopper{}
}
