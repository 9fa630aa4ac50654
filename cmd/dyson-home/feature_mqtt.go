//go:build !no_mqtt

package main

import (
	"log/slog"

	"dyson-go-home/internal/entity"
	"dyson-go-home/internal/integration"
	mqttbridge "dyson-go-home/internal/mqtt"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

// initMQTT starts the Home Assistant bridge when enabled and returns the
// refresh sink entities publish through. With MQTT disabled (or failing to
// connect) refreshes fall back to logging.
func initMQTT(registry *entity.Registry, events *integration.EventBus, cfg *Config, logger *slog.Logger) (entity.Refresher, *mqttStopper) {
	if !cfg.MQTT.Enabled {
		return &logRefresher{logger: logger}, &mqttStopper{}
	}
	bridge, err := mqttbridge.NewBridge(registry, events, mqttbridge.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &logRefresher{logger: logger}, &mqttStopper{}
	}
	bridge.Start()
	return bridge, &mqttStopper{bridge: bridge}
}
