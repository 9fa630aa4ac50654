//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"

	"dyson-go-home/internal/entity"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/dyson_XXX-EU-ABC1234A/temperature/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload. Entities are state-only:
// command topics are owned by the vendor library, not this bridge.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	JSONAttributes    string   `json:"json_attributes_topic,omitempty"`
	Device            haDevice `json:"device"`
}

// haComponent maps a platform category to the HA discovery component.
// Fan and vacuum entities are published as sensors carrying the device
// state as attributes, since no command surface exists.
func haComponent(category string) string {
	switch category {
	case "binary_sensor":
		return "binary_sensor"
	default:
		return "sensor"
	}
}

// deviceIdentifier returns the node id for HA discovery topics.
func deviceIdentifier(serial string) string {
	return "dyson_" + serial
}

// buildDiscovery generates HA discovery messages for one device's entities.
func buildDiscovery(entities []*entity.Entity, prefix string) []discoveryMsg {
	if len(entities) == 0 {
		return nil
	}
	serial := entities[0].Device().Serial()
	info := entities[0].Info()
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + serial
	nodeID := deviceIdentifier(serial)

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         info.Name,
	}

	msgs := make([]discoveryMsg, 0, len(entities))
	for _, e := range entities {
		payload := haDiscovery{
			Name:              e.Name(),
			UniqueID:          e.UniqueID(),
			StateTopic:        stateTopic,
			AvailabilityTopic: avail,
			UnitOfMeasurement: e.Unit,
			DeviceClass:       e.DeviceClass,
			StateClass:        e.StateClass,
			PayloadOn:         e.PayloadOn,
			PayloadOff:        e.PayloadOff,
			Device:            haDev,
		}
		if e.ValueKey != "" {
			payload.ValueTemplate = fmt.Sprintf("{{ value_json.%s }}", e.ValueKey)
		}
		if e.Category() == "fan" || e.Category() == "vacuum" {
			payload.JSONAttributes = stateTopic
		}
		topic := fmt.Sprintf("homeassistant/%s/%s/%s/config", haComponent(e.Category()), nodeID, e.ObjectID)
		msgs = append(msgs, discoveryMsg{Topic: topic, Payload: mustJSON(payload)})
	}
	return msgs
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
