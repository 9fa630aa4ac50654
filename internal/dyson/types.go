package dyson

// DeviceType is the vendor's product-type discriminator ("438", "N223", ...).
type DeviceType string

// Known device types.
const (
	DeviceType360Eye           DeviceType = "N223" // robot vacuum
	DeviceTypePureCool         DeviceType = "438"
	DeviceTypePureCoolDesk     DeviceType = "520"
	DeviceTypePureCoolLink     DeviceType = "475"
	DeviceTypePureCoolLinkDesk DeviceType = "469"
	DeviceTypePureHotCool      DeviceType = "527"
	DeviceTypePureHotCoolLink  DeviceType = "455"
	DeviceTypePureHumidifyCool DeviceType = "358"
)

var typeNames = map[DeviceType]string{
	DeviceType360Eye:           "360 Eye",
	DeviceTypePureCool:         "Pure Cool",
	DeviceTypePureCoolDesk:     "Pure Cool Desk",
	DeviceTypePureCoolLink:     "Pure Cool Link",
	DeviceTypePureCoolLinkDesk: "Pure Cool Link Desk",
	DeviceTypePureHotCool:      "Pure Hot+Cool",
	DeviceTypePureHotCoolLink:  "Pure Hot+Cool Link",
	DeviceTypePureHumidifyCool: "Pure Humidify+Cool",
}

// Supported reports whether t is a device type this bridge knows about.
func Supported(t DeviceType) bool {
	_, ok := typeNames[t]
	return ok
}

// IsVacuum reports whether t is a robot vacuum type.
func IsVacuum(t DeviceType) bool {
	return t == DeviceType360Eye
}

// TypeName returns a human-readable product name for t, or the raw
// discriminator if the type is unknown.
func TypeName(t DeviceType) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return string(t)
}

// SupportedTypes returns the catalogue of known device types.
func SupportedTypes() []DeviceType {
	types := make([]DeviceType, 0, len(typeNames))
	for t := range typeNames {
		types = append(types, t)
	}
	return types
}

// MessageType classifies a device-pushed notification.
type MessageType int

const (
	// MessageTypeState signals a change of the device's operating state
	// (power, speed, cleaning state, ...).
	MessageTypeState MessageType = iota
	// MessageTypeEnvironmental signals new environmental sensor readings.
	MessageTypeEnvironmental
)

func (m MessageType) String() string {
	switch m {
	case MessageTypeState:
		return "state"
	case MessageTypeEnvironmental:
		return "environmental"
	default:
		return "unknown"
	}
}
