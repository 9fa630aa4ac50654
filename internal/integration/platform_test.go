package integration

import (
	"testing"

	"dyson-go-home/internal/dyson"
)

func TestPlatformsFor(t *testing.T) {
	tests := []struct {
		deviceType dyson.DeviceType
		want       []string
	}{
		{dyson.DeviceType360Eye, []string{"binary_sensor", "sensor", "vacuum"}},
		{dyson.DeviceTypePureCool, []string{"fan", "sensor"}},
		{dyson.DeviceTypePureCoolLink, []string{"fan", "sensor"}},
		{dyson.DeviceTypePureHotCool, []string{"fan", "sensor"}},
		{dyson.DeviceTypePureHumidifyCool, []string{"fan", "sensor"}},
		// Unknown types still get the default set.
		{dyson.DeviceType("999"), []string{"fan", "sensor"}},
	}
	for _, tt := range tests {
		got := PlatformsFor(tt.deviceType)
		if len(got) != len(tt.want) {
			t.Errorf("PlatformsFor(%q) = %v, want %v", tt.deviceType, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("PlatformsFor(%q)[%d] = %q, want %q", tt.deviceType, i, got[i], tt.want[i])
			}
		}
	}
}
