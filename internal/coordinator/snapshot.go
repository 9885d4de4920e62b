package coordinator

import (
	"sort"
	"time"
)

// Snapshot is the result of one poll: register values keyed by device name
// ("hp1", "hc2", ...) and register key.
type Snapshot struct {
	Devices   map[string]map[string]float64 `json:"devices"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// Empty reports whether the snapshot holds no values.
func (s Snapshot) Empty() bool {
	for _, values := range s.Devices {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// Value returns a single register value.
func (s Snapshot) Value(device, key string) (float64, bool) {
	v, ok := s.Devices[device][key]
	return v, ok
}

// DeviceNames returns the device names in sorted order.
func (s Snapshot) DeviceNames() []string {
	names := make([]string, 0, len(s.Devices))
	for name := range s.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clone copies the value maps so callers cannot mutate coordinator state.
func (s Snapshot) clone() Snapshot {
	out := Snapshot{Devices: make(map[string]map[string]float64, len(s.Devices)), UpdatedAt: s.UpdatedAt}
	for device, values := range s.Devices {
		m := make(map[string]float64, len(values))
		for k, v := range values {
			m[k] = v
		}
		out.Devices[device] = m
	}
	return out
}
