package entry

import (
	"math"
	"strings"
	"time"
)

// Data keys holding the device counts.
const (
	KeyHeatPumps       = "num_hps"
	KeyBoilers         = "num_boil"
	KeyBuffers         = "num_buff"
	KeySolar           = "num_sol"
	KeyHeatingCircuits = "num_hc"
)

// Other well-known keys.
const (
	KeyName           = "name"
	KeyHost           = "host"
	KeyPort           = "port"
	KeySlaveID        = "slave_id"
	KeyUpdateInterval = "update_interval"
)

// Default device counts applied when the data bag omits a key.
const (
	DefaultHeatPumps       = 1
	DefaultBoilers         = 1
	DefaultBuffers         = 0
	DefaultSolar           = 0
	DefaultHeatingCircuits = 1
)

// DefaultNamePrefix is used when an entry has no name.
const DefaultNamePrefix = "eu08l"

// Entry is a persisted configuration entry.
type Entry struct {
	ID        string         `json:"entry_id"`
	Title     string         `json:"title"`
	Version   int            `json:"version"`
	Data      map[string]any `json:"data"`
	Options   map[string]any `json:"options"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Counts holds how many devices of each category an installation has.
type Counts struct {
	HeatPumps       int `json:"num_hps"`
	Boilers         int `json:"num_boil"`
	Buffers         int `json:"num_buff"`
	Solar           int `json:"num_sol"`
	HeatingCircuits int `json:"num_hc"`
}

// Counts reads the device counts from the data bag, applying defaults for
// keys that are missing or not a non-negative integer.
func (e *Entry) Counts() Counts {
	return Counts{
		HeatPumps:       e.intData(KeyHeatPumps, DefaultHeatPumps),
		Boilers:         e.intData(KeyBoilers, DefaultBoilers),
		Buffers:         e.intData(KeyBuffers, DefaultBuffers),
		Solar:           e.intData(KeySolar, DefaultSolar),
		HeatingCircuits: e.intData(KeyHeatingCircuits, DefaultHeatingCircuits),
	}
}

// NamePrefix is the entity naming prefix: the entry name lower-cased with
// spaces removed, or DefaultNamePrefix.
func (e *Entry) NamePrefix() string {
	name, _ := e.Data[KeyName].(string) //nolint:errcheck // missing name handled below
	prefix := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	if prefix == "" {
		return DefaultNamePrefix
	}
	return prefix
}

// StringData returns a string value from the data bag.
func (e *Entry) StringData(key, fallback string) string {
	if v, ok := e.Data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// IntData returns an integer value from the data bag.
func (e *Entry) IntData(key string, fallback int) int {
	return e.intData(key, fallback)
}

// DurationOption reads a duration option given in seconds.
func (e *Entry) DurationOption(key string, fallback time.Duration) time.Duration {
	n, ok := asInt(e.Options[key])
	if !ok || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Clone returns a deep-enough copy: maps are copied, values are shared.
func (e *Entry) Clone() Entry {
	c := *e
	c.Data = cloneMap(e.Data)
	c.Options = cloneMap(e.Options)
	return c
}

func (e *Entry) intData(key string, fallback int) int {
	n, ok := asInt(e.Data[key])
	if !ok || n < 0 {
		return fallback
	}
	return n
}

// asInt accepts the integer shapes that reach the data bag: YAML decodes to
// int, JSON to float64.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
