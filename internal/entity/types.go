package entity

import "time"

// Platform names an entity platform of the host.
type Platform string

// Supported platforms.
const (
	PlatformSensor  Platform = "sensor"
	PlatformClimate Platform = "climate"
)

// Entity is a registered host entity belonging to a configuration entry.
//
// EntityID is the host-facing identifier (sensor.eu08l_hp1_flow_temp).
// UniqueID is the stable identifier the integration derives for the
// entity; the legacy naming migration rewrites it.
type Entity struct {
	EntityID      string    `json:"entity_id"`
	UniqueID      string    `json:"unique_id"`
	ConfigEntryID string    `json:"config_entry_id"`
	Platform      Platform  `json:"platform"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
}
