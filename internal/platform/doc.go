// Package platform attaches the sensor and climate platforms of an entry to
// Home Assistant through MQTT discovery.
//
// Forward publishes one retained discovery config per entity and records
// the entity in the entity registry. Sensors are derived from the register
// templates of every planned device; each heating circuit also gets a
// read-only climate entity. State comes from the coordinator's state
// topics. Unload clears the retained configs again.
package platform
