package platform

import (
	"strings"

	"github.com/nerrad567/lambda-heatpumps/internal/address"
	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entity"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/mqtt"
)

// Manufacturer is reported in the discovery device block.
const Manufacturer = "Lambda Wärmepumpen"

// DeviceInfo is the discovery device block shared by an entry's entities.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
}

// SensorConfig is a Home Assistant MQTT sensor discovery payload.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	ObjectID          string     `json:"object_id"`
	StateTopic        string     `json:"state_topic"`
	ValueTemplate     string     `json:"value_template"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	AvailabilityTopic string     `json:"availability_topic"`
	AvailabilityTmpl  string     `json:"availability_template"`
	Device            DeviceInfo `json:"device"`
}

// ClimateConfig is a Home Assistant MQTT climate discovery payload for a
// heating circuit. It is read-only: no command topics are announced.
type ClimateConfig struct {
	Name                    string     `json:"name"`
	UniqueID                string     `json:"unique_id"`
	ObjectID                string     `json:"object_id"`
	Modes                   []string   `json:"modes"`
	CurrentTemperatureTopic string     `json:"current_temperature_topic"`
	CurrentTemperatureTmpl  string     `json:"current_temperature_template"`
	TemperatureStateTopic   string     `json:"temperature_state_topic"`
	TemperatureStateTmpl    string     `json:"temperature_state_template"`
	TemperatureUnit         string     `json:"temperature_unit"`
	AvailabilityTopic       string     `json:"availability_topic"`
	AvailabilityTmpl        string     `json:"availability_template"`
	Device                  DeviceInfo `json:"device"`
}

const availabilityTemplate = "{{ 'online' if value_json.online else 'offline' }}"

// announcement is one discovery config plus its registry record.
type announcement struct {
	component string
	objectID  string
	payload   any
	entity    entity.Entity
}

// plan builds the announcements of e for the requested platforms.
func plan(e entry.Entry, platforms []entity.Platform, overrides map[string]string) ([]announcement, error) {
	var topics mqtt.Topics
	prefix := e.NamePrefix()
	device := DeviceInfo{
		Identifiers:  []string{prefix + "_" + e.ID},
		Name:         deviceName(e),
		Manufacturer: Manufacturer,
		Model:        e.StringData(entry.KeyName, ""),
	}
	counts := e.Counts()
	perCategory := address.Counts{
		address.HeatPump:       counts.HeatPumps,
		address.Boiler:         counts.Boilers,
		address.Buffer:         counts.Buffers,
		address.Solar:          counts.Solar,
		address.HeatingCircuit: counts.HeatingCircuits,
	}

	var out []announcement
	for _, p := range platforms {
		switch p {
		case entity.PlatformSensor:
			for _, category := range address.Categories() {
				for n := 1; n <= perCategory[category]; n++ {
					dev := address.DeviceName(category, n)
					for _, reg := range coordinator.Registers(category) {
						id := dev + "_" + reg.Key
						objectID := prefix + "_" + id
						name := humanize(dev, reg.Key)
						if o, ok := overrides[id]; ok && o != "" {
							name = o
						}
						cfg := SensorConfig{
							Name:              name,
							UniqueID:          objectID,
							ObjectID:          objectID,
							StateTopic:        topics.EntryState(e.ID, dev),
							ValueTemplate:     "{{ value_json." + reg.Key + " }}",
							UnitOfMeasurement: reg.Unit,
							DeviceClass:       reg.DeviceClass,
							AvailabilityTopic: topics.EntryAvailability(e.ID),
							AvailabilityTmpl:  availabilityTemplate,
							Device:            device,
						}
						if reg.DeviceClass != "" {
							cfg.StateClass = "measurement"
						}
						out = append(out, announcement{
							component: string(entity.PlatformSensor),
							objectID:  objectID,
							payload:   cfg,
							entity: entity.Entity{
								EntityID:      "sensor." + objectID,
								UniqueID:      objectID,
								ConfigEntryID: e.ID,
								Platform:      entity.PlatformSensor,
								Name:          name,
							},
						})
					}
				}
			}

		case entity.PlatformClimate:
			for n := 1; n <= counts.HeatingCircuits; n++ {
				dev := address.DeviceName(address.HeatingCircuit, n)
				objectID := prefix + "_" + dev + "_climate"
				name := humanize(dev, "climate")
				out = append(out, announcement{
					component: string(entity.PlatformClimate),
					objectID:  objectID,
					payload: ClimateConfig{
						Name:                    name,
						UniqueID:                objectID,
						ObjectID:                objectID,
						Modes:                   []string{"heat"},
						CurrentTemperatureTopic: topics.EntryState(e.ID, dev),
						CurrentTemperatureTmpl:  "{{ value_json.room_device_temperature }}",
						TemperatureStateTopic:   topics.EntryState(e.ID, dev),
						TemperatureStateTmpl:    "{{ value_json.set_flow_line_temperature }}",
						TemperatureUnit:         "C",
						AvailabilityTopic:       topics.EntryAvailability(e.ID),
						AvailabilityTmpl:        availabilityTemplate,
						Device:                  device,
					},
					entity: entity.Entity{
						EntityID:      "climate." + objectID,
						UniqueID:      objectID,
						ConfigEntryID: e.ID,
						Platform:      entity.PlatformClimate,
						Name:          name,
					},
				})
			}

		default:
			return nil, ErrUnknownPlatform
		}
	}
	return out, nil
}

func deviceName(e entry.Entry) string {
	if e.Title != "" {
		return e.Title
	}
	return strings.ToUpper(e.NamePrefix())
}

// humanize turns ("hp1", "flow_line_temperature") into
// "HP1 Flow Line Temperature".
func humanize(device, key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.ToUpper(device) + " " + strings.Join(words, " ")
}
