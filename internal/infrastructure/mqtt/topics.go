package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the lambdawp MQTT topic tree.
const (
	// TopicPrefix is the base for all lambdawp topics.
	TopicPrefix = "lambda"

	// TopicPrefixSystem is the base for daemon status topics.
	TopicPrefixSystem = "lambda/system"

	// TopicPrefixService is the base for callable service topics.
	TopicPrefixService = "lambda/service"

	// DiscoveryPrefix is the Home Assistant MQTT discovery prefix.
	DiscoveryPrefix = "homeassistant"
)

// Topics provides builders for lambdawp MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.EntryState("01J0...", "hp1")
//	// Returns: "lambda/01J0.../state/hp1"
type Topics struct{}

// SystemStatus returns the daemon status topic (LWT target).
//
// Example: lambda/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// EntryState returns the state topic for one device of an entry.
//
// Example: lambda/abc123/state/boil1
func (Topics) EntryState(entryID, device string) string {
	return fmt.Sprintf("%s/%s/state/%s", TopicPrefix, entryID, device)
}

// EntryAvailability returns the availability topic of an entry.
//
// Example: lambda/abc123/availability
func (Topics) EntryAvailability(entryID string) string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefix, entryID)
}

// EntryCommand returns the command topic of an entry.
//
// Example: lambda/abc123/command/reload
func (Topics) EntryCommand(entryID, command string) string {
	return fmt.Sprintf("%s/%s/command/%s", TopicPrefix, entryID, command)
}

// ServiceCall returns the topic callers publish service invocations to.
//
// Example: lambda/service/read_register/call
func (Topics) ServiceCall(service string) string {
	return fmt.Sprintf("%s/%s/call", TopicPrefixService, service)
}

// ServiceResponse returns the topic a service result is published on.
//
// Example: lambda/service/read_register/response/5f1c...
func (Topics) ServiceResponse(service, callID string) string {
	return fmt.Sprintf("%s/%s/response/%s", TopicPrefixService, service, callID)
}

// AutomationEvent returns the topic for a cycling automation event.
//
// Example: lambda/automation/abc123/daily_reset
func (Topics) AutomationEvent(entryID, name string) string {
	return fmt.Sprintf("%s/automation/%s/%s", TopicPrefix, entryID, name)
}

// Discovery returns the Home Assistant discovery config topic.
//
// Example: homeassistant/sensor/eu08l_hp1_flow_temp/config
func (Topics) Discovery(component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/config", DiscoveryPrefix, component, objectID)
}

// AllServiceCalls matches invocations of every service.
//
// Pattern: lambda/service/+/call
func (Topics) AllServiceCalls() string {
	return TopicPrefixService + "/+/call"
}

// AllEntryCommands matches commands for every entry.
//
// Pattern: lambda/+/command/+
func (Topics) AllEntryCommands() string {
	return TopicPrefix + "/+/command/+"
}

// ParseServiceCall extracts the service name from a service call topic.
func ParseServiceCall(topic string) (service string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixService+"/")
	if !found {
		return "", false
	}
	service, found = strings.CutSuffix(rest, "/call")
	if !found || service == "" || strings.Contains(service, "/") {
		return "", false
	}
	return service, true
}

// ParseEntryCommand extracts entry id and command from an entry command topic.
func ParseEntryCommand(topic string) (entryID, command string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[2] != "command" {
		return "", "", false
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
