// Package coordinator polls a Lambda heat pump over Modbus TCP.
//
// A Coordinator is bound to one configuration entry. Init loads
// lambda_wp_config.yaml, performs the first poll and starts the background
// polling loop; Refresh polls once on demand; Shutdown stops polling and
// closes the connection. Each successful poll replaces the Snapshot returned
// by Data and is pushed to the optional MQTT state and InfluxDB sinks.
//
// Register layout follows the device planner in the address package: every
// device reads a small fixed block relative to its base address. Values are
// signed 16-bit registers multiplied by a per-register scale.
//
// Operating-state transitions of the heat pumps drive the cycling counters
// (heating, hot water, cooling, defrost) exposed through Cycles.
package coordinator
