// Package influxdb writes heat pump telemetry to InfluxDB v2.
//
// Each coordinator refresh produces one lambda_registers point per device
// and one lambda_poll point describing the refresh itself. Writes are
// batched and non-blocking; failures surface through SetOnError.
package influxdb
