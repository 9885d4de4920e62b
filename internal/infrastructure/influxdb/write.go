package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementRegisters = "lambda_registers"
	measurementPoll      = "lambda_poll"
)

// WriteRegisters records one device's register values from a poll.
// Non-blocking; the point is batched.
//
// Example:
//
//	client.WriteRegisters("abc123", "hp1", map[string]float64{"r1004": 352}, time.Now())
func (c *Client) WriteRegisters(entryID, device string, values map[string]float64, ts time.Time) {
	if !c.IsConnected() || len(values) == 0 {
		return
	}
	c.writeAPI.WritePoint(registersPoint(entryID, device, values, ts))
}

// WritePoll records the outcome of one coordinator refresh.
func (c *Client) WritePoll(entryID string, devices int, duration time.Duration, ok bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pollPoint(entryID, devices, duration, ok, time.Now()))
}

func registersPoint(entryID, device string, values map[string]float64, ts time.Time) *write.Point {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return write.NewPoint(
		measurementRegisters,
		map[string]string{
			"entry_id": entryID,
			"device":   device,
		},
		fields,
		ts,
	)
}

func pollPoint(entryID string, devices int, duration time.Duration, ok bool, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementPoll,
		map[string]string{"entry_id": entryID},
		map[string]interface{}{
			"devices":     devices,
			"duration_ms": duration.Milliseconds(),
			"ok":          ok,
		},
		ts,
	)
}
