package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Bucket:  "lambda",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
	// Writes on a nil client are dropped.
	c.WriteRegisters("e1", "hp1", map[string]float64{"r1": 1}, time.Now())
	c.WritePoll("e1", 1, time.Second, true)
}

func TestRegistersPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := registersPoint("e1", "hp1", map[string]float64{"r1004": 35.2, "r1005": 1}, ts)

	if p.Name() != measurementRegisters {
		t.Errorf("Name() = %q", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["entry_id"] != "e1" || tags["device"] != "hp1" {
		t.Errorf("tags = %v", tags)
	}
	if n := len(p.FieldList()); n != 2 {
		t.Errorf("fields = %d, want 2", n)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}
}

func TestPollPoint(t *testing.T) {
	p := pollPoint("e1", 3, 1500*time.Millisecond, false, time.Now())

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["duration_ms"] != int64(1500) {
		t.Errorf("duration_ms = %v (%T), want 1500", fields["duration_ms"], fields["duration_ms"])
	}
	if fields["ok"] != false {
		t.Errorf("ok = %v, want false", fields["ok"])
	}
	if fields["devices"] != int64(3) {
		t.Errorf("devices = %v (%T), want 3", fields["devices"], fields["devices"])
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{"defaults", config.InfluxDBConfig{}, 100, 10000},
		{"configured", config.InfluxDBConfig{BatchSize: 20, FlushInterval: 2}, 20, 2000},
		{"negative falls back", config.InfluxDBConfig{BatchSize: -1, FlushInterval: -5}, 100, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(tt.cfg)
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", got, tt.wantFlush)
			}
		})
	}
}
