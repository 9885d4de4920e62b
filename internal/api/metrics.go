package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/mqtt"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Entries       EntryMetrics     `json:"entries"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`

	// Subscriptions is the number of filters restored on reconnect.
	Subscriptions int `json:"subscriptions"`

	// ServicesSubscribed is true while the service call topics are
	// subscribed, i.e. while at least one entry is active.
	ServicesSubscribed bool `json:"services_subscribed"`
}

// EntryMetrics contains lifecycle statistics.
type EntryMetrics struct {
	Active int `json:"active"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`

	SchemaVersion     string `json:"schema_version,omitempty"`
	MigrationsApplied int    `json:"migrations_applied"`
	MigrationsPending int    `json:"migrations_pending"`
}

// handleMetrics returns runtime, broker and lifecycle metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Entries: EntryMetrics{Active: s.integration.Active()},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
		metrics.MQTT.Subscriptions = s.mqtt.SubscriptionCount()
		metrics.MQTT.ServicesSubscribed = s.mqtt.HasSubscription(mqtt.Topics{}.AllServiceCalls())
	}

	if s.db != nil {
		stats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
			WaitCount:       stats.WaitCount,
		}

		applied, pending, err := s.db.GetMigrationStatus(r.Context())
		if err != nil {
			s.logger.Warn("reading migration status", "error", err, "request_id", requestID(r.Context()))
		} else {
			metrics.Database.MigrationsApplied = len(applied)
			metrics.Database.MigrationsPending = len(pending)
			if len(applied) > 0 {
				metrics.Database.SchemaVersion = applied[len(applied)-1].Version
			}
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
