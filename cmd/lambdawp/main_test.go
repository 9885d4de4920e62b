package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/api"
	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/config"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/database"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/logging"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/mqtt"
)

// fakeBroker accepts every publish and subscription.
type fakeBroker struct {
	mu        sync.Mutex
	published int
	filters   map[string]bool
}

func (b *fakeBroker) PublishJSON(string, any, bool) error {
	b.mu.Lock()
	b.published++
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) ClearRetained(string) error { return nil }

func (b *fakeBroker) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.filters == nil {
		b.filters = map[string]bool{}
	}
	b.filters[topic] = true
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.filters, topic)
	b.mu.Unlock()
	return nil
}

// fakeModbus dials transports that read every register as 1.
type fakeModbus struct {
	mu    sync.Mutex
	hosts []string
}

func (m *fakeModbus) dial(host string, _ int, _ byte, _ time.Duration) (coordinator.Transport, error) {
	m.mu.Lock()
	m.hosts = append(m.hosts, host)
	m.mu.Unlock()
	return onesTransport{}, nil
}

func (m *fakeModbus) dialed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hosts...)
}

type onesTransport struct{}

func (onesTransport) ReadHoldingRegisters(_, quantity uint16) ([]byte, error) {
	out := make([]byte, 2*int(quantity))
	for i := 1; i < len(out); i += 2 {
		out[i] = 1
	}
	return out, nil
}

func (onesTransport) Close() error { return nil }

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("LAMBDAWP_CONFIG", "/nonexistent/path/lambdawp.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want a config load error", err)
	}
}

func TestRun_InvalidDatabasePath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "lambdawp.yaml")
	configContent := `
host:
  config_dir: ./config

database:
  path: ""

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("LAMBDAWP_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("run() error = %v, want database.path validation error", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("LAMBDAWP_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("LAMBDAWP_CONFIG", "/etc/lambdawp.yaml")
	if got := getConfigPath(); got != "/etc/lambdawp.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/lambdawp.yaml", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	if err := loadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("loadDotEnv(missing) error = %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LAMBDAWP_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("LAMBDAWP_TEST_DOTENV", "")
	os.Unsetenv("LAMBDAWP_TEST_DOTENV") //nolint:errcheck // restored by t.Setenv

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv("LAMBDAWP_TEST_DOTENV"); got != "from-file" {
		t.Errorf("LAMBDAWP_TEST_DOTENV = %q, want from-file", got)
	}
}

func TestBuildIntegration_PatchReloadsEntry(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	cfg := &config.Config{
		Host: config.HostConfig{
			ConfigDir: t.TempDir(),
			Entries: []config.EntrySeed{{
				Name: "Lambda",
				Data: map[string]any{entry.KeyHost: "192.0.2.10", entry.KeyHeatPumps: 1},
			}},
		},
		Integration: config.IntegrationConfig{
			Platforms:       []string{"sensor"},
			UpdateInterval:  time.Hour,
			CyclingInterval: time.Hour,
		},
	}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	modbus := &fakeModbus{}

	comps := buildIntegration(cfg, db, &fakeBroker{}, nil, modbus.dial, log)
	t.Cleanup(comps.binder.Close)

	active, err := comps.integration.Start(ctx)
	if err != nil || active != 1 {
		t.Fatalf("Start() = %d, %v, want 1 active entry", active, err)
	}

	deps := apiDeps(cfg, comps, log)
	if deps.Store != api.EntryStore(comps.entries) {
		t.Fatal("API entry store is not the store the lifecycle listens on")
	}
	srv, err := api.New(deps)
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}

	stored, err := comps.entries.List(ctx)
	if err != nil || len(stored) != 1 {
		t.Fatalf("List() = %v, %v, want one entry", stored, err)
	}
	id := stored[0].ID

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/entries/"+id,
		strings.NewReader(`{"data":{"host":"192.0.2.20"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d, body = %s", w.Code, w.Body.String())
	}

	// The old listener goes with the unload, so one listener on the new
	// host means the reload has set the entry up again.
	deadline := time.Now().Add(5 * time.Second)
	for {
		hosts := modbus.dialed()
		if len(hosts) > 0 && hosts[len(hosts)-1] == "192.0.2.20" && comps.entries.ListenerCount(id) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry not reloaded after PATCH: dialed %v, listeners %d", hosts, comps.entries.ListenerCount(id))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if n := comps.integration.Active(); n != 1 {
		t.Errorf("Active() = %d after reload, want 1", n)
	}

	comps.registrar.Drain()
	if err := comps.integration.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if hosts := modbus.dialed(); len(hosts) != 2 {
		t.Errorf("dialed %v, want the old host then the new one", hosts)
	}
}
