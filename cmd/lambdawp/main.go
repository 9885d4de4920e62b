// lambdawp runs the Lambda heat-pump integration.
//
// It polls Lambda heat pumps over Modbus TCP, publishes their state and
// Home Assistant discovery configs over MQTT, and manages the lifecycle of
// the configuration entries stored in its SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/lambda-heatpumps/migrations"

	"github.com/nerrad567/lambda-heatpumps/internal/api"
	"github.com/nerrad567/lambda-heatpumps/internal/audit"
	"github.com/nerrad567/lambda-heatpumps/internal/automation"
	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entity"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/config"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/database"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/influxdb"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/logging"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/mqtt"
	"github.com/nerrad567/lambda-heatpumps/internal/integration"
	"github.com/nerrad567/lambda-heatpumps/internal/lifecycle"
	"github.com/nerrad567/lambda-heatpumps/internal/migration"
	"github.com/nerrad567/lambda-heatpumps/internal/platform"
	"github.com/nerrad567/lambda-heatpumps/internal/provision"
	"github.com/nerrad567/lambda-heatpumps/internal/services"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/lambdawp.yaml"
	defaultEnvFile    = ".env"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting lambdawp",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(defaultEnvFile); err != nil {
		return fmt.Errorf("loading %s: %w", defaultEnvFile, err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var influxClient *influxdb.Client
	var telemetry coordinator.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	comps := buildIntegration(cfg, db, mqttClient, telemetry, coordinator.DialTCP, log)
	defer comps.binder.Close()

	comps.integration.SetupIntegration(cfg.Integration)

	active, err := comps.integration.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting integration: %w", err)
	}
	defer func() {
		// Reloads started by the reload service must finish before the
		// entries are unloaded, or they would set an entry up again.
		comps.registrar.Drain()

		log.Info("unloading entries")
		stopCtx := context.WithoutCancel(ctx)
		if stopErr := comps.integration.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping integration", "error", stopErr)
		}
	}()
	log.Info("integration started", "active_entries", active)

	if cfg.API.Enabled {
		health := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			health["influxdb"] = influxClient
		}
		deps := apiDeps(cfg, comps, log)
		deps.Health = health
		deps.MQTT = mqttClient
		deps.DB = db
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, entries, binder, InfluxDB, MQTT, database.
	return nil
}

// broker is the MQTT surface shared by the integration packages.
type broker interface {
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// components are the long-lived parts built by buildIntegration. entries
// carries the update listeners of the active entries, so every writer of
// entry data must go through it.
type components struct {
	integration *integration.Integration
	registrar   *services.Registrar
	binder      *automation.Binder
	entries     *entry.SQLiteStore
	history     *audit.SQLiteRepository
}

// buildIntegration wires the integration packages together.
func buildIntegration(
	cfg *config.Config,
	db *database.DB,
	mqttClient broker,
	telemetry coordinator.Telemetry,
	dial coordinator.Dialer,
	log *logging.Logger,
) components {
	entries := entry.NewSQLiteStore(db.DB)
	entities := entity.NewSQLiteRepository(db.DB)
	history := audit.NewSQLiteRepository(db.DB)

	prov := provision.New(cfg.Host.ConfigDir, log.With("component", "provision"))
	if migrated, err := prov.MigrateCyclingOffsets(); err != nil {
		log.Warn("could not migrate lambda_wp_config.yaml", "error", err)
	} else if migrated {
		log.Info("cycling offsets added to lambda_wp_config.yaml", "path", prov.Path())
	}

	registry := lifecycle.NewRegistry()

	factory := coordinator.NewFactory(coordinator.Options{
		Port:           cfg.Modbus.Port,
		SlaveID:        cfg.Modbus.SlaveID,
		Timeout:        cfg.Modbus.Timeout,
		UpdateInterval: cfg.Integration.UpdateInterval,
		Dialer:         dial,
		Config:         prov,
		Publisher:      mqttClient,
		Topics:         mqtt.Topics{},
		Telemetry:      telemetry,
		Logger:         log.With("component", "coordinator"),
	})

	binder := automation.NewBinder(automation.BinderConfig{
		Resolver:  registry,
		Publisher: mqttClient,
		Topics:    mqtt.Topics{},
		Interval:  cfg.Integration.CyclingInterval,
	})
	binder.SetLogger(log.With("component", "automation"))

	registrar := services.New(services.Config{
		Broker:   mqttClient,
		Resolver: registry,
	})
	registrar.SetLogger(log.With("component", "services"))

	attacher := platform.NewAttacher(mqttClient, entities, prov)
	attacher.SetLogger(log.With("component", "platform"))

	platforms := make([]entity.Platform, 0, len(cfg.Integration.Platforms))
	for _, p := range cfg.Integration.Platforms {
		platforms = append(platforms, entity.Platform(p))
	}

	grace := cfg.Integration.ReloadGrace
	if grace == 0 {
		grace = -1
	}

	manager := lifecycle.NewManager(lifecycle.Config{
		Registry:     registry,
		Factory:      factory,
		Provisioner:  prov,
		Binder:       binder,
		Services:     registrar,
		Platforms:    attacher,
		Listeners:    entries,
		PlatformList: platforms,
		ReloadGrace:  grace,
	})
	manager.SetLogger(log.With("component", "lifecycle"))

	integ := integration.New(integration.Config{
		Lifecycle: manager,
		Migrator: migration.NewManager(
			entity.NewMaintainer(entities, log.With("component", "entity")),
			entries,
			log.With("component", "migration"),
		),
		Store: entries,
		Debug: log,
		Audit: history,
		Seeds: cfg.Host.Entries,
	})
	integ.SetLogger(log.With("component", "integration"))
	registrar.SetReloader(integ)

	return components{
		integration: integ,
		registrar:   registrar,
		binder:      binder,
		entries:     entries,
		history:     history,
	}
}

// apiDeps returns the API dependencies backed by comps. The entry store is
// the one the lifecycle listens on, so a PATCH reloads the entry.
func apiDeps(cfg *config.Config, comps components, log *logging.Logger) api.Deps {
	return api.Deps{
		Config:      cfg.API,
		Logger:      log.With("component", "api"),
		Integration: comps.integration,
		Store:       comps.entries,
		History:     comps.history,
		Version:     version,
	}
}

// getConfigPath returns LAMBDAWP_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("LAMBDAWP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadDotEnv loads environment variables from path. A missing file is not
// an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// healthCheck verifies the infrastructure connections. influxClient may be
// nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
