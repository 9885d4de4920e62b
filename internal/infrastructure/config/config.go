package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the lambdawp daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Host        HostConfig        `yaml:"host"`
	Integration IntegrationConfig `yaml:"integration"`
	Modbus      ModbusConfig      `yaml:"modbus"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// HostConfig describes the environment the integration runs in.
type HostConfig struct {
	// ConfigDir is where lambda_wp_config.yaml lives.
	ConfigDir string `yaml:"config_dir"`

	// Entries are bootstrap configuration entries. They are created in the
	// entry store on first start when no entry with the same name exists.
	Entries []EntrySeed `yaml:"entries"`
}

// EntrySeed is a configuration entry declared in the daemon config file.
type EntrySeed struct {
	Name    string         `yaml:"name"`
	Data    map[string]any `yaml:"data"`
	Options map[string]any `yaml:"options"`
}

// IntegrationConfig contains domain-level integration settings.
type IntegrationConfig struct {
	// Debug raises the log level to debug at integration setup.
	Debug bool `yaml:"debug"`

	// ReloadGrace is the pause between unload and setup during a reload.
	ReloadGrace time.Duration `yaml:"reload_grace"`

	// Platforms are the host platforms forwarded for each entry.
	Platforms []string `yaml:"platforms"`

	// UpdateInterval is the default coordinator polling interval.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// CyclingInterval is how often cycling snapshots are published.
	CyclingInterval time.Duration `yaml:"cycling_interval"`
}

// ModbusConfig contains heat pump Modbus TCP defaults.
// Per-entry data (host, port, slave_id) takes precedence.
type ModbusConfig struct {
	Port    int           `yaml:"port"`
	SlaveID int           `yaml:"slave_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains admin HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LAMBDAWP_SECTION_KEY
// For example: LAMBDAWP_DATABASE_PATH, LAMBDAWP_HOST_CONFIG_DIR
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file is present.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			ConfigDir: "./config",
		},
		Integration: IntegrationConfig{
			ReloadGrace:     time.Second,
			Platforms:       []string{"sensor", "climate"},
			UpdateInterval:  30 * time.Second,
			CyclingInterval: 5 * time.Minute,
		},
		Modbus: ModbusConfig{
			Port:    502,
			SlaveID: 1,
			Timeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/lambdawp.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lambdawp",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8099,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "lambda",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LAMBDAWP_HOST_CONFIG_DIR"); v != "" {
		cfg.Host.ConfigDir = v
	}
	if v := os.Getenv("LAMBDAWP_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Integration.Debug = b
		}
	}

	if v := os.Getenv("LAMBDAWP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("LAMBDAWP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LAMBDAWP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LAMBDAWP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("LAMBDAWP_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("LAMBDAWP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Host.ConfigDir == "" {
		errs = append(errs, "host.config_dir is required")
	}
	for i, e := range c.Host.Entries {
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Sprintf("host.entries[%d].name is required", i))
		}
	}

	if c.Integration.ReloadGrace < 0 {
		errs = append(errs, "integration.reload_grace must not be negative")
	}
	if c.Integration.UpdateInterval <= 0 {
		errs = append(errs, "integration.update_interval must be positive")
	}
	for _, p := range c.Integration.Platforms {
		if p != "sensor" && p != "climate" {
			errs = append(errs, fmt.Sprintf("integration.platforms: unknown platform %q", p))
		}
	}

	if c.Modbus.Port < 1 || c.Modbus.Port > 65535 {
		errs = append(errs, "modbus.port must be between 1 and 65535")
	}
	if c.Modbus.SlaveID < 0 || c.Modbus.SlaveID > 247 {
		errs = append(errs, "modbus.slave_id must be between 0 and 247")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) GetReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// GetWriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) GetWriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// GetIdleTimeout returns the idle timeout as a Duration.
func (t APITimeoutConfig) GetIdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
