package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const filePermissions = 0o644

// Logger is the logging interface used by the provisioner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Provisioner owns lambda_wp_config.yaml in one directory.
type Provisioner struct {
	dir    string
	logger Logger
}

// New creates a Provisioner for dir. A nil logger discards output.
func New(dir string, logger Logger) *Provisioner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Provisioner{dir: dir, logger: logger}
}

// Path returns the full path of lambda_wp_config.yaml.
func (p *Provisioner) Path() string {
	return filepath.Join(p.dir, FileName)
}

// EnsureDefaultConfig writes the template if the file does not exist yet.
// An existing file is never touched. It reports whether it wrote the file.
func (p *Provisioner) EnsureDefaultConfig() (bool, error) {
	if p.dir == "" {
		return false, ErrNoConfigDir
	}

	f, err := os.OpenFile(p.Path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("provision: create %s: %w", FileName, err)
	}

	if _, err := f.WriteString(defaultTemplate); err != nil {
		f.Close()           //nolint:errcheck // Write error takes precedence
		os.Remove(p.Path()) //nolint:errcheck // Do not leave a truncated file behind
		return false, fmt.Errorf("provision: write %s: %w", FileName, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("provision: close %s: %w", FileName, err)
	}

	p.logger.Info("created lambda_wp_config.yaml from template", "path", p.Path())
	return true, nil
}

// MigrateCyclingOffsets appends a cycling_offsets section to files that lack
// one, after saving the original as lambda_wp_config.yaml.backup. Missing
// and empty files are left alone. It reports whether the file changed.
func (p *Provisioner) MigrateCyclingOffsets() (bool, error) {
	if p.dir == "" {
		return false, ErrNoConfigDir
	}

	content, err := os.ReadFile(p.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("provision: read %s: %w", FileName, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(doc) == 0 {
		return false, nil
	}
	if _, ok := doc["cycling_offsets"]; ok {
		return false, nil
	}

	backup := p.Path() + ".backup"
	if err := os.WriteFile(backup, content, filePermissions); err != nil {
		return false, fmt.Errorf("provision: write backup: %w", err)
	}

	updated := string(content)
	if !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}
	updated += "\n" + cyclingOffsetsBlock

	if err := os.WriteFile(p.Path(), []byte(updated), filePermissions); err != nil {
		return false, fmt.Errorf("provision: write %s: %w", FileName, err)
	}

	p.logger.Info("added cycling_offsets to lambda_wp_config.yaml", "backup", backup)
	return true, nil
}

// LambdaConfig is the parsed content of lambda_wp_config.yaml.
type LambdaConfig struct {
	DisabledRegisters   map[int]bool
	SensorNameOverrides map[string]string
	CyclingOffsets      map[string]map[string]float64
}

// IsDisabled reports whether register addr is disabled.
func (c *LambdaConfig) IsDisabled(addr int) bool {
	return c.DisabledRegisters[addr]
}

// Offset returns the cycling offset for device and counter, or 0.
func (c *LambdaConfig) Offset(device, counter string) float64 {
	return c.CyclingOffsets[device][counter]
}

func emptyConfig() *LambdaConfig {
	return &LambdaConfig{
		DisabledRegisters:   map[int]bool{},
		SensorNameOverrides: map[string]string{},
		CyclingOffsets:      map[string]map[string]float64{},
	}
}

type rawConfig struct {
	DisabledRegisters    []any            `yaml:"disabled_registers"`
	SensorsNamesOverride []map[string]any `yaml:"sensors_names_override"`
	CyclingOffsets       map[string]any   `yaml:"cycling_offsets"`
}

// Load upgrades the file if needed, then parses it. A missing or empty file
// yields an empty configuration. Malformed sections are logged and
// replaced by their empty value; only unparseable YAML is an error.
func (p *Provisioner) Load() (*LambdaConfig, error) {
	if _, err := p.MigrateCyclingOffsets(); err != nil {
		p.logger.Warn("lambda_wp_config.yaml migration failed", "error", err)
	}

	cfg := emptyConfig()
	content, err := os.ReadFile(p.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("lambda_wp_config.yaml not found, using defaults", "path", p.Path())
			return cfg, nil
		}
		return nil, fmt.Errorf("provision: read %s: %w", FileName, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	for _, v := range raw.DisabledRegisters {
		n, ok := toInt(v)
		if !ok {
			p.logger.Warn("invalid disabled_registers entry, ignoring section", "value", v)
			cfg.DisabledRegisters = map[int]bool{}
			break
		}
		cfg.DisabledRegisters[n] = true
	}

	for _, o := range raw.SensorsNamesOverride {
		id, idOK := o["id"].(string)
		name, nameOK := o["override_name"].(string)
		if idOK && nameOK {
			cfg.SensorNameOverrides[id] = name
		}
	}

	for device, v := range raw.CyclingOffsets {
		offsets, ok := v.(map[string]any)
		if !ok {
			p.logger.Warn("invalid cycling_offsets format", "device", device)
			continue
		}
		parsed := make(map[string]float64, len(offsets))
		for counter, value := range offsets {
			f, ok := toFloat(value)
			if !ok {
				p.logger.Warn("invalid cycling offset value", "device", device, "counter", counter, "value", value)
				f = 0
			}
			parsed[counter] = f
		}
		cfg.CyclingOffsets[device] = parsed
	}

	p.logger.Debug("loaded lambda_wp_config.yaml",
		"disabled_registers", len(cfg.DisabledRegisters),
		"sensor_overrides", len(cfg.SensorNameOverrides),
		"cycling_offsets", len(cfg.CyclingOffsets),
	)
	return cfg, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
