package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/config"
)

// Logger is a slog.Logger whose level can be raised to debug at runtime by
// the integration's debug option. Loggers derived with With share the level
// of their parent.
type Logger struct {
	*slog.Logger
	level     *slog.LevelVar
	baseLevel slog.Level
}

// New builds the root logger from the logging section of lambdawp.yaml.
// Output is stdout unless logging.output is "stderr"; format is JSON unless
// logging.format is "text".
func New(cfg config.LoggingConfig, version string) *Logger {
	output := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return newWithWriter(cfg, version, output)
}

func newWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	base := parseLevel(cfg.Level)
	level := new(slog.LevelVar)
	level.Set(base)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(output, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With("service", "lambdawp", "version", version),
		level:     level,
		baseLevel: base,
	}
}

// parseLevel accepts anything slog.Level.UnmarshalText does ("debug",
// "WARN", "info+2") plus "warning". Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		level:     l.level,
		baseLevel: l.baseLevel,
	}
}

// SetDebug switches the shared level to debug, or back to the configured level.
func (l *Logger) SetDebug(enabled bool) {
	if enabled {
		l.level.Set(slog.LevelDebug)
		return
	}
	l.level.Set(l.baseLevel)
}

// Level returns the current effective level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Default creates a default logger for use before configuration is loaded.
// It outputs to stdout in JSON format at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
