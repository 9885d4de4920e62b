package migration

import (
	"context"

	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

// TargetVersion is the current entry schema version.
const TargetVersion = 2

// Maintainer runs the entity clean-up passes.
type Maintainer interface {
	RenameLegacy(ctx context.Context, entryID, prefix string) (bool, error)
	DedupeEntities(ctx context.Context, entryID string) (bool, error)
}

// VersionUpdater persists an entry's schema version.
type VersionUpdater interface {
	UpdateVersion(ctx context.Context, id string, version int) error
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager migrates entries.
type Manager struct {
	entities Maintainer
	versions VersionUpdater
	logger   Logger
}

// NewManager creates a Manager. versions may be nil, in which case only the
// in-memory entry is advanced.
func NewManager(entities Maintainer, versions VersionUpdater, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{entities: entities, versions: versions, logger: logger}
}

// Needed reports whether e is below TargetVersion.
func Needed(e *entry.Entry) bool {
	return e.Version < TargetVersion
}

// Migrate brings e to TargetVersion. Entries already at or above it are
// left alone. It always returns true.
func (m *Manager) Migrate(ctx context.Context, e *entry.Entry) bool {
	if !Needed(e) {
		return true
	}

	from := e.Version
	m.logger.Info("migrating entry", "entry_id", e.ID, "from", from, "to", TargetVersion)

	if m.entities != nil {
		renamed, err := m.entities.RenameLegacy(ctx, e.ID, e.NamePrefix())
		if err != nil {
			m.logger.Error("legacy naming migration failed", "entry_id", e.ID, "error", err)
		} else if renamed {
			m.logger.Info("entities renamed to legacy naming", "entry_id", e.ID)
		}

		removed, err := m.entities.DedupeEntities(ctx, e.ID)
		if err != nil {
			m.logger.Error("duplicate entity clean-up failed", "entry_id", e.ID, "error", err)
		} else if removed {
			m.logger.Info("duplicate entities removed", "entry_id", e.ID)
		}
	}

	if m.versions != nil {
		if err := m.versions.UpdateVersion(ctx, e.ID, TargetVersion); err != nil {
			m.logger.Warn("failed to persist entry version", "entry_id", e.ID, "version", TargetVersion, "error", err)
		}
	}
	e.Version = TargetVersion

	m.logger.Info("entry migrated", "entry_id", e.ID, "from", from, "to", TargetVersion)
	return true
}
