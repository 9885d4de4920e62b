package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Logger is the logging interface used by the maintenance passes.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Maintainer runs the registry maintenance passes for one repository.
type Maintainer struct {
	repo   Repository
	logger Logger
}

// NewMaintainer creates a Maintainer. A nil logger discards output.
func NewMaintainer(repo Repository, logger Logger) *Maintainer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Maintainer{repo: repo, logger: logger}
}

// LegacyUniqueID maps a unique id onto the prefixed naming scheme:
// everything after the first underscore is kept and prefixed, or the whole
// id when it has no underscore. Ids already carrying the prefix are
// returned unchanged with ok=false.
func LegacyUniqueID(prefix, uniqueID string) (newID string, ok bool) {
	if strings.HasPrefix(uniqueID, prefix+"_") {
		return uniqueID, false
	}
	if _, rest, found := strings.Cut(uniqueID, "_"); found {
		return prefix + "_" + rest, true
	}
	return prefix + "_" + uniqueID, true
}

// RenameLegacy rewrites the unique ids of an entry's entities to the
// prefixed scheme. When two entities map to the same new id in one pass,
// the later one (by entity id) is removed. Per-entity failures are logged
// and skipped. It reports whether anything was renamed or removed; the
// error is only set when the entities cannot be listed.
func (m *Maintainer) RenameLegacy(ctx context.Context, entryID, prefix string) (bool, error) {
	entities, err := m.repo.ListByEntry(ctx, entryID)
	if err != nil {
		return false, fmt.Errorf("listing entities of %s: %w", entryID, err)
	}

	m.logger.Info("starting legacy naming migration", "entry_id", entryID, "prefix", prefix)

	migrated := make(map[string]bool)
	renamed, removed := 0, 0
	for _, e := range entities {
		newID, ok := LegacyUniqueID(prefix, e.UniqueID)
		if !ok {
			continue
		}

		if migrated[newID] {
			if err := m.repo.Remove(ctx, e.EntityID); err != nil {
				m.logger.Error("failed to remove conflicting entity", "entity_id", e.EntityID, "error", err)
				continue
			}
			removed++
			m.logger.Info("removed conflicting entity", "entity_id", e.EntityID, "unique_id", newID)
			continue
		}

		if err := m.repo.UpdateUniqueID(ctx, e.EntityID, newID); err != nil {
			m.logger.Error("failed to migrate entity", "entity_id", e.EntityID, "error", err)
			continue
		}
		migrated[newID] = true
		renamed++
		m.logger.Info("migrated entity", "entity_id", e.EntityID, "from", e.UniqueID, "to", newID)
	}

	m.logger.Info("legacy naming migration finished", "entry_id", entryID, "renamed", renamed, "removed", removed)
	return renamed+removed > 0, nil
}

// DedupeEntities removes entities sharing a unique id, keeping the one with
// the smallest entity id. It reports whether anything was removed.
func (m *Maintainer) DedupeEntities(ctx context.Context, entryID string) (bool, error) {
	entities, err := m.repo.ListByEntry(ctx, entryID)
	if err != nil {
		return false, fmt.Errorf("listing entities of %s: %w", entryID, err)
	}

	groups := make(map[string][]Entity)
	for _, e := range entities {
		groups[e.UniqueID] = append(groups[e.UniqueID], e)
	}

	removed := 0
	for uniqueID, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].EntityID < group[j].EntityID })

		for _, dup := range group[1:] {
			if err := m.repo.Remove(ctx, dup.EntityID); err != nil {
				m.logger.Error("failed to remove duplicate entity", "entity_id", dup.EntityID, "error", err)
				continue
			}
			removed++
			m.logger.Info("removed duplicate entity",
				"entity_id", dup.EntityID, "unique_id", uniqueID, "kept", group[0].EntityID)
		}
	}

	return removed > 0, nil
}
