package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

// Reload unloads and sets up e again under the domain-wide reload lock.
// Callers queue on the lock; ctx bounds the wait for it and the grace
// period.
//
// A failed unload is logged and does not stop the reload: the stale
// registration is released so the setup can build a fresh coordinator.
// The services stay active across that release since the setup needs them
// again. When the new setup fails the entry is left unregistered.
func (m *Manager) Reload(ctx context.Context, e entry.Entry) error {
	if err := m.reloadLock.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for reload lock: %w", err)
	}
	defer m.reloadLock.Release(1)

	m.logger.Info("reloading entry", "entry_id", e.ID)

	if report, err := m.Unload(ctx, e); err != nil {
		m.logger.Warn("unload during reload failed", "entry_id", e.ID, "error", err, "steps", len(report.Outcomes))
		if m.evict(ctx, e.ID, false) {
			m.logger.Warn("stale registration released for reload", "entry_id", e.ID)
		}
	}

	if m.grace > 0 {
		timer := time.NewTimer(m.grace)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.evict(ctx, e.ID, true)
			return ctx.Err()
		case <-timer.C:
		}
	}

	_, err := m.Setup(ctx, e)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			m.logger.Error("reload aborted, no data from coordinator", "entry_id", e.ID)
		} else {
			m.logger.Error("reload failed", "entry_id", e.ID, "error", err)
		}
		if m.evict(ctx, e.ID, true) {
			m.logger.Warn("entry removed after failed reload", "entry_id", e.ID)
		}
		return err
	}

	m.logger.Info("entry reloaded", "entry_id", e.ID)
	return nil
}

// evict forces an entry out of the registry regardless of platform state.
// With syncSvc set the services follow the resulting registry size, even
// when the entry was no longer registered. It reports whether a
// registration was removed.
func (m *Manager) evict(ctx context.Context, entryID string, syncSvc bool) bool {
	report := Report{EntryID: entryID}
	removed := false
	if m.registry.Has(entryID) {
		if m.binder != nil {
			if err := m.binder.Unbind(entryID); err != nil {
				report.add(StepUnbind, BestEffort, err)
			}
		}
		removed = m.release(ctx, &report, entryID)
	}
	if syncSvc {
		m.syncServices(ctx, &report)
	}
	if !report.OK() {
		m.logger.Warn("eviction incomplete", "entry_id", entryID, "error", report.Err())
	}
	return removed
}
