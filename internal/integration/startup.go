package integration

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/migration"
)

// Start seeds, migrates and sets up every stored entry. Individual entry
// failures are logged; only store failures are returned. It returns the
// number of entries that became active.
func (i *Integration) Start(ctx context.Context) (int, error) {
	if err := i.seed(ctx); err != nil {
		return 0, err
	}

	entries, err := i.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}

	for idx := range entries {
		i.MigrateEntry(ctx, &entries[idx])
	}

	var active atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if i.SetupEntry(gctx, e) {
				active.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // setups never return an error

	i.mu.Lock()
	i.started = true
	i.mu.Unlock()

	n := int(active.Load())
	i.logger.Info("integration started", "entries", len(entries), "active", n)
	return n, nil
}

// Stop waits for pending reloads, then unloads every active entry.
func (i *Integration) Stop(ctx context.Context) error {
	i.mu.Lock()
	started := i.started
	i.started = false
	i.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	i.lifecycle.Wait()

	registry := i.lifecycle.Registry()
	failed := 0
	for _, id := range registry.IDs() {
		reg, ok := registry.Get(id)
		if !ok {
			continue
		}
		if !i.UnloadEntry(ctx, reg.Entry) {
			failed++
		}
	}

	i.logger.Info("integration stopped", "remaining", registry.Len(), "failed_unloads", failed)
	return nil
}

// seed creates configured entries that are not in the store yet.
func (i *Integration) seed(ctx context.Context) error {
	if len(i.seeds) == 0 {
		return nil
	}

	existing, err := i.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing entries: %w", err)
	}
	titles := make(map[string]bool, len(existing))
	for _, e := range existing {
		titles[e.Title] = true
	}

	for _, s := range i.seeds {
		if titles[s.Name] {
			continue
		}
		data := make(map[string]any, len(s.Data)+1)
		for k, v := range s.Data {
			data[k] = v
		}
		if _, ok := data[entry.KeyName]; !ok {
			data[entry.KeyName] = s.Name
		}
		e := &entry.Entry{
			Title:   s.Name,
			Version: migration.TargetVersion,
			Data:    data,
			Options: s.Options,
		}
		if err := i.store.Create(ctx, e); err != nil {
			return fmt.Errorf("creating entry %q: %w", s.Name, err)
		}
		titles[s.Name] = true
		i.logger.Info("entry created from config", "entry_id", e.ID, "title", s.Name)
	}
	return nil
}
