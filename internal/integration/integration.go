package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/lambda-heatpumps/internal/audit"
	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/config"
	"github.com/nerrad567/lambda-heatpumps/internal/lifecycle"
	"github.com/nerrad567/lambda-heatpumps/internal/migration"
)

// Lifecycle is the entry lifecycle the integration drives.
type Lifecycle interface {
	Setup(ctx context.Context, e entry.Entry) (lifecycle.Report, error)
	Unload(ctx context.Context, e entry.Entry) (lifecycle.Report, error)
	Reload(ctx context.Context, e entry.Entry) error
	Registry() *lifecycle.Registry
	Wait()
}

// Migrator brings entries to the current schema version.
type Migrator interface {
	Migrate(ctx context.Context, e *entry.Entry) bool
}

// DebugSwitch toggles debug logging at runtime.
type DebugSwitch interface {
	SetDebug(enabled bool)
}

// Auditor records lifecycle operations.
type Auditor interface {
	Record(ctx context.Context, rec *audit.Record) error
}

// Logger is the logging interface used by the integration.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config wires an Integration. Lifecycle and Store are required.
type Config struct {
	Lifecycle Lifecycle
	Migrator  Migrator
	Store     entry.Store
	Debug     DebugSwitch
	Audit     Auditor

	// Seeds are created in the store on Start when no entry has the same title.
	Seeds []config.EntrySeed

	// StartConcurrency bounds parallel entry setups in Start. Defaults to 4.
	StartConcurrency int
}

// Integration holds the host entry points.
type Integration struct {
	lifecycle   Lifecycle
	migrator    Migrator
	store       entry.Store
	debug       DebugSwitch
	audit       Auditor
	seeds       []config.EntrySeed
	concurrency int
	logger      Logger

	mu      sync.Mutex
	started bool
}

// New creates an Integration.
func New(cfg Config) *Integration {
	if cfg.StartConcurrency <= 0 {
		cfg.StartConcurrency = 4
	}
	return &Integration{
		lifecycle:   cfg.Lifecycle,
		migrator:    cfg.Migrator,
		store:       cfg.Store,
		debug:       cfg.Debug,
		audit:       cfg.Audit,
		seeds:       cfg.Seeds,
		concurrency: cfg.StartConcurrency,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (i *Integration) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	i.logger = logger
}

// SetupIntegration applies the process-wide integration options. It always
// succeeds.
func (i *Integration) SetupIntegration(cfg config.IntegrationConfig) bool {
	if i.debug != nil {
		i.debug.SetDebug(cfg.Debug)
	}
	if cfg.Debug {
		i.logger.Debug("debug logging enabled")
	}
	return true
}

// SetupEntry activates e and reports whether it is now active.
func (i *Integration) SetupEntry(ctx context.Context, e entry.Entry) (ok bool) {
	defer i.recoverInto("setup_entry", e.ID, &ok)

	report, err := i.lifecycle.Setup(ctx, e)
	i.logReport("setup_entry", report)
	i.record(ctx, audit.OpSetup, e.ID, report.Outcomes, err)
	if err != nil {
		i.logger.Error("entry setup failed", "entry_id", e.ID, "error", err)
		return false
	}
	return true
}

// UnloadEntry deactivates e. The result reflects the platform unload only.
func (i *Integration) UnloadEntry(ctx context.Context, e entry.Entry) (ok bool) {
	defer i.recoverInto("unload_entry", e.ID, &ok)

	report, err := i.lifecycle.Unload(ctx, e)
	i.logReport("unload_entry", report)
	i.record(ctx, audit.OpUnload, e.ID, report.Outcomes, err)
	if err != nil {
		i.logger.Error("entry unload failed", "entry_id", e.ID, "error", err)
		return false
	}
	return true
}

// MigrateEntry brings e to the current version. It returns true unless the
// migrator panics.
func (i *Integration) MigrateEntry(ctx context.Context, e *entry.Entry) (ok bool) {
	defer i.recoverInto("migrate_entry", e.ID, &ok)

	if i.migrator == nil || !migration.Needed(e) {
		return true
	}
	ok = i.migrator.Migrate(ctx, e)
	i.record(ctx, audit.OpMigrate, e.ID, nil, nil)
	return ok
}

// ReloadEntry unloads and sets up e again. Failures are only logged.
func (i *Integration) ReloadEntry(ctx context.Context, e entry.Entry) {
	var ok bool
	defer i.recoverInto("reload_entry", e.ID, &ok)

	err := i.lifecycle.Reload(ctx, e)
	i.record(ctx, audit.OpReload, e.ID, nil, err)
	if err != nil {
		i.logger.Warn("entry reload failed", "entry_id", e.ID, "error", err)
	}
}

// ReloadByID reloads the stored entry with the given id.
func (i *Integration) ReloadByID(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("unexpected error", "operation", "reload_entry", "entry_id", id, "panic", r)
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
	}()

	e, err := i.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading entry %s: %w", id, err)
	}
	err = i.lifecycle.Reload(ctx, *e)
	i.record(ctx, audit.OpReload, id, nil, err)
	return err
}

// EntryStatus is a stored entry with its activation state.
type EntryStatus struct {
	entry.Entry
	Active bool `json:"active"`
}

// Entries lists the stored entries and whether each is active.
func (i *Integration) Entries(ctx context.Context) ([]EntryStatus, error) {
	entries, err := i.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	registry := i.lifecycle.Registry()
	out := make([]EntryStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryStatus{Entry: e, Active: registry.Has(e.ID)})
	}
	return out, nil
}

// Active returns the number of active entries.
func (i *Integration) Active() int {
	return i.lifecycle.Registry().Len()
}

// Snapshot returns the latest coordinator data of an active entry.
func (i *Integration) Snapshot(entryID string) (coordinator.Snapshot, bool) {
	h, ok := i.lifecycle.Registry().Handle(entryID)
	if !ok || h == nil {
		return coordinator.Snapshot{}, false
	}
	return h.Data(), true
}

// recoverInto turns a panic in op into a false result. It must be deferred
// directly.
func (i *Integration) recoverInto(op, entryID string, ok *bool) {
	if r := recover(); r != nil {
		i.logger.Error("unexpected error", "operation", op, "entry_id", entryID, "panic", r)
		*ok = false
	}
}

// record stores an operation result. Failures to record are only logged.
func (i *Integration) record(ctx context.Context, op, entryID string, outcomes []lifecycle.Outcome, err error) {
	if i.audit == nil {
		return
	}
	rec := &audit.Record{EntryID: entryID, Operation: op, OK: err == nil, Source: "integration"}
	if err != nil {
		rec.Error = err.Error()
	}
	for _, o := range outcomes {
		step := audit.Step{Step: o.Step, Kind: o.Kind.String()}
		if o.Err != nil {
			step.Error = o.Err.Error()
		}
		rec.Steps = append(rec.Steps, step)
	}
	if aerr := i.audit.Record(context.WithoutCancel(ctx), rec); aerr != nil {
		i.logger.Warn("failed to record operation", "operation", op, "entry_id", entryID, "error", aerr)
	}
}

func (i *Integration) logReport(op string, report lifecycle.Report) {
	for _, o := range report.Outcomes {
		i.logger.Warn("step failed",
			"operation", op,
			"entry_id", report.EntryID,
			"step", o.Step,
			"kind", o.Kind.String(),
			"error", o.Err,
		)
	}
}
