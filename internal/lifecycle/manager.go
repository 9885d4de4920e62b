package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/lambda-heatpumps/internal/address"
	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entity"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

// DefaultReloadGrace is the wait between unload and setup during a reload.
const DefaultReloadGrace = time.Second

// DefaultPlatforms are the platforms forwarded for every entry.
var DefaultPlatforms = []entity.Platform{entity.PlatformSensor, entity.PlatformClimate}

// Provisioner ensures lambda_wp_config.yaml exists. Setup treats a failure
// as best-effort since a missing file loads as the empty default config.
type Provisioner interface {
	EnsureDefaultConfig() (bool, error)
}

// Binder attaches the cyclic automations of an entry. Bind runs last in
// Setup and Unbind first in Unload.
type Binder interface {
	Bind(ctx context.Context, e entry.Entry) error
	Unbind(entryID string) error
}

// Services is the shared service registrar. Both calls must be idempotent;
// the manager activates it while at least one entry is registered.
type Services interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

// Platforms attaches and detaches the host platforms of an entry. Unload
// returns false when some platform could not be detached.
type Platforms interface {
	Forward(ctx context.Context, e entry.Entry, platforms []entity.Platform) error
	Unload(ctx context.Context, e entry.Entry, platforms []entity.Platform) (bool, error)
}

// Listeners registers callbacks for entry updates. The returned function
// removes the callback and is safe to call more than once.
type Listeners interface {
	AddUpdateListener(id string, fn entry.UpdateListener) (remove func())
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything. It is the default until SetLogger.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config wires a Manager. Registry and Factory are required; every other
// collaborator is optional and skipped when nil.
type Config struct {
	Registry    *Registry
	Factory     coordinator.Factory
	Provisioner Provisioner
	Binder      Binder
	Services    Services
	Platforms   Platforms
	Listeners   Listeners

	// PlatformList defaults to DefaultPlatforms.
	PlatformList []entity.Platform

	// ReloadGrace defaults to DefaultReloadGrace. Negative disables the wait.
	ReloadGrace time.Duration
}

// Manager runs setup, unload and reload of entries.
//
// Setups of different entries may run concurrently; reloads are serialised
// by one domain-wide lock. The shared services are active exactly while
// the registry is non-empty: every registry change is followed by
// syncServices, which compares the registry size with servicesActive
// under svcMu.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Collaborators are called without manager locks held, except
//     Services.Activate and Services.Deactivate which run under svcMu.
type Manager struct {
	registry    *Registry
	factory     coordinator.Factory
	provisioner Provisioner
	binder      Binder
	services    Services
	platforms   Platforms
	listeners   Listeners
	platformSet []entity.Platform
	grace       time.Duration
	logger      Logger

	reloadLock *semaphore.Weighted

	svcMu          sync.Mutex
	servicesActive bool

	// background tracks reloads started by entry update listeners.
	background sync.WaitGroup
}

// NewManager creates a Manager. A nil registry gets a fresh one. Log output
// is discarded until SetLogger is called.
func NewManager(cfg Config) *Manager {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if len(cfg.PlatformList) == 0 {
		cfg.PlatformList = DefaultPlatforms
	}
	switch {
	case cfg.ReloadGrace == 0:
		cfg.ReloadGrace = DefaultReloadGrace
	case cfg.ReloadGrace < 0:
		cfg.ReloadGrace = 0
	}

	return &Manager{
		registry:    cfg.Registry,
		factory:     cfg.Factory,
		provisioner: cfg.Provisioner,
		binder:      cfg.Binder,
		services:    cfg.Services,
		platforms:   cfg.Platforms,
		listeners:   cfg.Listeners,
		platformSet: cfg.PlatformList,
		grace:       cfg.ReloadGrace,
		logger:      noopLogger{},
		reloadLock:  semaphore.NewWeighted(1),
	}
}

// SetLogger sets the logger for the manager. Call it before the first Setup.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Registry returns the manager's registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// ServicesActive reports whether the shared services are activated.
func (m *Manager) ServicesActive() bool {
	m.svcMu.Lock()
	defer m.svcMu.Unlock()
	return m.servicesActive
}

// Wait blocks until reloads started by entry updates have finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Setup activates e in this order: lambda_wp_config.yaml, address plan log,
// coordinator init and first refresh, registration, platform forwarding,
// services, update listener, automations.
//
// A coordinator without data after the first refresh aborts the setup
// before registration (ErrNoData). A platform forwarding failure after
// registration rolls the registration back. On error the entry is not
// registered and any coordinator that was started has been shut down.
// Collaborator panics are recovered and returned as ErrPanic.
func (m *Manager) Setup(ctx context.Context, e entry.Entry) (report Report, err error) {
	report.EntryID = e.ID
	if m.registry.Has(e.ID) {
		return report, ErrAlreadyActive
	}

	var reg *Registration
	var handle coordinator.Handle
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			report.add(StepSetup, Unexpected, err)
			m.logger.Error("unexpected error during setup", "entry_id", e.ID, "panic", r)
			if cur, ok := m.registry.Get(e.ID); ok && cur == reg {
				m.rollback(ctx, reg)
			} else if handle != nil {
				m.shutdownHandle(ctx, &report, e.ID, handle)
			}
		}
	}()

	// 1. lambda_wp_config.yaml
	if m.provisioner != nil {
		if _, perr := m.provisioner.EnsureDefaultConfig(); perr != nil {
			report.add(StepProvision, BestEffort, perr)
			m.logger.Warn("could not write default config", "entry_id", e.ID, "error", perr)
		}
	}

	// 2-3. device counts and address plans, logged only
	counts := e.Counts()
	plans := address.PlanAll(address.Counts{
		address.HeatPump:       counts.HeatPumps,
		address.Boiler:         counts.Boilers,
		address.Buffer:         counts.Buffers,
		address.Solar:          counts.Solar,
		address.HeatingCircuit: counts.HeatingCircuits,
	})
	m.logger.Debug("address plans",
		"entry_id", e.ID,
		"hp", plans[address.HeatPump],
		"boil", plans[address.Boiler],
		"buff", plans[address.Buffer],
		"sol", plans[address.Solar],
		"hc", plans[address.HeatingCircuit],
	)

	// 4. coordinator
	if m.factory == nil {
		report.add(StepCoordinator, Fatal, ErrNoFactory)
		return report, ErrNoFactory
	}
	handle, err = m.factory(e)
	if err != nil {
		err = fmt.Errorf("creating coordinator: %w", err)
		report.add(StepCoordinator, Fatal, err)
		m.logger.Error("failed to create coordinator", "entry_id", e.ID, "error", err)
		return report, err
	}
	if err = handle.Init(ctx); err != nil {
		err = fmt.Errorf("initialising coordinator: %w", err)
		report.add(StepCoordinator, Fatal, err)
		m.logger.Error("failed to initialise coordinator", "entry_id", e.ID, "error", err)
		m.shutdownHandle(ctx, &report, e.ID, handle)
		return report, err
	}
	if rerr := handle.Refresh(ctx); rerr != nil {
		m.logger.Warn("first refresh failed", "entry_id", e.ID, "error", rerr)
	}

	// 5. guard
	if handle.Data().Empty() {
		err = ErrNoData
		report.add(StepRefresh, Fatal, err)
		m.logger.Error("failed to fetch initial data from Lambda device", "entry_id", e.ID)
		m.shutdownHandle(ctx, &report, e.ID, handle)
		return report, err
	}

	// 6. register
	reg = &Registration{Entry: e.Clone(), Handle: handle}
	if holder, ok := handle.(coordinator.ConnectionHolder); ok {
		reg.Conn = holder.Connection()
	}
	if _, err = m.registry.Insert(reg); err != nil {
		report.add(StepRegister, Fatal, err)
		m.shutdownHandle(ctx, &report, e.ID, handle)
		reg = nil
		return report, err
	}

	// 7. platforms
	if m.platforms != nil {
		if ferr := m.platforms.Forward(ctx, e, m.platformSet); ferr != nil {
			err = fmt.Errorf("forwarding platforms: %w", ferr)
			report.add(StepForward, Unexpected, err)
			m.logger.Error("failed to forward platforms", "entry_id", e.ID, "error", err)
			m.rollback(ctx, reg)
			return report, err
		}
	}

	// 8. services on 0→1
	m.syncServices(ctx, &report)

	// 9. reload on entry updates
	if m.listeners != nil {
		reg.removeListener = m.listeners.AddUpdateListener(e.ID, m.onEntryUpdated)
	}

	// 10. automations
	if m.binder != nil {
		if berr := m.binder.Bind(ctx, e); berr != nil {
			report.add(StepBind, BestEffort, berr)
			m.logger.Warn("failed to bind cycling automations", "entry_id", e.ID, "error", berr)
		}
	}

	m.logger.Info("entry set up", "entry_id", e.ID, "active_entries", m.registry.Len())
	return report, nil
}

// Unload deactivates e: automations, platforms, device connection,
// coordinator, registration and, when the registry becomes empty, the
// shared services. The error reflects only the platform unload; when it
// fails the entry stays registered and the later steps do not run. Every
// other failure is best-effort and recorded in the report.
func (m *Manager) Unload(ctx context.Context, e entry.Entry) (Report, error) {
	report := Report{EntryID: e.ID}

	// 1. automations
	if m.binder != nil {
		if err := m.binder.Unbind(e.ID); err != nil {
			report.add(StepUnbind, BestEffort, err)
			m.logger.Warn("failed to unbind cycling automations", "entry_id", e.ID, "error", err)
		}
	}

	// 2. platforms
	if m.platforms != nil {
		ok, err := m.platforms.Unload(ctx, e, m.platformSet)
		if err == nil && !ok {
			err = ErrPlatformUnload
		}
		if err != nil {
			if !errors.Is(err, ErrPlatformUnload) {
				err = fmt.Errorf("%w: %w", ErrPlatformUnload, err)
			}
			report.add(StepUnload, Fatal, err)
			m.logger.Error("failed to unload platforms", "entry_id", e.ID, "error", err)
			return report, err
		}
	}

	// 3-5. connection, coordinator, registry, services on 1→0
	m.release(ctx, &report, e.ID)
	m.syncServices(ctx, &report)
	m.logger.Info("entry unloaded", "entry_id", e.ID, "active_entries", m.registry.Len())
	return report, nil
}

// release tears down the registration of an entry, if any: connection,
// coordinator, update listener and registry slot. The services are left
// alone; callers follow with syncServices unless a setup of the same entry
// comes next. It reports whether a registration was removed.
func (m *Manager) release(ctx context.Context, report *Report, entryID string) bool {
	reg, ok := m.registry.Get(entryID)
	if !ok {
		return false
	}

	if reg.Conn != nil {
		if err := reg.Conn.Close(); err != nil {
			report.add(StepCloseConn, BestEffort, err)
			m.logger.Warn("failed to close connection", "entry_id", entryID, "error", err)
		}
	}
	m.shutdownHandle(ctx, report, entryID, reg.Handle)
	if reg.removeListener != nil {
		reg.removeListener()
	}

	removed, _ := m.registry.Remove(entryID)
	return removed != nil
}

// syncServices activates the shared services when the registry is
// non-empty and deactivates them when it is empty. Concurrent setups and
// rollbacks each end with a call here, so the last call sees the final
// registry size.
func (m *Manager) syncServices(ctx context.Context, report *Report) {
	if m.services == nil {
		return
	}

	m.svcMu.Lock()
	defer m.svcMu.Unlock()

	want := m.registry.Len() > 0
	if want == m.servicesActive {
		return
	}
	m.servicesActive = want

	if want {
		if err := m.services.Activate(ctx); err != nil {
			report.add(StepActivate, BestEffort, err)
			m.logger.Warn("failed to register services", "error", err)
		}
		return
	}
	if err := m.services.Deactivate(ctx); err != nil {
		report.add(StepDeactivate, BestEffort, err)
		m.logger.Warn("failed to unregister services", "error", err)
	}
}

// rollback undoes a registration made earlier in the same Setup.
func (m *Manager) rollback(ctx context.Context, reg *Registration) {
	var report Report
	m.release(ctx, &report, reg.Entry.ID)
	if m.binder != nil {
		m.binder.Unbind(reg.Entry.ID) //nolint:errcheck // Best-effort rollback
	}
	m.syncServices(ctx, &report)
	if !report.OK() {
		m.logger.Warn("rollback incomplete", "entry_id", reg.Entry.ID, "error", report.Err())
	}
}

// shutdownHandle stops a coordinator and records a failure in report as
// best-effort.
func (m *Manager) shutdownHandle(ctx context.Context, report *Report, entryID string, h coordinator.Handle) {
	if err := h.Shutdown(ctx); err != nil {
		report.add(StepShutdown, BestEffort, err)
		m.logger.Warn("coordinator shutdown failed", "entry_id", entryID, "error", err)
	}
}

// onEntryUpdated is the update listener of every registered entry. The
// reload runs detached because the store invokes listeners synchronously
// from UpdateData, and Reload unloads the listener that is running. Wait
// drains these reloads.
func (m *Manager) onEntryUpdated(_ context.Context, e entry.Entry) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		if err := m.Reload(context.Background(), e); err != nil {
			m.logger.Warn("reload after entry update failed", "entry_id", e.ID, "error", err)
		}
	}()
}
