package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

// Event names.
const (
	EventDailyReset      = "daily_reset"
	EventCyclingSnapshot = "cycling_snapshot"
)

// DefaultSnapshotInterval is used when BinderConfig.Interval is zero.
const DefaultSnapshotInterval = 5 * time.Minute

// CycleSource is the part of a coordinator the automations drive.
type CycleSource interface {
	Cycles() map[string]map[string]float64
	ResetDaily()
}

// Resolver looks up the active coordinator of an entry.
type Resolver interface {
	Handle(entryID string) (coordinator.Handle, bool)
}

// Publisher sends automation events.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Topics builds automation event topics.
type Topics interface {
	AutomationEvent(entryID, name string) string
}

// Logger is the logging interface used by the binder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Event is the payload of an automation event.
type Event struct {
	EntryID string                        `json:"entry_id"`
	Name    string                        `json:"name"`
	At      time.Time                     `json:"at"`
	Cycles  map[string]map[string]float64 `json:"cycles,omitempty"`
}

// BinderConfig configures a Binder.
type BinderConfig struct {
	Resolver  Resolver
	Publisher Publisher
	Topics    Topics

	// Interval between cycling snapshots. Zero uses DefaultSnapshotInterval.
	Interval time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Binder runs the cycling automations of bound entries.
type Binder struct {
	resolver  Resolver
	publisher Publisher
	topics    Topics
	interval  time.Duration
	clock     func() time.Time
	logger    Logger

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	entryID  string
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func (j *job) stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
	})
}

// NewBinder creates a Binder.
func NewBinder(cfg BinderConfig) *Binder {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSnapshotInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Binder{
		resolver:  cfg.Resolver,
		publisher: cfg.Publisher,
		topics:    cfg.Topics,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		logger:    noopLogger{},
		jobs:      make(map[string]*job),
	}
}

// SetLogger sets the logger. Call before the first Bind.
func (b *Binder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Bind starts the automations of e. Binding an already bound entry is a
// no-op.
func (b *Binder) Bind(_ context.Context, e entry.Entry) error {
	if e.ID == "" {
		return ErrNoEntryID
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[e.ID]; ok {
		return nil
	}

	j := &job{entryID: e.ID, done: make(chan struct{})}
	b.jobs[e.ID] = j
	j.wg.Add(1)
	go b.run(j)

	b.logger.Info("cycling automations bound", "entry_id", e.ID, "interval", b.interval.String())
	return nil
}

// Unbind stops the automations of an entry. Unbinding an unknown entry is
// a no-op.
func (b *Binder) Unbind(entryID string) error {
	b.mu.Lock()
	j, ok := b.jobs[entryID]
	delete(b.jobs, entryID)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	j.stop()
	b.logger.Info("cycling automations unbound", "entry_id", entryID)
	return nil
}

// Bound reports whether an entry has running automations.
func (b *Binder) Bound(entryID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.jobs[entryID]
	return ok
}

// Close stops every binding.
func (b *Binder) Close() {
	b.mu.Lock()
	jobs := b.jobs
	b.jobs = make(map[string]*job)
	b.mu.Unlock()

	for _, j := range jobs {
		j.stop()
	}
}

func (b *Binder) run(j *job) {
	defer j.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	midnight := time.NewTimer(untilMidnight(b.clock()))
	defer midnight.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-midnight.C:
			if err := b.ResetDaily(j.entryID); err != nil {
				b.logger.Warn("daily cycling reset failed", "entry_id", j.entryID, "error", err)
			}
			midnight.Reset(untilMidnight(b.clock()))
		case <-ticker.C:
			if err := b.PublishSnapshot(j.entryID); err != nil {
				b.logger.Warn("cycling snapshot failed", "entry_id", j.entryID, "error", err)
			}
		}
	}
}

// ResetDaily resets the daily counters of an entry and publishes a
// daily_reset event.
func (b *Binder) ResetDaily(entryID string) error {
	src, err := b.source(entryID)
	if err != nil {
		return err
	}
	src.ResetDaily()
	b.logger.Debug("daily cycling counters reset", "entry_id", entryID)
	return b.publish(Event{EntryID: entryID, Name: EventDailyReset, At: b.clock()})
}

// PublishSnapshot publishes the current cycling counters of an entry.
func (b *Binder) PublishSnapshot(entryID string) error {
	src, err := b.source(entryID)
	if err != nil {
		return err
	}
	return b.publish(Event{EntryID: entryID, Name: EventCyclingSnapshot, At: b.clock(), Cycles: src.Cycles()})
}

func (b *Binder) source(entryID string) (CycleSource, error) {
	if b.resolver == nil {
		return nil, ErrNotActive
	}
	h, ok := b.resolver.Handle(entryID)
	if !ok {
		return nil, ErrNotActive
	}
	src, ok := h.(CycleSource)
	if !ok {
		return nil, ErrNoCycles
	}
	return src, nil
}

func (b *Binder) publish(ev Event) error {
	if b.publisher == nil || b.topics == nil {
		return nil
	}
	if err := b.publisher.PublishJSON(b.topics.AutomationEvent(ev.EntryID, ev.Name), ev, false); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Name, err)
	}
	return nil
}

// untilMidnight returns the time from now to the next local midnight.
func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
