package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/lambda-heatpumps/internal/entity"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/mqtt"
	"github.com/nerrad567/lambda-heatpumps/internal/provision"
)

// Broker is the MQTT surface the attacher needs.
type Broker interface {
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
}

// Registry records the announced entities.
type Registry interface {
	Upsert(ctx context.Context, e *entity.Entity) error
}

// OverrideLoader supplies sensor display-name overrides.
type OverrideLoader interface {
	Load() (*provision.LambdaConfig, error)
}

// Logger is the logging interface used by the attacher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Attacher forwards and unloads entry platforms.
type Attacher struct {
	broker    Broker
	registry  Registry
	overrides OverrideLoader
	logger    Logger
	topics    mqtt.Topics

	mu     sync.Mutex
	active map[string]map[string]string // entry id → discovery topic → entity id
}

// NewAttacher creates an Attacher. registry and overrides may be nil.
func NewAttacher(broker Broker, registry Registry, overrides OverrideLoader) *Attacher {
	return &Attacher{
		broker:    broker,
		registry:  registry,
		overrides: overrides,
		logger:    noopLogger{},
		active:    make(map[string]map[string]string),
	}
}

// SetLogger sets the logger.
func (a *Attacher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	a.logger = logger
}

// Forward announces the entities of e on the given platforms. A failure
// part way leaves the already announced entities active so Unload can
// clear them.
func (a *Attacher) Forward(ctx context.Context, e entry.Entry, platforms []entity.Platform) error {
	if a.broker == nil {
		return ErrNoBroker
	}

	overrides := map[string]string{}
	if a.overrides != nil {
		cfg, err := a.overrides.Load()
		if err != nil {
			a.logger.Warn("sensor name overrides unavailable", "entry_id", e.ID, "error", err)
		} else {
			overrides = cfg.SensorNameOverrides
		}
	}

	announcements, err := plan(e, platforms, overrides)
	if err != nil {
		return err
	}

	for i := range announcements {
		ann := &announcements[i]
		topic := a.topics.Discovery(ann.component, ann.objectID)
		if err := a.broker.PublishJSON(topic, ann.payload, true); err != nil {
			return fmt.Errorf("announcing %s: %w", ann.objectID, err)
		}
		a.track(e.ID, topic, ann.entity.EntityID)

		if a.registry != nil {
			if err := a.registry.Upsert(ctx, &ann.entity); err != nil {
				a.logger.Warn("failed to record entity", "entity_id", ann.entity.EntityID, "error", err)
			}
		}
	}

	a.logger.Info("platforms forwarded", "entry_id", e.ID, "platforms", platforms, "entities", len(announcements))
	return nil
}

// Unload clears the discovery configs of e. It reports false when any
// config could not be cleared; those stay tracked for a later attempt.
func (a *Attacher) Unload(_ context.Context, e entry.Entry, platforms []entity.Platform) (bool, error) {
	if a.broker == nil {
		return false, ErrNoBroker
	}

	want := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		want[string(p)] = true
	}

	var errs []error
	for _, topic := range a.topicsFor(e.ID) {
		if !want[componentOf(topic)] {
			continue
		}
		if err := a.broker.ClearRetained(topic); err != nil {
			errs = append(errs, fmt.Errorf("clearing %s: %w", topic, err))
			continue
		}
		a.untrack(e.ID, topic)
	}

	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	a.logger.Info("platforms unloaded", "entry_id", e.ID, "platforms", platforms)
	return true, nil
}

// ActiveEntities returns the announced entity ids of an entry, sorted.
func (a *Attacher) ActiveEntities(entryID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.active[entryID]))
	for _, id := range a.active[entryID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a *Attacher) track(entryID, topic, entityID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active[entryID] == nil {
		a.active[entryID] = make(map[string]string)
	}
	a.active[entryID][topic] = entityID
}

func (a *Attacher) untrack(entryID, topic string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active[entryID], topic)
	if len(a.active[entryID]) == 0 {
		delete(a.active, entryID)
	}
}

func (a *Attacher) topicsFor(entryID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	topics := make([]string, 0, len(a.active[entryID]))
	for t := range a.active[entryID] {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// componentOf extracts the component from homeassistant/<component>/<id>/config.
func componentOf(topic string) string {
	rest := strings.TrimPrefix(topic, mqtt.DiscoveryPrefix+"/")
	component, _, _ := strings.Cut(rest, "/")
	return component
}
