package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/mqtt"
)

// Service names.
const (
	ServiceReadRegister = "read_register"
	ServiceRefresh      = "refresh"
	ServiceReload       = "reload"
)

// DefaultCallTimeout bounds a single service call.
const DefaultCallTimeout = 10 * time.Second

// Broker is the MQTT surface the registrar needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
}

// Resolver looks up the active coordinator of an entry.
type Resolver interface {
	Handle(entryID string) (coordinator.Handle, bool)
}

// Reloader reloads an entry by id.
type Reloader interface {
	ReloadByID(ctx context.Context, entryID string) error
}

// RegisterReader is implemented by coordinators that can read raw registers.
type RegisterReader interface {
	ReadRegister(ctx context.Context, addr int) (int, error)
}

// Logger is the logging interface used by the registrar.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Call is a decoded service invocation.
type Call struct {
	CallID  string `json:"call_id"`
	EntryID string `json:"entry_id"`
	Address *int   `json:"address,omitempty"`
}

// Response is published for every service call.
type Response struct {
	CallID  string `json:"call_id"`
	Service string `json:"service"`
	EntryID string `json:"entry_id,omitempty"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type handlerFunc func(ctx context.Context, call Call) (any, error)

// Config configures a Registrar.
type Config struct {
	Broker   Broker
	Resolver Resolver
	Reloader Reloader

	// CallTimeout bounds a call. Zero uses DefaultCallTimeout.
	CallTimeout time.Duration
}

// Registrar owns the service subscriptions.
type Registrar struct {
	broker   Broker
	resolver Resolver
	reloader Reloader
	timeout  time.Duration
	logger   Logger
	topics   mqtt.Topics
	handlers map[string]handlerFunc

	mu      sync.Mutex
	active  bool
	closing bool

	// inflight tracks detached reloads so Wait can drain them.
	inflight sync.WaitGroup
}

// New creates a Registrar. It subscribes nothing until Activate.
func New(cfg Config) *Registrar {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	r := &Registrar{
		broker:   cfg.Broker,
		resolver: cfg.Resolver,
		reloader: cfg.Reloader,
		timeout:  cfg.CallTimeout,
		logger:   noopLogger{},
	}
	r.handlers = map[string]handlerFunc{
		ServiceReadRegister: r.readRegister,
		ServiceRefresh:      r.refresh,
		ServiceReload:       r.reload,
	}
	return r
}

// SetLogger sets the logger. Call before Activate.
func (r *Registrar) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetReloader sets the reloader used by the reload service. It is set after
// construction when the reloader itself depends on the registrar.
func (r *Registrar) SetReloader(reloader Reloader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloader = reloader
}

// Services returns the names of the registered services.
func (r *Registrar) Services() []string {
	return []string{ServiceReadRegister, ServiceRefresh, ServiceReload}
}

// Active reports whether the services are subscribed.
func (r *Registrar) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Activate subscribes the service and entry command topics. Calling it
// while active is a no-op. On failure nothing stays subscribed.
func (r *Registrar) Activate(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return nil
	}
	if r.broker == nil {
		return errors.New("services: no broker configured")
	}

	if err := r.broker.Subscribe(r.topics.AllServiceCalls(), 1, r.handleServiceCall); err != nil {
		return fmt.Errorf("subscribing service calls: %w", err)
	}
	if err := r.broker.Subscribe(r.topics.AllEntryCommands(), 1, r.handleEntryCommand); err != nil {
		r.broker.Unsubscribe(r.topics.AllServiceCalls()) //nolint:errcheck // Rolling back
		return fmt.Errorf("subscribing entry commands: %w", err)
	}

	r.active = true
	r.logger.Info("services registered", "services", r.Services())
	return nil
}

// Deactivate unsubscribes the service topics. Calling it while inactive is
// a no-op. The registrar counts as inactive even if unsubscribing fails.
func (r *Registrar) Deactivate(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil
	}
	r.active = false

	errs := []error{}
	for _, topic := range []string{r.topics.AllServiceCalls(), r.topics.AllEntryCommands()} {
		if err := r.broker.Unsubscribe(topic); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing %s: %w", topic, err))
		}
	}
	r.logger.Info("services unregistered")
	return errors.Join(errs...)
}

// Wait blocks until detached reloads started by calls have finished.
func (r *Registrar) Wait() {
	r.inflight.Wait()
}

// Drain refuses further reload calls with ErrClosed and waits for the
// detached reloads already started. Call it before stopping the lifecycle
// manager so no reload sets an entry up after shutdown.
func (r *Registrar) Drain() {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	r.inflight.Wait()
}

// Invoke runs a service directly.
func (r *Registrar) Invoke(ctx context.Context, service string, call Call) (any, error) {
	h, ok := r.handlers[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if call.EntryID == "" {
		return nil, fmt.Errorf("%w: entry_id is required", ErrInvalidCall)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return h(ctx, call)
}

func (r *Registrar) handleServiceCall(topic string, payload []byte) error {
	service, ok := mqtt.ParseServiceCall(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidCall, topic)
	}

	var call Call
	decodeErr := json.Unmarshal(payload, &call)
	if call.CallID == "" {
		call.CallID = uuid.NewString()
	}

	resp := Response{CallID: call.CallID, Service: service, EntryID: call.EntryID}
	var err error
	if decodeErr != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCall, decodeErr)
	} else {
		resp.Result, err = r.Invoke(context.Background(), service, call)
	}
	if err != nil {
		resp.Error = err.Error()
		r.logger.Warn("service call failed", "service", service, "entry_id", call.EntryID, "error", err)
	} else {
		resp.OK = true
	}

	if perr := r.broker.PublishJSON(r.topics.ServiceResponse(service, call.CallID), resp, false); perr != nil {
		r.logger.Error("failed to publish service response", "service", service, "error", perr)
	}
	return nil
}

func (r *Registrar) handleEntryCommand(topic string, payload []byte) error {
	entryID, command, ok := mqtt.ParseEntryCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidCall, topic)
	}

	call := Call{EntryID: entryID}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &call); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCall, err)
		}
		call.EntryID = entryID
	}

	if _, err := r.Invoke(context.Background(), command, call); err != nil {
		r.logger.Warn("entry command failed", "entry_id", entryID, "command", command, "error", err)
		return err
	}
	return nil
}

func (r *Registrar) handle(entryID string) (coordinator.Handle, error) {
	if r.resolver == nil {
		return nil, ErrEntryNotActive
	}
	h, ok := r.resolver.Handle(entryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotActive, entryID)
	}
	return h, nil
}

func (r *Registrar) readRegister(ctx context.Context, call Call) (any, error) {
	if call.Address == nil {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidCall)
	}
	h, err := r.handle(call.EntryID)
	if err != nil {
		return nil, err
	}
	reader, ok := h.(RegisterReader)
	if !ok {
		return nil, ErrNotSupported
	}
	value, err := reader.ReadRegister(ctx, *call.Address)
	if err != nil {
		return nil, err
	}
	return map[string]int{"address": *call.Address, "value": value}, nil
}

func (r *Registrar) refresh(ctx context.Context, call Call) (any, error) {
	h, err := r.handle(call.EntryID)
	if err != nil {
		return nil, err
	}
	if err := h.Refresh(ctx); err != nil {
		return nil, err
	}
	return h.Data(), nil
}

// reload runs detached: a reload outlives the call and the lock it takes
// may be held by another reload.
func (r *Registrar) reload(_ context.Context, call Call) (any, error) {
	r.mu.Lock()
	reloader := r.reloader
	if r.closing {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if reloader == nil {
		r.mu.Unlock()
		return nil, ErrNotSupported
	}
	// Add under mu so Drain never waits on a zero counter while a reload
	// is about to start.
	r.inflight.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.inflight.Done()
		if err := reloader.ReloadByID(context.Background(), call.EntryID); err != nil {
			r.logger.Warn("reload via service failed", "entry_id", call.EntryID, "error", err)
		}
	}()
	return "scheduled", nil
}
