package coordinator

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/address"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/provision"
)

// DefaultUpdateInterval is the polling interval when the entry sets none.
const DefaultUpdateInterval = 30 * time.Second

// Handle is the live polling state of one configuration entry.
type Handle interface {
	// Init prepares the handle and starts background polling.
	Init(ctx context.Context) error

	// Refresh polls the device once. The new data is visible through Data.
	Refresh(ctx context.Context) error

	// Data returns the last snapshot. It is empty until a poll succeeded.
	Data() Snapshot

	// Shutdown stops polling and releases resources.
	Shutdown(ctx context.Context) error
}

// ConnectionHolder is implemented by handles with a closable device
// connection.
type ConnectionHolder interface {
	Connection() io.Closer
}

// Factory builds a handle for an entry.
type Factory func(e entry.Entry) (Handle, error)

// Logger is the logging interface used by the coordinator.
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

// StatePublisher receives snapshots for the MQTT state topics.
type StatePublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Telemetry receives snapshots for time-series storage.
type Telemetry interface {
	WriteRegisters(entryID, device string, values map[string]float64, ts time.Time)
	WritePoll(entryID string, devices int, duration time.Duration, ok bool)
}

// ConfigLoader loads lambda_wp_config.yaml.
type ConfigLoader interface {
	Load() (*provision.LambdaConfig, error)
}

// Topics builds the MQTT topics a coordinator publishes to.
type Topics interface {
	EntryState(entryID, device string) string
	EntryAvailability(entryID string) string
}

// Options configures a Coordinator.
type Options struct {
	// Port, SlaveID and Timeout apply when the entry does not set them.
	Port    int
	SlaveID int
	Timeout time.Duration

	// UpdateInterval applies when the entry has no update_interval option.
	// Zero uses DefaultUpdateInterval.
	UpdateInterval time.Duration

	Dialer    Dialer
	Config    ConfigLoader
	Publisher StatePublisher
	Topics    Topics
	Telemetry Telemetry
	Logger    Logger
}

// Coordinator polls the devices of one entry over Modbus TCP.
type Coordinator struct {
	entry    entry.Entry
	counts   entry.Counts
	interval time.Duration
	conn     *connection

	loader    ConfigLoader
	publisher StatePublisher
	topics    Topics
	telemetry Telemetry
	logger    Logger

	// pollMu serialises polls from the loop, Refresh and ReadRegister, and
	// orders them against the connection close in Shutdown. Holders check
	// isShutdown after taking it.
	pollMu sync.Mutex

	mu       sync.RWMutex
	data     Snapshot
	lambda   *provision.LambdaConfig
	cycles   *cycleCounter
	started  bool
	shutdown bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a coordinator for e. It does not connect; Init does.
func New(e entry.Entry, opts Options) (*Coordinator, error) {
	host := e.StringData(entry.KeyHost, "")
	if host == "" {
		return nil, ErrNoHost
	}
	if opts.Dialer == nil {
		opts.Dialer = DialTCP
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Port == 0 {
		opts.Port = 502
	}
	if opts.SlaveID == 0 {
		opts.SlaveID = 1
	}
	interval := opts.UpdateInterval
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}

	c := &Coordinator{
		entry:    e.Clone(),
		counts:   e.Counts(),
		interval: e.DurationOption(entry.KeyUpdateInterval, interval),
		conn: &connection{
			dial:    opts.Dialer,
			host:    host,
			port:    e.IntData(entry.KeyPort, opts.Port),
			slaveID: byte(e.IntData(entry.KeySlaveID, opts.SlaveID)), //nolint:gosec // slave ids are 1..247
			timeout: opts.Timeout,
		},
		loader:    opts.Config,
		publisher: opts.Publisher,
		topics:    opts.Topics,
		telemetry: opts.Telemetry,
		logger:    opts.Logger,
		data:      Snapshot{Devices: map[string]map[string]float64{}},
		done:      make(chan struct{}),
	}
	c.cycles = newCycleCounter(nil)
	return c, nil
}

// NewFactory returns a Factory building coordinators with opts.
func NewFactory(opts Options) Factory {
	return func(e entry.Entry) (Handle, error) {
		return New(e, opts)
	}
}

// Connection returns the device connection. Closing it forces a reconnect
// on the next poll.
func (c *Coordinator) Connection() io.Closer {
	return c.conn
}

// Interval returns the polling interval.
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Init loads the register configuration and starts the polling loop. The
// loop does not poll immediately; callers force the first poll with Refresh.
func (c *Coordinator) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lambda := &provision.LambdaConfig{}
	if c.loader != nil {
		loaded, err := c.loader.Load()
		if err != nil {
			return fmt.Errorf("loading register config: %w", err)
		}
		lambda = loaded
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return ErrShutdown
	}
	if c.started {
		return nil
	}
	c.lambda = lambda
	c.cycles = newCycleCounter(lambda.Offset)
	c.started = true

	c.wg.Add(1)
	go c.pollLoop()

	c.logger.Debug("coordinator initialised",
		"entry_id", c.entry.ID,
		"host", c.conn.host,
		"port", c.conn.port,
		"interval", c.interval.String(),
		"disabled_registers", len(lambda.DisabledRegisters),
	)
	return nil
}

// Refresh polls every planned device once.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.RLock()
	started, shutdown := c.started, c.shutdown
	c.mu.RUnlock()
	if shutdown {
		return ErrShutdown
	}
	if !started {
		return ErrNotInitialised
	}
	return c.poll(ctx)
}

// Data returns a copy of the last successful snapshot.
func (c *Coordinator) Data() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.clone()
}

// Cycles returns the cycling counters per heat pump.
func (c *Coordinator) Cycles() map[string]map[string]float64 {
	c.mu.RLock()
	cycles := c.cycles
	c.mu.RUnlock()
	return cycles.snapshot()
}

// ResetDaily zeroes the daily cycling counters.
func (c *Coordinator) ResetDaily() {
	c.mu.RLock()
	cycles := c.cycles
	c.mu.RUnlock()
	cycles.resetDaily()
}

// Shutdown stops the polling loop, closes the connection and marks the
// entry unavailable. It is safe to call more than once.
func (c *Coordinator) Shutdown(_ context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.shutdown = true
		c.mu.Unlock()

		close(c.done)
		c.wg.Wait()

		c.pollMu.Lock()
		cerr := c.conn.Close()
		c.pollMu.Unlock()
		if cerr != nil {
			err = fmt.Errorf("closing modbus connection: %w", cerr)
		}
		c.publishAvailability(false)
		c.logger.Debug("coordinator shut down", "entry_id", c.entry.ID)
	})
	return err
}

// ReadRegister reads one raw holding register. Disabled registers are
// refused.
func (c *Coordinator) ReadRegister(ctx context.Context, addr int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	lambda := c.lambda
	c.mu.RUnlock()
	if lambda != nil && lambda.IsDisabled(addr) {
		return 0, ErrRegisterDisabled
	}
	if addr < 0 || addr > 0xFFFF {
		return 0, fmt.Errorf("coordinator: register %d out of range", addr)
	}

	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.isShutdown() {
		return 0, ErrShutdown
	}

	t, err := c.conn.get()
	if err != nil {
		return 0, err
	}
	raw, err := t.ReadHoldingRegisters(uint16(addr), 1) //nolint:gosec // range checked above
	if err != nil {
		c.conn.Close() //nolint:errcheck // Reconnect on next read
		return 0, fmt.Errorf("reading register %d: %w", addr, err)
	}
	if len(raw) < 2 {
		return 0, fmt.Errorf("reading register %d: short response", addr)
	}
	return int(int16(binary.BigEndian.Uint16(raw))), nil //nolint:gosec // registers are signed 16-bit
}

func (c *Coordinator) isShutdown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdown
}

func (c *Coordinator) pollLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.interval)
			if err := c.poll(ctx); err != nil {
				c.logger.Warn("poll failed", "entry_id", c.entry.ID, "error", err)
			}
			cancel()
		}
	}
}

// poll reads all devices. A poll that reads at least one register replaces
// the snapshot; a poll that reads nothing returns ErrNoData and keeps the
// previous one.
func (c *Coordinator) poll(ctx context.Context) error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.isShutdown() {
		return ErrShutdown
	}

	start := time.Now()
	snap, err := c.read(ctx)
	duration := time.Since(start)

	if err == nil && snap.Empty() {
		err = ErrNoData
	}
	if c.telemetry != nil {
		c.telemetry.WritePoll(c.entry.ID, len(snap.Devices), duration, err == nil)
	}
	if err != nil {
		c.conn.Close() //nolint:errcheck // Reconnect on next poll
		c.publishAvailability(false)
		return err
	}

	c.trackCycles(snap)

	c.mu.Lock()
	c.data = snap
	c.mu.Unlock()

	c.publishSnapshot(snap)
	c.logger.Debug("poll complete",
		"entry_id", c.entry.ID,
		"devices", len(snap.Devices),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

func (c *Coordinator) read(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Devices: map[string]map[string]float64{}, UpdatedAt: time.Now()}

	t, err := c.conn.get()
	if err != nil {
		return snap, err
	}

	c.mu.RLock()
	lambda := c.lambda
	c.mu.RUnlock()
	disabled := func(int) bool { return false }
	if lambda != nil {
		disabled = lambda.IsDisabled
	}

	counts := address.Counts{
		address.HeatPump:       c.counts.HeatPumps,
		address.Boiler:         c.counts.Boilers,
		address.Buffer:         c.counts.Buffers,
		address.Solar:          c.counts.Solar,
		address.HeatingCircuit: c.counts.HeatingCircuits,
	}

	var failures int
	for _, category := range address.Categories() {
		regs := templates[category]
		for i, base := range address.Plan(category, counts[category]) {
			device := address.DeviceName(category, i+1)
			values := make(map[string]float64, len(regs))
			for _, b := range blocks(base, regs, disabled) {
				if err := ctx.Err(); err != nil {
					return snap, err
				}
				raw, err := t.ReadHoldingRegisters(uint16(b.start), uint16(len(b.regs))) //nolint:gosec // addresses below 6000
				if err != nil {
					failures++
					c.logger.Error("error reading registers",
						"entry_id", c.entry.ID,
						"address", b.start,
						"count", len(b.regs),
						"error", err,
					)
					continue
				}
				decode(raw, b.regs, values)
			}
			if len(values) > 0 {
				snap.Devices[device] = values
			}
		}
	}

	if snap.Empty() && failures > 0 {
		return snap, fmt.Errorf("%w: %d reads failed", ErrNoData, failures)
	}
	return snap, nil
}

// decode converts big-endian register words into scaled values. Short
// responses decode as many registers as they hold.
func decode(raw []byte, regs []Register, into map[string]float64) {
	for i, r := range regs {
		if len(raw) < 2*(i+1) {
			return
		}
		word := int16(binary.BigEndian.Uint16(raw[2*i:])) //nolint:gosec // registers are signed 16-bit
		into[r.Key] = float64(word) * r.scale()
	}
}

func (c *Coordinator) trackCycles(snap Snapshot) {
	for i := 1; i <= c.counts.HeatPumps; i++ {
		device := address.DeviceName(address.HeatPump, i)
		v, ok := snap.Value(device, OperatingStateKey)
		if !ok {
			continue
		}
		for _, mode := range c.cycles.observe(device, int(v)) {
			c.logger.Info("heat pump entered mode", "entry_id", c.entry.ID, "device", device, "mode", mode)
		}
	}
}

func (c *Coordinator) publishSnapshot(snap Snapshot) {
	for _, device := range snap.DeviceNames() {
		values := snap.Devices[device]
		if c.telemetry != nil {
			c.telemetry.WriteRegisters(c.entry.ID, device, values, snap.UpdatedAt)
		}
		if c.publisher != nil && c.topics != nil {
			if err := c.publisher.PublishJSON(c.topics.EntryState(c.entry.ID, device), values, true); err != nil {
				c.logger.Warn("failed to publish state", "entry_id", c.entry.ID, "device", device, "error", err)
			}
		}
	}
	c.publishAvailability(true)
}

type availability struct {
	Online bool `json:"online"`
}

func (c *Coordinator) publishAvailability(online bool) {
	if c.publisher == nil || c.topics == nil {
		return
	}
	err := c.publisher.PublishJSON(c.topics.EntryAvailability(c.entry.ID), availability{Online: online}, true)
	if err != nil {
		c.logger.Warn("failed to publish availability", "entry_id", c.entry.ID, "error", err)
	}
}
