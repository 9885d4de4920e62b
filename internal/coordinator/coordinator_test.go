package coordinator

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/mqtt"
	"github.com/nerrad567/lambda-heatpumps/internal/provision"
)

type readCall struct {
	start    uint16
	quantity uint16
}

// fakeTransport serves registers from a map. Unset registers read as 0.
type fakeTransport struct {
	mu        sync.Mutex
	registers map[uint16]int16
	fail      bool
	reads     []readCall
	closed    int
}

func (f *fakeTransport) ReadHoldingRegisters(start, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, readCall{start, quantity})
	if f.fail {
		return nil, errors.New("modbus exception 2")
	}
	out := make([]byte, 2*quantity)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(out[2*i:], uint16(f.registers[start+i])) //nolint:gosec // test data
	}
	return out, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) set(addr uint16, v int16) {
	f.mu.Lock()
	f.registers[addr] = v
	f.mu.Unlock()
}

func (f *fakeTransport) readCalls() []readCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]readCall(nil), f.reads...)
}

type fakeDialer struct {
	mu        sync.Mutex
	transport *fakeTransport
	err       error
	dials     int
}

func (d *fakeDialer) dial(string, int, byte, time.Duration) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeLoader struct {
	cfg *provision.LambdaConfig
	err error
}

func (l fakeLoader) Load() (*provision.LambdaConfig, error) {
	return l.cfg, l.err
}

type published struct {
	topic    string
	payload  any
	retained bool
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *mockPublisher) PublishJSON(topic string, v any, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, v, retained})
	return nil
}

func (p *mockPublisher) last(topic string) (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].topic == topic {
			return p.msgs[i], true
		}
	}
	return published{}, false
}

type mockTelemetry struct {
	mu      sync.Mutex
	devices []string
	polls   []bool
}

func (m *mockTelemetry) WriteRegisters(_ string, device string, _ map[string]float64, _ time.Time) {
	m.mu.Lock()
	m.devices = append(m.devices, device)
	m.mu.Unlock()
}

func (m *mockTelemetry) WritePoll(_ string, _ int, _ time.Duration, ok bool) {
	m.mu.Lock()
	m.polls = append(m.polls, ok)
	m.mu.Unlock()
}

func testEntry(data map[string]any) entry.Entry {
	d := map[string]any{entry.KeyHost: "192.0.2.10"}
	for k, v := range data {
		d[k] = v
	}
	return entry.Entry{ID: "entry-1", Version: 2, Data: d, Options: map[string]any{}}
}

func newTestCoordinator(t *testing.T, e entry.Entry, opts Options) (*Coordinator, *fakeTransport, *fakeDialer) {
	t.Helper()

	transport := &fakeTransport{registers: map[uint16]int16{}}
	dialer := &fakeDialer{transport: transport}
	if opts.Dialer == nil {
		opts.Dialer = dialer.dial
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = time.Hour
	}

	c, err := New(e, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Shutdown(context.Background()) }) //nolint:errcheck // Test cleanup
	return c, transport, dialer
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNew_RequiresHost(t *testing.T) {
	_, err := New(entry.Entry{ID: "x", Data: map[string]any{}}, Options{})
	if !errors.Is(err, ErrNoHost) {
		t.Errorf("New() error = %v, want ErrNoHost", err)
	}
}

func TestNew_Interval(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		opt     time.Duration
		want    time.Duration
	}{
		{"default", nil, 0, DefaultUpdateInterval},
		{"from options struct", nil, 10 * time.Second, 10 * time.Second},
		{"entry option wins", map[string]any{entry.KeyUpdateInterval: 60}, 10 * time.Second, time.Minute},
		{"invalid entry option", map[string]any{entry.KeyUpdateInterval: "x"}, 0, DefaultUpdateInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEntry(nil)
			e.Options = tt.options
			c, err := New(e, Options{UpdateInterval: tt.opt})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := c.Interval(); got != tt.want {
				t.Errorf("Interval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRefresh_BeforeInit(t *testing.T) {
	c, _, _ := newTestCoordinator(t, testEntry(nil), Options{})

	if err := c.Refresh(context.Background()); !errors.Is(err, ErrNotInitialised) {
		t.Errorf("Refresh() error = %v, want ErrNotInitialised", err)
	}
}

func TestRefresh_ReadsPlannedDevices(t *testing.T) {
	publisher := &mockPublisher{}
	telemetry := &mockTelemetry{}
	c, transport, _ := newTestCoordinator(t,
		testEntry(map[string]any{
			entry.KeyHeatPumps: 2, entry.KeyBoilers: 1, entry.KeyBuffers: 0,
			entry.KeySolar: 0, entry.KeyHeatingCircuits: 1,
		}),
		Options{Publisher: publisher, Topics: mqtt.Topics{}, Telemetry: telemetry},
	)
	transport.set(1004, 3550) // hp1 flow line 35.50 °C
	transport.set(1104, -250) // hp2 flow line -2.50 °C
	transport.set(2002, 512)  // boil1 high temp 51.2 °C
	transport.set(5004, 215)  // hc1 room temp 21.5 °C

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	data := c.Data()
	if data.Empty() {
		t.Fatal("Data() is empty after successful refresh")
	}
	wantDevices := []string{"boil1", "hc1", "hp1", "hp2"}
	got := data.DeviceNames()
	if len(got) != len(wantDevices) {
		t.Fatalf("devices = %v, want %v", got, wantDevices)
	}
	for i := range wantDevices {
		if got[i] != wantDevices[i] {
			t.Errorf("devices[%d] = %s, want %s", i, got[i], wantDevices[i])
		}
	}

	checks := []struct {
		device, key string
		want        float64
	}{
		{"hp1", "flow_line_temperature", 35.5},
		{"hp2", "flow_line_temperature", -2.5},
		{"boil1", "actual_high_temperature", 51.2},
		{"hc1", "room_device_temperature", 21.5},
	}
	for _, ck := range checks {
		v, ok := data.Value(ck.device, ck.key)
		if !ok || !approx(v, ck.want) {
			t.Errorf("%s.%s = %v (ok=%v), want %v", ck.device, ck.key, v, ok, ck.want)
		}
	}

	topics := mqtt.Topics{}
	if _, ok := publisher.last(topics.EntryState("entry-1", "hp2")); !ok {
		t.Error("state for hp2 not published")
	}
	if msg, ok := publisher.last(topics.EntryAvailability("entry-1")); !ok || !msg.retained {
		t.Error("availability not published retained")
	} else if a, _ := msg.payload.(availability); !a.Online {
		t.Error("availability should be online after successful poll")
	}

	telemetry.mu.Lock()
	defer telemetry.mu.Unlock()
	if len(telemetry.devices) != 4 {
		t.Errorf("telemetry devices = %v, want 4", telemetry.devices)
	}
	if len(telemetry.polls) != 1 || !telemetry.polls[0] {
		t.Errorf("telemetry polls = %v, want [true]", telemetry.polls)
	}
}

func TestRefresh_SkipsDisabledRegisters(t *testing.T) {
	loader := fakeLoader{cfg: &provision.LambdaConfig{DisabledRegisters: map[int]bool{1004: true}}}
	c, transport, _ := newTestCoordinator(t, testEntry(nil), Options{Config: loader})

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	for _, r := range transport.readCalls() {
		if r.start <= 1004 && 1004 < r.start+r.quantity {
			t.Errorf("read %d+%d covers disabled register 1004", r.start, r.quantity)
		}
	}
	if _, ok := c.Data().Value("hp1", "flow_line_temperature"); ok {
		t.Error("disabled register present in snapshot")
	}
	if _, ok := c.Data().Value("hp1", "return_line_temperature"); !ok {
		t.Error("register after disabled one missing from snapshot")
	}

	if _, err := c.ReadRegister(ctx, 1004); !errors.Is(err, ErrRegisterDisabled) {
		t.Errorf("ReadRegister(1004) error = %v, want ErrRegisterDisabled", err)
	}
}

func TestRefresh_DialFailureLeavesDataEmpty(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	c, _, _ := newTestCoordinator(t, testEntry(nil), Options{Dialer: dialer.dial})

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Refresh(ctx); err == nil {
		t.Error("Refresh() expected error when dial fails")
	}
	if !c.Data().Empty() {
		t.Error("Data() should be empty after failed refresh")
	}
}

func TestRefresh_AllReadsFailReconnects(t *testing.T) {
	c, transport, dialer := newTestCoordinator(t, testEntry(nil), Options{})
	transport.fail = true

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Refresh(ctx); !errors.Is(err, ErrNoData) {
		t.Fatalf("Refresh() error = %v, want ErrNoData", err)
	}
	if !c.Data().Empty() {
		t.Error("Data() should be empty")
	}

	transport.mu.Lock()
	transport.fail = false
	transport.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if dialer.count() != 2 {
		t.Errorf("dials = %d, want 2 (reconnect after failure)", dialer.count())
	}
}

func TestInit_LoaderError(t *testing.T) {
	c, _, _ := newTestCoordinator(t, testEntry(nil), Options{Config: fakeLoader{err: provision.ErrInvalidConfig}})

	if err := c.Init(context.Background()); !errors.Is(err, provision.ErrInvalidConfig) {
		t.Errorf("Init() error = %v, want ErrInvalidConfig", err)
	}
}

func TestShutdown(t *testing.T) {
	publisher := &mockPublisher{}
	c, transport, _ := newTestCoordinator(t, testEntry(nil), Options{Publisher: publisher, Topics: mqtt.Topics{}})

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}

	transport.mu.Lock()
	closed := transport.closed
	transport.mu.Unlock()
	if closed != 1 {
		t.Errorf("transport closed %d times, want 1", closed)
	}

	msg, ok := publisher.last(mqtt.Topics{}.EntryAvailability("entry-1"))
	if !ok {
		t.Fatal("availability not published")
	}
	if a, _ := msg.payload.(availability); a.Online {
		t.Error("availability should be offline after shutdown")
	}

	if err := c.Refresh(ctx); !errors.Is(err, ErrShutdown) {
		t.Errorf("Refresh() after Shutdown error = %v, want ErrShutdown", err)
	}
	if err := c.Init(ctx); !errors.Is(err, ErrShutdown) {
		t.Errorf("Init() after Shutdown error = %v, want ErrShutdown", err)
	}
}

func TestShutdown_NoRedialAfterClose(t *testing.T) {
	c, transport, dialer := newTestCoordinator(t, testEntry(nil), Options{})
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if err := c.poll(ctx); !errors.Is(err, ErrShutdown) {
		t.Errorf("poll() after Shutdown error = %v, want ErrShutdown", err)
	}
	if _, err := c.ReadRegister(ctx, 1010); !errors.Is(err, ErrShutdown) {
		t.Errorf("ReadRegister() after Shutdown error = %v, want ErrShutdown", err)
	}
	if got := dialer.count(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	transport.mu.Lock()
	closed := transport.closed
	transport.mu.Unlock()
	if closed != 1 {
		t.Errorf("transport closed %d times, want 1", closed)
	}
}

func TestShutdown_RacingPollsLeaveNoConnection(t *testing.T) {
	for i := 0; i < 20; i++ {
		c, _, _ := newTestCoordinator(t, testEntry(nil), Options{})
		ctx := context.Background()
		if err := c.Init(ctx); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 10; k++ {
					c.poll(ctx) //nolint:errcheck // ErrShutdown expected once closed
				}
			}()
		}
		if err := c.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		wg.Wait()

		if c.conn.connected() {
			t.Fatalf("run %d: connection open after Shutdown", i)
		}
	}
}

func TestConnectionClose(t *testing.T) {
	c, transport, dialer := newTestCoordinator(t, testEntry(nil), Options{})

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	var holder ConnectionHolder = c
	if err := holder.Connection().Close(); err != nil {
		t.Fatalf("Connection().Close() error = %v", err)
	}
	if err := holder.Connection().Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	transport.mu.Lock()
	if transport.closed != 1 {
		t.Errorf("transport closed %d times, want 1", transport.closed)
	}
	transport.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() after close error = %v", err)
	}
	if dialer.count() != 2 {
		t.Errorf("dials = %d, want 2", dialer.count())
	}
}

func TestPollLoop(t *testing.T) {
	telemetry := &mockTelemetry{}
	c, _, _ := newTestCoordinator(t, testEntry(nil), Options{
		UpdateInterval: 10 * time.Millisecond,
		Telemetry:      telemetry,
	})

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Data().Empty() {
		if time.Now().After(deadline) {
			t.Fatal("polling loop did not refresh data")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCycles(t *testing.T) {
	loader := fakeLoader{cfg: &provision.LambdaConfig{
		CyclingOffsets: map[string]map[string]float64{
			"hp1": {"heating_cycling_total": 100},
		},
	}}
	c, transport, _ := newTestCoordinator(t, testEntry(nil), Options{Config: loader})

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// 0 is the baseline; heating is entered twice, hot water once.
	for _, state := range []int16{0, StateHeating, StateHeating, StateHotWater, StateHeating} {
		transport.set(1003, state)
		if err := c.Refresh(ctx); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}

	cycles := c.Cycles()["hp1"]
	want := map[string]float64{
		"heating_cycling_total":   102,
		"heating_cycling_daily":   2,
		"hot_water_cycling_total": 1,
		"hot_water_cycling_daily": 1,
		"cooling_cycling_total":   0,
		"defrost_cycling_daily":   0,
	}
	for k, v := range want {
		if cycles[k] != v {
			t.Errorf("%s = %v, want %v", k, cycles[k], v)
		}
	}

	c.ResetDaily()
	cycles = c.Cycles()["hp1"]
	if cycles["heating_cycling_daily"] != 0 {
		t.Errorf("heating_cycling_daily after reset = %v, want 0", cycles["heating_cycling_daily"])
	}
	if cycles["heating_cycling_total"] != 102 {
		t.Errorf("heating_cycling_total after reset = %v, want 102", cycles["heating_cycling_total"])
	}
}

func TestReadRegister(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, testEntry(nil), Options{})
	transport.set(1010, -42)

	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got, err := c.ReadRegister(ctx, 1010)
	if err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if got != -42 {
		t.Errorf("ReadRegister() = %d, want -42", got)
	}

	if _, err := c.ReadRegister(ctx, 70000); err == nil {
		t.Error("ReadRegister(70000) expected range error")
	}
}
