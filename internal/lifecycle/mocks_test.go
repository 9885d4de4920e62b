package lifecycle

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entity"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
)

var errBoom = errors.New("boom")

type fakeHandle struct {
	mu          sync.Mutex
	entryID     string
	empty       bool
	initErr     error
	shutdownErr error
	panicOn     string
	inits       int
	refreshes   int
	shutdowns   int
}

func (h *fakeHandle) Init(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inits++
	return h.initErr
}

func (h *fakeHandle) Refresh(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicOn == "refresh" {
		panic("refresh exploded")
	}
	h.refreshes++
	if h.empty {
		return errors.New("timeout")
	}
	return nil
}

func (h *fakeHandle) Data() coordinator.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.empty || h.refreshes == 0 {
		return coordinator.Snapshot{}
	}
	return coordinator.Snapshot{Devices: map[string]map[string]float64{"hp1": {"state": 1}}}
}

func (h *fakeHandle) Shutdown(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdowns++
	return h.shutdownErr
}

func (h *fakeHandle) shutdownCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdowns
}

type fakeConn struct {
	mu     sync.Mutex
	closed int
	err    error
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return c.err
}

// connHandle exposes a device connection.
type connHandle struct {
	*fakeHandle
	conn *fakeConn
}

func (h connHandle) Connection() io.Closer { return h.conn }

// fakeFactory records the handles it builds. configure, when set, adjusts
// each new handle.
type fakeFactory struct {
	mu        sync.Mutex
	handles   []*fakeHandle
	empty     map[string]bool
	err       error
	configure func(h *fakeHandle) coordinator.Handle
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{empty: map[string]bool{}}
}

func (f *fakeFactory) build(e entry.Entry) (coordinator.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{entryID: e.ID, empty: f.empty[e.ID]}
	f.handles = append(f.handles, h)
	if f.configure != nil {
		return f.configure(h), nil
	}
	return h, nil
}

func (f *fakeFactory) setEmpty(id string, empty bool) {
	f.mu.Lock()
	f.empty[id] = empty
	f.mu.Unlock()
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *fakeFactory) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

type mockServices struct {
	mu            sync.Mutex
	activates     int
	deactivates   int
	activateErr   error
	deactivateErr error
}

func (s *mockServices) Activate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activates++
	return s.activateErr
}

func (s *mockServices) Deactivate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivates++
	return s.deactivateErr
}

func (s *mockServices) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activates, s.deactivates
}

// mockPlatforms tracks reload critical sections: Unload opens one and
// Forward closes it.
type mockPlatforms struct {
	mu         sync.Mutex
	forwarded  map[string]int
	unloaded   map[string]int
	forwardErr error
	panicOnFwd bool
	// beforeForward runs outside the mock's lock; a non-nil error fails
	// the forward of that entry.
	beforeForward func(e entry.Entry) error
	unloadOK   bool
	unloadErr  error
	delay      time.Duration
	inside     int
	maxInside  int
}

func newMockPlatforms() *mockPlatforms {
	return &mockPlatforms{forwarded: map[string]int{}, unloaded: map[string]int{}, unloadOK: true}
}

func (p *mockPlatforms) Forward(_ context.Context, e entry.Entry, _ []entity.Platform) error {
	p.mu.Lock()
	hook := p.beforeForward
	p.mu.Unlock()
	if hook != nil {
		if err := hook(e); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOnFwd {
		panic("forward exploded")
	}
	if p.inside > 0 {
		p.inside--
	}
	if p.forwardErr != nil {
		return p.forwardErr
	}
	p.forwarded[e.ID]++
	return nil
}

func (p *mockPlatforms) Unload(_ context.Context, e entry.Entry, _ []entity.Platform) (bool, error) {
	p.mu.Lock()
	p.inside++
	if p.inside > p.maxInside {
		p.maxInside = p.inside
	}
	delay := p.delay
	ok, err := p.unloadOK, p.unloadErr
	if ok && err == nil {
		p.unloaded[e.ID]++
	}
	p.mu.Unlock()

	time.Sleep(delay)
	return ok, err
}

type mockBinder struct {
	mu        sync.Mutex
	bound     map[string]bool
	bindErr   error
	unbindErr error
}

func newMockBinder() *mockBinder {
	return &mockBinder{bound: map[string]bool{}}
}

func (b *mockBinder) Bind(_ context.Context, e entry.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bindErr != nil {
		return b.bindErr
	}
	b.bound[e.ID] = true
	return nil
}

func (b *mockBinder) Unbind(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bound, id)
	return b.unbindErr
}

func (b *mockBinder) isBound(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound[id]
}

type mockProvisioner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *mockProvisioner) EnsureDefaultConfig() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err == nil, p.err
}

type mockListeners struct {
	mu        sync.Mutex
	listeners map[string]entry.UpdateListener
}

func newMockListeners() *mockListeners {
	return &mockListeners{listeners: map[string]entry.UpdateListener{}}
}

func (l *mockListeners) AddUpdateListener(id string, fn entry.UpdateListener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *mockListeners) fire(ctx context.Context, e entry.Entry) bool {
	l.mu.Lock()
	fn, ok := l.listeners[e.ID]
	l.mu.Unlock()
	if ok {
		fn(ctx, e)
	}
	return ok
}

func (l *mockListeners) has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.listeners[id]
	return ok
}

type harness struct {
	manager     *Manager
	factory     *fakeFactory
	services    *mockServices
	platforms   *mockPlatforms
	binder      *mockBinder
	provisioner *mockProvisioner
	listeners   *mockListeners
}

func newHarness(grace time.Duration) *harness {
	h := &harness{
		factory:     newFakeFactory(),
		services:    &mockServices{},
		platforms:   newMockPlatforms(),
		binder:      newMockBinder(),
		provisioner: &mockProvisioner{},
		listeners:   newMockListeners(),
	}
	h.manager = NewManager(Config{
		Registry:    NewRegistry(),
		Factory:     h.factory.build,
		Provisioner: h.provisioner,
		Binder:      h.binder,
		Services:    h.services,
		Platforms:   h.platforms,
		Listeners:   h.listeners,
		ReloadGrace: grace,
	})
	return h
}

func testEntry(id string) entry.Entry {
	return entry.Entry{
		ID:      id,
		Version: 2,
		Data: map[string]any{
			entry.KeyHeatPumps: 2, entry.KeyBoilers: 1, entry.KeyBuffers: 0,
			entry.KeySolar: 0, entry.KeyHeatingCircuits: 1,
		},
	}
}

// recordingLogger keeps the messages logged at warn level and above.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.Warn(msg) }

func (l *recordingLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}
