package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/coordinator"
	"github.com/oasis-climate/oasis-bridge/internal/oasis"
)

// =============================================================================
// Mocks
// =============================================================================

type sendCall struct {
	thermostatID string
	readings     []Reading
}

type mockSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
}

func (s *mockSender) Send(ctx context.Context, thermostatID string, readings []Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, sendCall{thermostatID: thermostatID, readings: readings})
	return nil
}

func (s *mockSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *mockSender) sentValues() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []float64
	for _, c := range s.calls {
		for _, r := range c.readings {
			out = append(out, r.Value)
		}
	}
	return out
}

type mockSub struct {
	src      *mockSource
	entityID string
	handler  func(StateChange)
	active   bool
}

func (s *mockSub) Unsubscribe() {
	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	s.active = false
}

type mockSource struct {
	mu   sync.Mutex
	subs []*mockSub
	err  error
}

func (src *mockSource) SubscribeState(entityID string, handler func(StateChange)) (Subscription, error) {
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.err != nil {
		return nil, src.err
	}
	sub := &mockSub{src: src, entityID: entityID, handler: handler, active: true}
	src.subs = append(src.subs, sub)
	return sub, nil
}

func (src *mockSource) activeCount() int {
	src.mu.Lock()
	defer src.mu.Unlock()
	n := 0
	for _, sub := range src.subs {
		if sub.active {
			n++
		}
	}
	return n
}

// fire delivers a state change to every active handler for the entity.
func (src *mockSource) fire(entityID, state string, at time.Time) {
	src.mu.Lock()
	var handlers []func(StateChange)
	for _, sub := range src.subs {
		if sub.active && sub.entityID == entityID {
			handlers = append(handlers, sub.handler)
		}
	}
	src.mu.Unlock()

	for _, h := range handlers {
		h(StateChange{EntityID: entityID, State: state, LastChanged: at})
	}
}

type mockSnapshots struct {
	mu   sync.Mutex
	snap coordinator.Snapshot
}

func (m *mockSnapshots) Snapshot() coordinator.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockSnapshots) set(snap coordinator.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
}

type mockStore struct {
	mu    sync.Mutex
	saved []Settings
}

func (s *mockStore) SaveTelemetrySettings(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, settings)
	return nil
}

func (s *mockStore) lastSaved() (Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return Settings{}, false
	}
	return s.saved[len(s.saved)-1], true
}

type mockMirror struct {
	mu       sync.Mutex
	readings []Reading
}

func (m *mockMirror) MirrorReadings(readings []Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, readings...)
}

func (m *mockMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}

// =============================================================================
// Helpers
// =============================================================================

func singleSensorSnapshot() coordinator.Snapshot {
	return coordinator.Snapshot{
		Thermostats: map[string]coordinator.Thermostat{
			"T1": {
				ID: "T1",
				SensorsMap: map[string]oasis.Sensor{
					"S1": {ID: "S1", Meta: &oasis.SensorMeta{LocalID: "sensor.outdoor_temp"}},
				},
			},
		},
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(m.Stop)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStartSubscribesMappedSensors(t *testing.T) {
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     &mockSender{},
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 10, FlushInterval: 300})

	startManager(t, m)

	if got := source.activeCount(); got != 1 {
		t.Errorf("active subscriptions = %d, want 1", got)
	}
	stats := m.Stats()
	if !stats.Running || stats.Subscriptions != 1 {
		t.Errorf("stats = %+v", stats)
	}

	m.Stop()
	if got := source.activeCount(); got != 0 {
		t.Errorf("active subscriptions after stop = %d, want 0", got)
	}
	if m.Running() {
		t.Error("Running() = true after stop")
	}
}

func TestRestartRebuildsSubscriptionSet(t *testing.T) {
	snap := coordinator.Snapshot{
		Thermostats: map[string]coordinator.Thermostat{
			"T1": {
				ID: "T1",
				SensorsMap: map[string]oasis.Sensor{
					"S1": {ID: "S1", Meta: &oasis.SensorMeta{LocalID: "sensor.a"}},
					"S2": {ID: "S2", LocalID: "sensor.b"},
				},
			},
		},
	}
	source := &mockSource{}
	snapshots := &mockSnapshots{snap: snap}
	m := NewManager(ManagerConfig{
		Sender:     &mockSender{},
		Source:     source,
		Snapshots:  snapshots,
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 10, FlushInterval: 300})

	startManager(t, m)
	if got := source.activeCount(); got != 2 {
		t.Fatalf("active subscriptions = %d, want 2", got)
	}

	// Sensor S2 removed from the backend: a restart must drop its stale
	// subscription, never retain it.
	snapshots.set(singleSensorSnapshot())
	startManager(t, m)

	if got := source.activeCount(); got != 1 {
		t.Errorf("active subscriptions after restart = %d, want 1", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	m := NewManager(ManagerConfig{
		Sender:     &mockSender{},
		Source:     &mockSource{},
		Snapshots:  &mockSnapshots{},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 10, FlushInterval: 300})

	m.Stop() // never started
	m.Stop()

	startManager(t, m)
	m.Stop()
	m.Stop()
}

// =============================================================================
// Event Handling
// =============================================================================

func TestScenarioSingleReadingFlush(t *testing.T) {
	sender := &mockSender{}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 1, FlushInterval: 300})

	startManager(t, m)

	eventTime := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	source.fire("sensor.outdoor_temp", "18.3", eventTime)

	waitFor(t, func() bool { return sender.callCount() == 1 }, "count-triggered flush")

	sender.mu.Lock()
	call := sender.calls[0]
	sender.mu.Unlock()

	if call.thermostatID != "T1" {
		t.Errorf("thermostat = %q, want T1", call.thermostatID)
	}
	if len(call.readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(call.readings))
	}
	r := call.readings[0]
	if r.DeviceID != "S1" || r.Value != 18.3 || !r.Timestamp.Equal(eventTime) {
		t.Errorf("reading = %+v", r)
	}
	if got := m.Buffered(); got != 0 {
		t.Errorf("buffered after flush = %d, want 0", got)
	}
}

func TestDisabledGateRejectsEvents(t *testing.T) {
	sender := &mockSender{}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: false, BatchSize: 1, FlushInterval: 300})

	startManager(t, m)

	for i := 0; i < 10; i++ {
		source.fire("sensor.outdoor_temp", "21.5", time.Now())
	}

	if got := m.Buffered(); got != 0 {
		t.Errorf("buffered = %d, want 0 while disabled", got)
	}
	if got := sender.callCount(); got != 0 {
		t.Errorf("sends = %d, want 0 while disabled", got)
	}

	// Subscriptions stay warm: re-enabling makes the very next event count.
	if err := m.UpdateSettings(Settings{Enabled: true, BatchSize: 10, FlushInterval: 300}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	source.fire("sensor.outdoor_temp", "21.5", time.Now())
	if got := m.Buffered(); got != 1 {
		t.Errorf("buffered after re-enable = %d, want 1", got)
	}
}

func TestRejectedStatesNotBuffered(t *testing.T) {
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     &mockSender{},
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 10, FlushInterval: 300})

	startManager(t, m)

	for _, state := range []string{"unavailable", "unknown", "abc"} {
		source.fire("sensor.outdoor_temp", state, time.Now())
	}
	if got := m.Buffered(); got != 0 {
		t.Errorf("buffered = %d, want 0 for rejected states", got)
	}

	source.fire("sensor.outdoor_temp", "on", time.Now())
	source.fire("sensor.outdoor_temp", "off", time.Now())
	if got := m.Buffered(); got != 2 {
		t.Errorf("buffered = %d, want 2 for on/off", got)
	}
}

func TestBatchSizeThresholdEdge(t *testing.T) {
	sender := &mockSender{}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 3, FlushInterval: 300})

	startManager(t, m)

	source.fire("sensor.outdoor_temp", "1", time.Now())
	source.fire("sensor.outdoor_temp", "2", time.Now())

	// batch_size - 1 must not trigger.
	time.Sleep(50 * time.Millisecond)
	if got := sender.callCount(); got != 0 {
		t.Fatalf("sends at batch_size-1 = %d, want 0", got)
	}
	if got := m.Buffered(); got != 2 {
		t.Fatalf("buffered = %d, want 2", got)
	}

	source.fire("sensor.outdoor_temp", "3", time.Now())
	waitFor(t, func() bool { return sender.callCount() == 1 }, "threshold flush")

	sender.mu.Lock()
	got := len(sender.calls[0].readings)
	sender.mu.Unlock()
	if got != 3 {
		t.Errorf("flushed readings = %d, want 3", got)
	}
}

func TestMaxBufferedEvictsOldest(t *testing.T) {
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:      &mockSender{},
		Source:      source,
		Snapshots:   &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay:  time.Millisecond,
		MaxBuffered: 3,
	}, Settings{Enabled: true, BatchSize: 100, FlushInterval: 300})

	startManager(t, m)

	for i := 1; i <= 5; i++ {
		source.fire("sensor.outdoor_temp", fmt.Sprintf("%d", i), time.Now())
	}

	if got := m.Buffered(); got != 3 {
		t.Fatalf("buffered = %d, want cap 3", got)
	}

	m.bufMu.Lock()
	first := m.buffer[0].Value
	last := m.buffer[len(m.buffer)-1].Value
	m.bufMu.Unlock()
	if first != 3 || last != 5 {
		t.Errorf("buffer window = [%v..%v], want [3..5]", first, last)
	}
	if got := m.Stats().LostReadings; got != 2 {
		t.Errorf("lost readings = %d, want 2", got)
	}
}

// =============================================================================
// Flush Engine
// =============================================================================

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	sender := &mockSender{}
	m := NewManager(ManagerConfig{
		Sender:    sender,
		Source:    &mockSource{},
		Snapshots: &mockSnapshots{snap: singleSensorSnapshot()},
	}, Settings{Enabled: true, BatchSize: 10, FlushInterval: 300})

	if err := m.Flush(context.Background(), "T1"); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := sender.callCount(); got != 0 {
		t.Errorf("sends = %d, want 0 for empty buffer", got)
	}
}

func TestFailedSendDropsBatch(t *testing.T) {
	sender := &mockSender{err: errors.New("backend down")}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 100, FlushInterval: 300})

	startManager(t, m)

	source.fire("sensor.outdoor_temp", "1", time.Now())
	source.fire("sensor.outdoor_temp", "2", time.Now())

	err := m.Flush(context.Background(), "T1")
	if !errors.Is(err, ErrSendFailed) {
		t.Errorf("Flush() error = %v, want ErrSendFailed", err)
	}

	// Drop, don't retry: the drained batch is never restored.
	if got := m.Buffered(); got != 0 {
		t.Errorf("buffered after failed send = %d, want 0", got)
	}
	if got := m.Stats().LostReadings; got != 2 {
		t.Errorf("lost readings = %d, want 2", got)
	}
}

func TestFlushAllRoutesThroughSnapshotThermostat(t *testing.T) {
	sender := &mockSender{}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 100, FlushInterval: 300})

	startManager(t, m)
	source.fire("sensor.outdoor_temp", "19.0", time.Now())

	if err := m.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.calls) != 1 || sender.calls[0].thermostatID != "T1" {
		t.Errorf("calls = %+v, want one routed through T1", sender.calls)
	}
}

func TestFlushAllWithoutThermostatsKeepsBuffer(t *testing.T) {
	sender := &mockSender{}
	m := NewManager(ManagerConfig{
		Sender:    sender,
		Source:    &mockSource{},
		Snapshots: &mockSnapshots{}, // empty snapshot
	}, Settings{Enabled: true, BatchSize: 100, FlushInterval: 300})

	h := &sensorHandler{manager: m, thermostatID: "T1", sensorID: "S1"}
	h.handle(StateChange{State: "20.0", LastChanged: time.Now()})

	if err := m.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}
	if got := sender.callCount(); got != 0 {
		t.Errorf("sends = %d, want 0 without routing target", got)
	}
	if got := m.Buffered(); got != 1 {
		t.Errorf("buffered = %d, want 1 (kept)", got)
	}
}

func TestMirrorReceivesBatchDespiteSendFailure(t *testing.T) {
	mirror := &mockMirror{}
	m := NewManager(ManagerConfig{
		Sender:    &mockSender{err: errors.New("backend down")},
		Source:    &mockSource{},
		Snapshots: &mockSnapshots{snap: singleSensorSnapshot()},
		Mirror:    mirror,
	}, Settings{Enabled: true, BatchSize: 100, FlushInterval: 300})

	h := &sensorHandler{manager: m, thermostatID: "T1", sensorID: "S1"}
	h.handle(StateChange{State: "20.0", LastChanged: time.Now()})

	_ = m.Flush(context.Background(), "T1")
	if got := mirror.count(); got != 1 {
		t.Errorf("mirrored readings = %d, want 1", got)
	}
}

func TestDrainBoundaryNoLossNoDuplication(t *testing.T) {
	const writers = 8
	const perWriter = 200

	sender := &mockSender{}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 1 << 30, FlushInterval: 300})

	startManager(t, m)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				source.fire("sensor.outdoor_temp", fmt.Sprintf("%d", w*perWriter+i), time.Now())
			}
		}(w)
	}

	// Flush repeatedly while appends race against the drain.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = m.Flush(context.Background(), "T1")
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	<-done
	if err := m.Flush(context.Background(), "T1"); err != nil {
		t.Fatalf("final Flush() error = %v", err)
	}

	values := sender.sentValues()
	if len(values) != writers*perWriter {
		t.Fatalf("sent readings = %d, want %d", len(values), writers*perWriter)
	}
	seen := make(map[float64]bool, len(values))
	for _, v := range values {
		if seen[v] {
			t.Fatalf("reading %v sent twice", v)
		}
		seen[v] = true
	}
	if got := m.Buffered(); got != 0 {
		t.Errorf("buffered after final flush = %d, want 0", got)
	}
}

// =============================================================================
// Runtime Settings
// =============================================================================

func TestUpdateSettingsValidation(t *testing.T) {
	m := NewManager(ManagerConfig{
		Sender:    &mockSender{},
		Source:    &mockSource{},
		Snapshots: &mockSnapshots{},
	}, Settings{Enabled: true, BatchSize: 5, FlushInterval: 60})

	tests := []struct {
		name string
		in   Settings
	}{
		{"zero batch size", Settings{Enabled: true, BatchSize: 0, FlushInterval: 60}},
		{"zero interval", Settings{Enabled: true, BatchSize: 5, FlushInterval: 0}},
		{"negative batch size", Settings{Enabled: true, BatchSize: -1, FlushInterval: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.UpdateSettings(tt.in); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("UpdateSettings() error = %v, want ErrInvalidSettings", err)
			}
		})
	}

	if got := m.Settings(); got.BatchSize != 5 || got.FlushInterval != 60 {
		t.Errorf("settings mutated by rejected update: %+v", got)
	}
}

func TestUpdateSettingsWritesThrough(t *testing.T) {
	store := &mockStore{}
	m := NewManager(ManagerConfig{
		Sender:    &mockSender{},
		Source:    &mockSource{},
		Snapshots: &mockSnapshots{},
		Store:     store,
	}, Settings{Enabled: true, BatchSize: 5, FlushInterval: 60})

	want := Settings{Enabled: false, BatchSize: 50, FlushInterval: 120}
	if err := m.UpdateSettings(want); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	if got := m.Settings(); got != want {
		t.Errorf("Settings() = %+v, want %+v", got, want)
	}
	waitFor(t, func() bool {
		saved, ok := store.lastSaved()
		return ok && saved == want
	}, "write-through persistence")
}

func TestPeriodicFlush(t *testing.T) {
	if testing.Short() {
		t.Skip("timer test")
	}

	sender := &mockSender{}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 100, FlushInterval: 1})

	startManager(t, m)
	source.fire("sensor.outdoor_temp", "17.5", time.Now())

	waitFor(t, func() bool { return sender.callCount() >= 1 }, "interval flush")
	if got := m.Buffered(); got != 0 {
		t.Errorf("buffered after interval flush = %d, want 0", got)
	}
}

func TestIntervalChangeAppliesNextCycle(t *testing.T) {
	if testing.Short() {
		t.Skip("timer test")
	}

	sender := &mockSender{}
	source := &mockSource{}
	m := NewManager(ManagerConfig{
		Sender:     sender,
		Source:     source,
		Snapshots:  &mockSnapshots{snap: singleSensorSnapshot()},
		GraceDelay: time.Millisecond,
	}, Settings{Enabled: true, BatchSize: 100, FlushInterval: 3})

	startManager(t, m)
	source.fire("sensor.outdoor_temp", "17.5", time.Now())

	// Let the loop enter its 3s sleep, then shrink the interval.
	time.Sleep(200 * time.Millisecond)
	if err := m.UpdateSettings(Settings{Enabled: true, BatchSize: 100, FlushInterval: 1}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	// The sleep in progress keeps its original length: nothing flushes
	// inside the window the shrunk interval would have covered.
	time.Sleep(1500 * time.Millisecond)
	if got := sender.callCount(); got != 0 {
		t.Errorf("flushes during original sleep = %d, want 0", got)
	}

	// The original cycle completes on schedule.
	waitFor(t, func() bool { return sender.callCount() == 1 }, "flush at original interval")

	// From the next cycle the shrunk interval governs: a fresh reading
	// flushes well before the original 3s would have elapsed (waitFor's
	// 2s deadline enforces the bound).
	source.fire("sensor.outdoor_temp", "18.0", time.Now())
	waitFor(t, func() bool { return sender.callCount() >= 2 }, "flush at new interval")
}
