package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/coordinator"
)

// Defaults applied when configuration leaves a knob unset.
const (
	defaultGraceDelay    = 1 * time.Second
	defaultFlushInterval = 300 // seconds
	defaultBatchSize     = 20
)

// Logger defines the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Sender transmits a batch of readings routed through a thermostat device.
// Failure is all-or-nothing; no partial-batch semantics are assumed.
type Sender interface {
	Send(ctx context.Context, thermostatID string, readings []Reading) error
}

// Subscription is an active state-change subscription handle.
type Subscription interface {
	Unsubscribe()
}

// StateSource delivers local state changes for a single entity to a handler.
type StateSource interface {
	SubscribeState(entityID string, handler func(StateChange)) (Subscription, error)
}

// SnapshotProvider supplies the current coordinator snapshot.
type SnapshotProvider interface {
	Snapshot() coordinator.Snapshot
}

// SettingsStore persists settings changes across restarts. Writes are
// fire-and-forget from the manager's perspective.
type SettingsStore interface {
	SaveTelemetrySettings(s Settings) error
}

// Mirror receives every flushed batch for local retention, independent of
// whether the cloud send succeeds.
type Mirror interface {
	MirrorReadings(readings []Reading)
}

// ManagerConfig wires the manager's collaborators.
//
// Store and Mirror are optional. MaxBuffered caps the buffer with
// drop-oldest eviction while the backend is unreachable; zero means
// unbounded, preserving readings at the cost of memory.
type ManagerConfig struct {
	Sender    Sender
	Source    StateSource
	Snapshots SnapshotProvider
	Store     SettingsStore
	Mirror    Mirror

	MaxBuffered int
	GraceDelay  time.Duration
}

// Manager owns the reading buffer, the subscription set and the periodic
// flush loop.
//
// Thread Safety: All methods are safe for concurrent use. The buffer is
// drained copy-then-clear under its own mutex, so readings appended during
// a network call land in a fresh buffer and are never lost to the race or
// double-sent.
type Manager struct {
	sender    Sender
	source    StateSource
	snapshots SnapshotProvider
	store     SettingsStore
	mirror    Mirror
	logger    Logger

	maxBuffered int
	graceDelay  time.Duration

	settingsMu sync.RWMutex
	settings   Settings

	bufMu  sync.Mutex
	buffer []Reading

	// Lifecycle state, guarded by mu.
	mu      sync.Mutex
	running bool
	subs    []Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu   sync.Mutex
	flushes   uint64
	sent      uint64
	lost      uint64
	lastFlush time.Time
}

// NewManager creates a manager with the given collaborators and initial
// settings. Out-of-range settings fields fall back to defaults.
func NewManager(cfg ManagerConfig, settings Settings) *Manager {
	if settings.BatchSize < 1 {
		settings.BatchSize = defaultBatchSize
	}
	if settings.FlushInterval < 1 {
		settings.FlushInterval = defaultFlushInterval
	}
	grace := cfg.GraceDelay
	if grace <= 0 {
		grace = defaultGraceDelay
	}

	return &Manager{
		sender:      cfg.Sender,
		source:      cfg.Source,
		snapshots:   cfg.Snapshots,
		store:       cfg.Store,
		mirror:      cfg.Mirror,
		logger:      noopLogger{},
		maxBuffered: cfg.MaxBuffered,
		graceDelay:  grace,
		settings:    settings,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start builds the mapping table from the current snapshot and registers
// one state-change subscription per mapped sensor, then starts the periodic
// flush loop.
//
// Any previous subscription set is torn down first, so after Start the
// active subscriptions exactly match the latest snapshot. This full restart
// is the mechanism by which sensor-mapping changes take effect. A short
// grace delay precedes subscription to avoid racing host platform startup.
func (m *Manager) Start(ctx context.Context) error {
	m.Stop()

	select {
	case <-time.After(m.graceDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	snap := m.snapshots.Snapshot()
	mappings := BuildMappings(snap)

	subs := make([]Subscription, 0, len(mappings))
	for _, mp := range mappings {
		h := &sensorHandler{
			manager:      m,
			thermostatID: mp.ThermostatID,
			sensorID:     mp.SensorID,
		}
		sub, err := m.source.SubscribeState(mp.EntityID, h.handle)
		if err != nil {
			m.logger.Warn("subscribe failed, sensor excluded until restart",
				"entity_id", mp.EntityID,
				"sensor_id", mp.SensorID,
				"error", err,
			)
			continue
		}
		subs = append(subs, sub)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	m.subs = subs
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.flushLoop(loopCtx)

	m.logger.Info("telemetry started",
		"mappings", len(mappings),
		"subscriptions", len(subs),
	)
	return nil
}

// Stop tears down every subscription and cancels the flush loop, waiting
// for it to exit. Buffered readings are kept for the next flush after a
// restart. Safe to call repeatedly and when never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	subs := m.subs
	cancel := m.cancel
	m.subs = nil
	m.cancel = nil
	m.running = false
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
		m.wg.Wait()
		m.logger.Info("telemetry stopped", "unsubscribed", len(subs))
	}
}

// Running reports whether the manager has an active subscription cycle.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// sensorHandler binds one subscription callback to its thermostat/sensor
// pair. One instance is registered per mapping entry.
type sensorHandler struct {
	manager      *Manager
	thermostatID string
	sensorID     string
}

// handle processes one state change: gate on the enabled flag, normalize,
// buffer, and trigger a count-based flush without blocking the callback.
func (h *sensorHandler) handle(ev StateChange) {
	m := h.manager

	settings := m.Settings()
	if !settings.Enabled {
		return
	}

	value, ok := NormalizeState(ev.State)
	if !ok {
		return
	}

	ts := ev.LastChanged
	if ts.IsZero() {
		ts = time.Now()
	}

	m.bufMu.Lock()
	m.buffer = append(m.buffer, Reading{
		DeviceID:  h.sensorID,
		Value:     value,
		Timestamp: ts,
	})
	var evicted int
	if m.maxBuffered > 0 && len(m.buffer) > m.maxBuffered {
		evicted = len(m.buffer) - m.maxBuffered
		m.buffer = append(m.buffer[:0], m.buffer[evicted:]...)
	}
	buffered := len(m.buffer)
	m.bufMu.Unlock()

	if evicted > 0 {
		m.addLost(uint64(evicted))
		m.logger.Warn("buffer cap reached, oldest readings evicted",
			"evicted", evicted,
			"cap", m.maxBuffered,
		)
	}

	if buffered >= settings.BatchSize {
		go func() {
			if err := m.Flush(context.Background(), h.thermostatID); err != nil {
				m.logger.Debug("count-triggered flush failed", "error", err)
			}
		}()
	}
}

// Flush drains the buffer and sends it routed through the given thermostat.
//
// An empty buffer is a no-op with no network call. The drain is
// copy-then-clear under the buffer mutex. On send failure the batch is
// logged and dropped: at-most-once, no retry, no restore.
func (m *Manager) Flush(ctx context.Context, thermostatID string) error {
	m.bufMu.Lock()
	if len(m.buffer) == 0 {
		m.bufMu.Unlock()
		return nil
	}
	batch := m.buffer
	m.buffer = make([]Reading, 0, cap(batch))
	m.bufMu.Unlock()

	if m.mirror != nil {
		m.mirror.MirrorReadings(batch)
	}

	if err := m.sender.Send(ctx, thermostatID, batch); err != nil {
		m.addLost(uint64(len(batch)))
		m.logger.Warn("telemetry send failed, batch dropped",
			"thermostat_id", thermostatID,
			"readings", len(batch),
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	m.statsMu.Lock()
	m.flushes++
	m.sent += uint64(len(batch))
	m.lastFlush = time.Now()
	m.statsMu.Unlock()

	m.logger.Debug("telemetry batch sent",
		"thermostat_id", thermostatID,
		"readings", len(batch),
	)
	return nil
}

// FlushAll drains the buffer routed through an arbitrary thermostat from
// the current snapshot. The buffer is not partitioned per thermostat; the
// backend keys ingestion by each reading's own sensor device id, the
// envelope thermostat only identifies the reporting gateway. With no
// thermostats in the snapshot the buffer is left untouched.
func (m *Manager) FlushAll(ctx context.Context) error {
	snap := m.snapshots.Snapshot()
	for thermostatID := range snap.Thermostats {
		return m.Flush(ctx, thermostatID)
	}

	if n := m.Buffered(); n > 0 {
		m.logger.Debug("no thermostat to route flush through", "buffered", n)
	}
	return nil
}

// flushLoop is the time trigger: sleep for the configured interval, then
// flush whatever accumulated. The interval is re-read at the top of every
// cycle, so a settings change applies from the next sleep, never shortening
// the one in progress. Cancellation is a clean exit.
func (m *Manager) flushLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		interval := time.Duration(m.Settings().FlushInterval) * time.Second

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if m.Buffered() == 0 {
			continue
		}
		if err := m.FlushAll(ctx); err != nil {
			m.logger.Debug("interval flush failed", "error", err)
		}
	}
}

// Settings returns the current runtime settings.
func (m *Manager) Settings() Settings {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.settings
}

// UpdateSettings atomically replaces the runtime settings.
//
// The change takes effect on the next evaluation: the enabled gate and
// batch size on the next state change, the interval on the next timer
// cycle. Subscriptions and the timer are left running even when disabling,
// so re-enabling is instant. The persisted mirror is written through
// asynchronously and not verified.
func (m *Manager) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.settingsMu.Lock()
	m.settings = s
	m.settingsMu.Unlock()

	if m.store != nil {
		go func() {
			if err := m.store.SaveTelemetrySettings(s); err != nil {
				m.logger.Warn("settings persistence failed", "error", err)
			}
		}()
	}

	m.logger.Info("telemetry settings updated",
		"enabled", s.Enabled,
		"batch_size", s.BatchSize,
		"flush_interval", s.FlushInterval,
	)
	return nil
}

// Buffered returns the number of readings awaiting flush.
func (m *Manager) Buffered() int {
	m.bufMu.Lock()
	defer m.bufMu.Unlock()
	return len(m.buffer)
}

// Stats returns a point-in-time view of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	running := m.running
	subscriptions := len(m.subs)
	m.mu.Unlock()

	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return Stats{
		Running:       running,
		Buffered:      m.Buffered(),
		Subscriptions: subscriptions,
		Flushes:       m.flushes,
		SentReadings:  m.sent,
		LostReadings:  m.lost,
		LastFlush:     m.lastFlush,
	}
}

// addLost bumps the lost-readings counter.
func (m *Manager) addLost(n uint64) {
	m.statsMu.Lock()
	m.lost += n
	m.statsMu.Unlock()
}
