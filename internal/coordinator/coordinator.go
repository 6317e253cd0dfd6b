package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oasis-climate/oasis-bridge/internal/oasis"
)

// refreshTimeout bounds a single backend fetch during a scheduled refresh.
const refreshTimeout = 30 * time.Second

// Logger defines the logging interface used by the coordinator.
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

// HomeSource fetches the full home tree from the backend.
// *oasis.HomesService satisfies it.
type HomeSource interface {
	Get(ctx context.Context, homeID string) (*oasis.Home, error)
}

// Coordinator periodically refreshes the home snapshot.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	source   HomeSource
	homeID   string
	interval time.Duration
	logger   Logger

	mu        sync.RWMutex
	snap      Snapshot
	populated bool
	listeners []func(Snapshot)

	sched *cron.Cron
}

// New creates a coordinator polling the given home on the given interval.
func New(source HomeSource, homeID string, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Coordinator{
		source:   source,
		homeID:   homeID,
		interval: interval,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// Refresh fetches the home tree and replaces the snapshot.
//
// On failure the previous snapshot is retained and an error wrapping
// ErrRefreshFailed is returned.
func (c *Coordinator) Refresh(ctx context.Context) error {
	home, err := c.source.Get(ctx, c.homeID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	snap := buildSnapshot(home, time.Now())

	c.mu.Lock()
	c.snap = snap
	c.populated = true
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.logger.Debug("snapshot refreshed",
		"home_id", snap.HomeID,
		"thermostats", len(snap.Thermostats),
	)

	for _, fn := range listeners {
		fn(copySnapshot(snap))
	}
	return nil
}

// Start begins scheduled refreshes. The caller should have run an initial
// Refresh already so dependents never observe an empty snapshot.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sched != nil {
		return ErrAlreadyStarted
	}

	sched := cron.New()
	spec := fmt.Sprintf("@every %s", c.interval)
	if _, err := sched.AddFunc(spec, c.scheduledRefresh); err != nil {
		return fmt.Errorf("coordinator: schedule %q: %w", spec, err)
	}
	sched.Start()
	c.sched = sched

	c.logger.Info("coordinator started", "interval", c.interval.String())
	return nil
}

// scheduledRefresh runs one refresh cycle, absorbing failures.
func (c *Coordinator) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh failed, keeping previous snapshot", "error", err)
	}
}

// Stop halts scheduled refreshes and waits for an in-flight one to finish.
// Safe to call when not started.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	sched := c.sched
	c.sched = nil
	c.mu.Unlock()

	if sched != nil {
		<-sched.Stop().Done()
	}
}

// Snapshot returns a deep copy of the current snapshot. The zero Snapshot
// is returned before the first successful Refresh.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copySnapshot(c.snap)
}

// Populated reports whether at least one Refresh has succeeded.
func (c *Coordinator) Populated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.populated
}

// LastUpdated returns when the snapshot was last rebuilt.
func (c *Coordinator) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.UpdatedAt
}

// OnUpdate registers a listener invoked with a copy of every new snapshot.
// Listeners run on the refreshing goroutine and should return quickly.
func (c *Coordinator) OnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
