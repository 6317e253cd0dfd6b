package status

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/mqtt"
	"github.com/oasis-climate/oasis-bridge/internal/telemetry"
)

// defaultInterval is used when configuration leaves the interval unset.
const defaultInterval = 60 * time.Second

// Logger defines the logging interface used by the reporter.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// StatsSource supplies the telemetry counters to publish.
// *telemetry.Manager satisfies it.
type StatsSource interface {
	Stats() telemetry.Stats
}

// Publisher sends retained messages to the broker.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Reporter publishes telemetry stats on a fixed interval.
type Reporter struct {
	publisher Publisher
	source    StatsSource
	interval  time.Duration
	logger    Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a reporter publishing from source on the given interval.
func New(publisher Publisher, source StatsSource, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reporter{
		publisher: publisher,
		source:    source,
		interval:  interval,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.logger = logger
}

// Start begins periodic publishing until Stop is called.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return // already running
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop halts publishing and waits for the loop to exit. Safe to call when
// not started.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.wg.Wait()
	}
}

// run is the publishing loop.
func (r *Reporter) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publish()
		}
	}
}

// publish sends one stats message.
func (r *Reporter) publish() {
	stats := r.source.Stats()
	payload, err := json.Marshal(stats)
	if err != nil {
		r.logger.Warn("encoding stats failed", "error", err)
		return
	}

	topic := mqtt.Topics{}.TelemetryStats()
	if err := r.publisher.PublishRetained(topic, payload); err != nil {
		r.logger.Warn("publishing stats failed", "error", err)
		return
	}
	r.logger.Debug("stats published", "buffered", stats.Buffered)
}
