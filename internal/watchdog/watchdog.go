// Package watchdog emits a periodic liveness heartbeat for the MCP
// protocol shell: a ticker-driven background goroutine (Start/Stop/loop)
// that logs a fixed-interval heartbeat (spec §4.L/§5: "30s liveness
// heartbeat").
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultInterval is the default period between heartbeat ticks (spec
// §4.L: "30s liveness heartbeat").
const defaultInterval = 30 * time.Second

// Watchdog periodically logs a heartbeat so an operator watching stderr
// (or a process supervisor tailing it) can tell the protocol shell is
// still alive between tool calls, which may be arbitrarily sparse.
//
// All methods are safe for concurrent use.
type Watchdog struct {
	logger   *slog.Logger
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// Config configures a [Watchdog].
type Config struct {
	// Logger receives the heartbeat log line. Defaults to slog.Default.
	Logger *slog.Logger

	// Interval is how often to beat. Defaults to 30s if zero.
	Interval time.Duration
}

// New creates a [Watchdog] with the given configuration.
func New(cfg Config) *Watchdog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watchdog{
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the heartbeat loop in a background goroutine. The
// goroutine runs until ctx is cancelled or [Watchdog.Stop] is called.
func (w *Watchdog) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop halts the heartbeat loop. Safe to call multiple times.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watchdog) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.logger.Info("heartbeat", "component", "watchdog")
		}
	}
}
