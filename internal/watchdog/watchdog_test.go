package watchdog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestWatchdog_DefaultInterval(t *testing.T) {
	w := New(Config{})
	if w.interval != 30*time.Second {
		t.Errorf("expected default interval of 30s, got %v", w.interval)
	}
}

func TestWatchdog_BeatsOnInterval(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	w := New(Config{Logger: logger, Interval: 10 * time.Millisecond})

	ctx := t.Context()
	w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if !strings.Contains(buf.String(), "heartbeat") {
		t.Errorf("expected at least one heartbeat log line, got: %s", buf.String())
	}
}

func TestWatchdog_StopIsIdempotent(t *testing.T) {
	w := New(Config{Interval: time.Hour})
	w.Start(t.Context())
	w.Stop()
	w.Stop() // should not panic
}

func TestWatchdog_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	w := New(Config{Logger: logger, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	countAtCancel := strings.Count(buf.String(), "heartbeat")

	time.Sleep(50 * time.Millisecond)
	countLater := strings.Count(buf.String(), "heartbeat")

	if countLater > countAtCancel+1 {
		t.Errorf("expected loop to stop after context cancellation, beats kept increasing: %d -> %d", countAtCancel, countLater)
	}
}
