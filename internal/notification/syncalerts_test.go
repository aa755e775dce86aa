package notification

import (
	"context"
	"testing"
	"time"

	"symbolsyncv1/internal/model"
)

type captureNotifier struct {
	alerts chan Alert
}

func (c *captureNotifier) Send(_ context.Context, a Alert) error {
	c.alerts <- a
	return nil
}

func TestSyncAlerter_FailedBecomesCritical(t *testing.T) {
	capture := &captureNotifier{alerts: make(chan Alert, 1)}
	a := NewSyncAlerter(capture)

	a.PublishSyncEvent("upstox", model.SyncFailed, 0, "all sources exhausted")

	select {
	case alert := <-capture.alerts:
		if alert.Level != AlertCritical {
			t.Errorf("level: %s", alert.Level)
		}
		if alert.Message != "all sources exhausted" {
			t.Errorf("message: %q", alert.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}
}

func TestSyncAlerter_DegradedCompletionBecomesWarning(t *testing.T) {
	capture := &captureNotifier{alerts: make(chan Alert, 1)}
	a := NewSyncAlerter(capture)

	a.PublishSyncEvent("shoonya", model.SyncCompleted, 5, "built-in fallback symbols")

	select {
	case alert := <-capture.alerts:
		if alert.Level != AlertWarning {
			t.Errorf("level: %s", alert.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}
}

func TestSyncAlerter_CleanTransitionsAreSilent(t *testing.T) {
	capture := &captureNotifier{alerts: make(chan Alert, 4)}
	a := NewSyncAlerter(capture)

	a.PublishSyncEvent("zerodha", model.SyncInProgress, 0, "")
	a.PublishSyncEvent("zerodha", model.SyncCompleted, 90000, "")

	select {
	case alert := <-capture.alerts:
		t.Fatalf("unexpected alert: %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}
}
