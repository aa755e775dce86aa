package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"symbolsyncv1/internal/model"
)

// SyncAlerter turns sync lifecycle events into operator alerts. It
// implements model.EventSink: failed transitions become critical alerts,
// degraded completions become warnings, everything else is dropped.
// Delivery is asynchronous so a slow channel never blocks a sync.
type SyncAlerter struct {
	notifiers []Notifier
	timeout   time.Duration
}

// NewSyncAlerter creates an alerter fanning out to the given backends.
func NewSyncAlerter(notifiers ...Notifier) *SyncAlerter {
	return &SyncAlerter{notifiers: notifiers, timeout: 15 * time.Second}
}

// PublishSyncEvent implements model.EventSink.
func (a *SyncAlerter) PublishSyncEvent(broker, status string, totalSymbols int, errMsg string) {
	var alert Alert
	switch {
	case status == model.SyncFailed:
		alert = Alert{
			Level:   AlertCritical,
			Title:   fmt.Sprintf("Symbol sync failed: %s", broker),
			Message: errMsg,
		}
	case status == model.SyncCompleted && errMsg != "":
		alert = Alert{
			Level: AlertWarning,
			Title: fmt.Sprintf("Symbol sync degraded: %s", broker),
			Message: fmt.Sprintf("completed with %d symbols from fallback data: %s",
				totalSymbols, errMsg),
		}
	default:
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		for _, n := range a.notifiers {
			if err := n.Send(ctx, alert); err != nil {
				slog.Warn("alert delivery failed", "broker", broker, "err", err)
			}
		}
	}()
}
