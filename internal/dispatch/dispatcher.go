package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/metrics"
	"market-pulse-alerts/internal/pubsub"
	"market-pulse-alerts/internal/storage"
)

// AuditLog is the slice of the alert store the dispatcher needs.
type AuditLog interface {
	Append(ctx context.Context, a alert.Alert, status alert.Status) (storage.AlertRecord, error)
	UpdateStatus(ctx context.Context, alertID string, status alert.Status) error
}

// Publisher is the slice of the pub/sub hub the dispatcher needs.
type Publisher interface {
	Publish(channel string, payload []byte) int
}

// Report records per-sink outcomes for one dispatched message. Sink failures
// never raise; callers read the report for logging and metrics.
type Report struct {
	AlertID     string
	StoreOK     bool
	Subscribers int
	WebhookOK   bool
	FinalStatus alert.Status
}

// Dispatcher fans a finalized message out to the persisted store, in-process
// subscribers, and the outbound webhook, tolerating independent sink
// failures.
type Dispatcher struct {
	store   AuditLog
	hub     Publisher
	webhook WebhookSender
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// New constructs a Dispatcher. Store, hub, and webhook may each be nil; a
// missing sink is skipped, not an error.
func New(store AuditLog, hub Publisher, webhook WebhookSender, reg *metrics.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		hub:     hub,
		webhook: webhook,
		metrics: reg,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch delivers one alert to all sinks. The audit row is written first
// (write-ahead: delivery failures never lose the trail), then the in-process
// publish, then the webhook; a webhook failure downgrades the stored status
// to failed via a correction write.
func (d *Dispatcher) Dispatch(ctx context.Context, a alert.Alert) Report {
	report := Report{AlertID: a.ID, FinalStatus: alert.StatusSent}
	msg := NewMessage(a)

	if d.store != nil {
		if _, err := d.store.Append(ctx, a, alert.StatusSent); err != nil {
			d.logger.Error().Err(err).Str("alert_id", a.ID).Msg("audit write failed; continuing")
			d.countSinkFailure("store")
		} else {
			report.StoreOK = true
		}
	}

	if d.hub != nil {
		payload := msg.Encode()
		report.Subscribers = d.hub.Publish(msg.Channel, payload)
		if msg.Channel != alert.ChannelUnified {
			report.Subscribers += d.hub.Publish(alert.ChannelUnified, payload)
		}
	}

	if d.webhook != nil {
		if err := d.webhook.Send(ctx, msg); err != nil {
			d.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("webhook delivery failed")
			d.countSinkFailure("webhook")
			report.FinalStatus = alert.StatusFailed
			if report.StoreOK {
				if err := d.store.UpdateStatus(ctx, a.ID, alert.StatusFailed); err != nil {
					d.logger.Error().Err(err).Str("alert_id", a.ID).Msg("status correction failed")
				}
			}
		} else {
			report.WebhookOK = true
		}
	}

	if d.metrics != nil {
		d.metrics.DispatchTotal.WithLabelValues(string(report.FinalStatus)).Inc()
	}

	d.logger.Info().
		Str("alert_id", a.ID).
		Str("kind", string(a.Kind)).
		Str("channel", msg.Channel).
		Int("subscribers", report.Subscribers).
		Bool("webhook_ok", report.WebhookOK).
		Msg("alert dispatched")

	return report
}

func (d *Dispatcher) countSinkFailure(sink string) {
	if d.metrics != nil {
		d.metrics.SinkFailures.WithLabelValues(sink).Inc()
	}
}

var _ Publisher = (*pubsub.Hub)(nil)
var _ AuditLog = (*storage.Store)(nil)
