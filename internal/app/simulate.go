package app

import (
	"context"
	"fmt"
	"time"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/dispatch"
	"market-pulse-alerts/internal/pubsub"
)

// SimulateAlert injects a synthetic alert through the dispatcher end to end,
// exercising the store and webhook sinks exactly as the pipeline would.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	synthetic, err := alert.New(
		alert.Kind(opts.Kind),
		"simulate",
		opts.Subject,
		opts.Title,
		opts.Body,
		[]alert.Field{{Name: "simulated", Value: "true"}},
		opts.Score,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("build synthetic alert: %w", err)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var auditLog dispatch.AuditLog
	if store != nil {
		auditLog = store
	}

	dispatcher := dispatch.New(auditLog, pubsub.NewHub(a.Logger), a.newWebhook(), nil, a.Logger)
	report := dispatcher.Dispatch(ctx, synthetic)

	a.Logger.Info().
		Str("alert_id", report.AlertID).
		Bool("store_ok", report.StoreOK).
		Bool("webhook_ok", report.WebhookOK).
		Str("final_status", string(report.FinalStatus)).
		Msg("simulated alert dispatched")

	if report.FinalStatus != alert.StatusSent {
		return fmt.Errorf("simulated dispatch finished with status %s", report.FinalStatus)
	}
	return nil
}
