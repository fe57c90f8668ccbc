package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/config"
	"market-pulse-alerts/internal/dedup"
	"market-pulse-alerts/internal/dispatch"
	"market-pulse-alerts/internal/httpapi"
	"market-pulse-alerts/internal/metrics"
	"market-pulse-alerts/internal/monitor"
	"market-pulse-alerts/internal/pipeline"
	"market-pulse-alerts/internal/pubsub"
	"market-pulse-alerts/internal/scheduler"
	"market-pulse-alerts/internal/storage"
	"market-pulse-alerts/internal/synthesis"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMonitors() []monitor.Monitor {
	mcfg := a.Config.Monitors
	var monitors []monitor.Monitor

	if mcfg.FedRates.Enabled {
		monitors = append(monitors, monitor.NewFedRates(monitor.FedRatesOptions{
			BaseURL:   mcfg.FedRates.BaseURL,
			UserAgent: mcfg.UserAgent,
			Timeout:   mcfg.RequestTimeout,
			SwingPct:  mcfg.FedRates.SwingPct,
		}, a.Logger))
	}
	if mcfg.Calendar.Enabled {
		monitors = append(monitors, monitor.NewCalendar(monitor.CalendarOptions{
			BaseURL:    mcfg.Calendar.BaseURL,
			UserAgent:  mcfg.UserAgent,
			Timeout:    mcfg.RequestTimeout,
			LeadWindow: mcfg.Calendar.LeadWindow,
		}, a.Logger))
	}
	if mcfg.DarkPool.Enabled {
		monitors = append(monitors, monitor.NewDarkPool(monitor.DarkPoolOptions{
			BaseURL:           mcfg.DarkPool.BaseURL,
			UserAgent:         mcfg.UserAgent,
			Timeout:           mcfg.RequestTimeout,
			Symbols:           mcfg.DarkPool.Symbols,
			TouchTolerancePct: mcfg.DarkPool.TouchTolerancePct,
		}, a.Logger))
	}
	if mcfg.Trending.Enabled {
		monitors = append(monitors, monitor.NewTrending(monitor.TrendingOptions{
			BaseURL:   mcfg.Trending.BaseURL,
			UserAgent: mcfg.UserAgent,
			Timeout:   mcfg.RequestTimeout,
			SpikePct:  mcfg.Trending.SpikePct,
			MaxTopics: mcfg.Trending.MaxTopics,
		}, a.Logger))
	}
	return monitors
}

func (a *App) monitorIntervals() map[string]time.Duration {
	mcfg := a.Config.Monitors
	return map[string]time.Duration{
		"fedrates": mcfg.FedRates.Interval,
		"calendar": mcfg.Calendar.Interval,
		"darkpool": mcfg.DarkPool.Interval,
		"trending": mcfg.Trending.Interval,
	}
}

func (a *App) newWebhook() dispatch.WebhookSender {
	if !a.Config.Webhook.Enabled {
		return nil
	}
	return dispatch.NewWebhookSink(dispatch.WebhookOptions{
		URL:      a.Config.Webhook.URL,
		Username: a.Config.Webhook.Username,
		Timeout:  a.Config.Webhook.Timeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running alert pipeline plus, when enabled, the
// HTTP/WebSocket surface.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; audit persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if store != nil && a.Config.Database.AdvisoryLockKey != 0 {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.New("another pipeline instance holds the advisory lock")
		}
		defer unlock()
	}

	reg := metrics.NewRegistry()
	hub := pubsub.NewHub(a.Logger)

	var auditLog dispatch.AuditLog
	var orchestratorLog pipeline.AuditLog
	var reader httpapi.AlertReader
	if store != nil {
		auditLog = store
		orchestratorLog = store
		reader = store
	}

	dispatcher := dispatch.New(auditLog, hub, a.newWebhook(), reg, a.Logger)

	pcfg := a.Config.Pipeline
	window := dedup.New(dedup.Options{
		Cooldown:    pcfg.Cooldown,
		Retention:   pcfg.DedupRetention,
		GCThreshold: pcfg.DedupGCThreshold,
		Fingerprint: alert.FingerprintSpec{
			MaxNumbers:    pcfg.FingerprintMaxNumbers,
			MaxFields:     pcfg.FingerprintMaxFields,
			FieldValueLen: pcfg.FingerprintFieldValueLen,
		},
	}, a.Logger)
	buffer := synthesis.NewBuffer(pcfg.BufferCap)
	trigger := synthesis.NewTrigger(synthesis.Options{
		CriticalMass:          pcfg.CriticalMass,
		ExceptionalConfluence: pcfg.ExceptionalConfluence,
		MinConfluence:         pcfg.MinConfluence,
		MinAlerts:             pcfg.MinAlerts,
		Cooldown:              pcfg.SynthesisCooldown,
		MaxBufferAge:          pcfg.BufferMaxAge,
	}, a.Logger)

	orchestrator := pipeline.New(pipeline.Options{
		Unified:           a.Config.Unified(),
		MonitorTimeout:    pcfg.MonitorTimeout,
		SynthesisInterval: pcfg.SynthesisInterval,
		Intervals:         a.monitorIntervals(),
	}, a.newMonitors(), window, buffer, trigger, dispatcher, orchestratorLog, reg, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     pcfg.BaseTick,
		AlignToStart: pcfg.AlignToStart,
		StartupDelay: pcfg.StartupDelay,
	}, a.Logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.Logger.Info().Msg("starting alert pipeline")
		return orchestrator.Run(groupCtx, sched)
	})

	if a.Config.HTTP.Enabled {
		server := httpapi.NewServer(httpapi.Options{Addr: a.Config.HTTP.Addr}, reader, hub, reg, a.Logger)
		group.Go(func() error {
			a.Logger.Info().Str("addr", a.Config.HTTP.Addr).Msg("starting http surface")
			return server.Run(groupCtx)
		})
	}

	if store != nil && a.Config.Database.Retention > 0 {
		group.Go(func() error {
			return a.runRetention(groupCtx, store)
		})
	}

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return err
	}

	a.Logger.Info().Msg("pipeline stopped")
	return nil
}

// runRetention prunes audit rows past the configured horizon once per hour.
func (a *App) runRetention(ctx context.Context, store *storage.Store) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			horizon := time.Now().UTC().Add(-a.Config.Database.Retention)
			if err := store.DeleteBefore(ctx, horizon); err != nil {
				a.Logger.Warn().Err(err).Msg("retention pass failed")
			}
		}
	}
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	Kind    string
	Subject string
	Title   string
	Body    string
	Score   float64
}
