package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/dedup"
	"market-pulse-alerts/internal/dispatch"
	"market-pulse-alerts/internal/metrics"
	"market-pulse-alerts/internal/monitor"
	"market-pulse-alerts/internal/scheduler"
	"market-pulse-alerts/internal/storage"
	"market-pulse-alerts/internal/synthesis"
)

// Sink receives finalized messages from the orchestrator.
type Sink interface {
	Dispatch(ctx context.Context, a alert.Alert) dispatch.Report
}

// AuditLog is the slice of the store the orchestrator writes to directly:
// suppressed alerts, and admitted alerts headed for the buffer. Individually
// dispatched alerts are written by the dispatcher instead.
type AuditLog interface {
	Append(ctx context.Context, a alert.Alert, status alert.Status) (storage.AlertRecord, error)
}

// Options tune the orchestration loop.
type Options struct {
	// Unified buffers admitted alerts toward synthesis instead of
	// dispatching them individually.
	Unified bool
	// MonitorTimeout bounds each monitor call so a hung provider cannot
	// stall the tick cadence indefinitely.
	MonitorTimeout time.Duration
	// SynthesisInterval is the cadence of synthesis checks, independent of
	// monitor intervals.
	SynthesisInterval time.Duration
	// Intervals maps monitor name to its polling interval; monitors missing
	// from the map run every tick.
	Intervals map[string]time.Duration
}

// Orchestrator owns the pipeline's shared mutable state (dedup window,
// buffer, last-check timestamps) and drives monitors, dedup, synthesis, and
// dispatch from a single goroutine. The single-writer invariant is what
// keeps the window and buffer lock-free.
type Orchestrator struct {
	opts     Options
	monitors []monitor.Monitor
	window   *dedup.Window
	buffer   *synthesis.Buffer
	trigger  *synthesis.Trigger
	sink     Sink
	store    AuditLog
	metrics  *metrics.Registry
	logger   zerolog.Logger

	lastCheck     map[string]time.Time
	lastSynthesis time.Time
	now           func() time.Time
}

// New constructs an Orchestrator. Monitors run in the order given, which
// fixes the per-tick check order deterministically.
func New(opts Options, monitors []monitor.Monitor, window *dedup.Window, buffer *synthesis.Buffer, trigger *synthesis.Trigger, sink Sink, store AuditLog, reg *metrics.Registry, logger zerolog.Logger) *Orchestrator {
	if opts.MonitorTimeout <= 0 {
		opts.MonitorTimeout = 15 * time.Second
	}
	if opts.SynthesisInterval <= 0 {
		opts.SynthesisInterval = 60 * time.Second
	}
	return &Orchestrator{
		opts:      opts,
		monitors:  monitors,
		window:    window,
		buffer:    buffer,
		trigger:   trigger,
		sink:      sink,
		store:     store,
		metrics:   reg,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		lastCheck: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Run drives the loop on the given scheduler until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	return sched.Run(ctx, func(ctx context.Context, now time.Time) error {
		o.Tick(ctx, now)
		return nil
	})
}

// Tick executes one orchestration pass: poll due monitors in fixed order,
// route their alerts through dedup into store/buffer/dispatch, then run the
// synthesis check on its own cadence.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) {
	started := o.now()

	for _, m := range o.monitors {
		if !o.due(m.Name(), now) {
			continue
		}
		o.lastCheck[m.Name()] = now
		o.checkMonitor(ctx, m)
	}

	if o.lastSynthesis.IsZero() || now.Sub(o.lastSynthesis) >= o.opts.SynthesisInterval {
		o.lastSynthesis = now
		o.runSynthesis(ctx)
	}

	if o.metrics != nil {
		o.metrics.TickDuration.Observe(o.now().Sub(started).Seconds())
		o.metrics.BufferSize.Set(float64(o.buffer.Size()))
		o.metrics.DedupEntries.Set(float64(o.window.Len()))
	}
}

func (o *Orchestrator) due(name string, now time.Time) bool {
	interval, ok := o.opts.Intervals[name]
	if !ok || interval <= 0 {
		return true
	}
	last, checked := o.lastCheck[name]
	return !checked || now.Sub(last) >= interval
}

// checkMonitor isolates a single monitor: its failure is logged and counted,
// never propagated, so one bad provider cannot take down the loop or delay
// the monitors after it beyond its own bounded timeout.
func (o *Orchestrator) checkMonitor(ctx context.Context, m monitor.Monitor) {
	checkCtx, cancel := context.WithTimeout(ctx, o.opts.MonitorTimeout)
	defer cancel()

	if o.metrics != nil {
		o.metrics.MonitorChecks.WithLabelValues(m.Name()).Inc()
	}

	alerts, err := m.Check(checkCtx)
	if err != nil {
		o.logger.Warn().Err(err).Str("monitor", m.Name()).Msg("monitor check failed")
		if o.metrics != nil {
			o.metrics.MonitorErrors.WithLabelValues(m.Name()).Inc()
		}
		return
	}

	for _, a := range alerts {
		o.route(ctx, a)
	}
}

// route sends one raw alert through the dedup window. Every alert reaches
// the audit log exactly once: suppressed here, admitted either here when it
// buffers toward synthesis (the member keeps its own row even if it is later
// merged or evicted) or via the dispatcher's write-ahead append when it
// dispatches individually.
func (o *Orchestrator) route(ctx context.Context, a alert.Alert) {
	if !o.window.Admit(a) {
		if o.metrics != nil {
			o.metrics.AlertsSuppressed.WithLabelValues(string(a.Kind)).Inc()
		}
		if o.store != nil {
			if _, err := o.store.Append(ctx, a, alert.StatusSuppressed); err != nil {
				o.logger.Error().Err(err).Str("alert_id", a.ID).Msg("suppressed audit write failed")
			}
		}
		return
	}

	if o.metrics != nil {
		o.metrics.AlertsAdmitted.WithLabelValues(string(a.Kind)).Inc()
	}

	if o.opts.Unified {
		if o.store != nil {
			if _, err := o.store.Append(ctx, a, alert.StatusSent); err != nil {
				o.logger.Error().Err(err).Str("alert_id", a.ID).Msg("buffered audit write failed")
			}
		}
		o.buffer.Add(a)
		return
	}
	o.sink.Dispatch(ctx, a)
}

func (o *Orchestrator) runSynthesis(ctx context.Context) {
	result := o.trigger.MaybeSynthesize(o.buffer)
	if result == nil {
		return
	}

	rendered, err := result.Render()
	if err != nil {
		// Members passed construction once already; a render failure is a
		// programmer error worth surfacing loudly.
		o.logger.Error().Err(err).Msg("synthesis render failed")
		return
	}

	if o.metrics != nil {
		o.metrics.SynthesisTotal.Inc()
	}
	o.sink.Dispatch(ctx, rendered)
}
