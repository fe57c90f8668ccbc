package synthesis

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
)

// Result is the outcome of merging buffered alerts into one consolidated
// message. Members are copies; the originals stay in the store independently.
type Result struct {
	Members    []alert.Alert
	Confluence float64
	ProducedAt time.Time
}

// Options tune the synthesis trigger.
type Options struct {
	// CriticalMass fires a synthesis regardless of score.
	CriticalMass int
	// ExceptionalConfluence fires on score alone.
	ExceptionalConfluence float64
	// MinConfluence plus MinAlerts is the ordinary firing condition.
	MinConfluence float64
	MinAlerts     int
	// Cooldown is the global throttle between syntheses, layered on top of
	// per-alert dedup.
	Cooldown time.Duration
	// MaxBufferAge clears a buffer whose oldest entry has gone stale, so old
	// signals stop skewing future confluence scores.
	MaxBufferAge time.Duration
}

// Trigger decides when buffered alerts are merged into one message.
type Trigger struct {
	opts     Options
	logger   zerolog.Logger
	lastFire time.Time
	now      func() time.Time
}

// NewTrigger constructs a Trigger with defaults applied.
func NewTrigger(opts Options, logger zerolog.Logger) *Trigger {
	if opts.CriticalMass <= 0 {
		opts.CriticalMass = 5
	}
	if opts.ExceptionalConfluence <= 0 {
		opts.ExceptionalConfluence = 80
	}
	if opts.MinConfluence <= 0 {
		opts.MinConfluence = 70
	}
	if opts.MinAlerts <= 0 {
		opts.MinAlerts = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 300 * time.Second
	}
	if opts.MaxBufferAge <= 0 {
		opts.MaxBufferAge = 30 * time.Minute
	}
	return &Trigger{
		opts:   opts,
		logger: logger.With().Str("component", "synthesis").Logger(),
		now:    time.Now,
	}
}

// MaybeSynthesize inspects the buffer and either returns a Result (draining
// the buffer) or nil (leaving it intact for accumulation). A stale buffer is
// cleared on decline. The global cooldown suppresses back-to-back syntheses
// even when the firing rules match.
func (t *Trigger) MaybeSynthesize(buf *Buffer) *Result {
	if buf.Size() == 0 {
		return nil
	}
	now := t.now().UTC()

	if !t.lastFire.IsZero() && now.Sub(t.lastFire) < t.opts.Cooldown {
		t.expireStale(buf, now)
		return nil
	}

	score := Confluence(buf.Peek())
	fire := false
	switch {
	case buf.Size() >= t.opts.CriticalMass:
		fire = true
	case score >= t.opts.ExceptionalConfluence:
		fire = true
	case score >= t.opts.MinConfluence && buf.Size() >= t.opts.MinAlerts:
		fire = true
	}

	if !fire {
		t.expireStale(buf, now)
		return nil
	}

	members := buf.Drain()
	t.lastFire = now
	t.logger.Info().
		Int("members", len(members)).
		Float64("confluence", score).
		Msg("synthesis fired")

	return &Result{
		Members:    members,
		Confluence: score,
		ProducedAt: now,
	}
}

func (t *Trigger) expireStale(buf *Buffer, now time.Time) {
	alerts := buf.Peek()
	if len(alerts) == 0 {
		return
	}
	if now.Sub(alerts[0].CreatedAt) > t.opts.MaxBufferAge {
		dropped := buf.Drain()
		t.logger.Debug().Int("dropped", len(dropped)).Msg("stale buffer cleared")
	}
}

// Confluence aggregates individual alert scores into one [0,100] agreement
// measure: the average member score damped by a corroboration ramp n/(n+0.5),
// plus a small bonus per distinct source beyond the first. Monotonic when
// member count grows with scores held fixed (the average is unchanged, the
// ramp and bonus only climb), and a single alert is damped to two thirds of
// its own score so one low-confidence signal never fires on its own.
func Confluence(alerts []alert.Alert) float64 {
	n := len(alerts)
	if n == 0 {
		return 0
	}

	total := 0.0
	sources := make(map[string]struct{}, n)
	for _, a := range alerts {
		total += a.Score
		sources[a.Source] = struct{}{}
	}

	ramp := float64(n) / (float64(n) + 0.5)
	score := (total/float64(n))*ramp + 2*float64(len(sources)-1)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Render flattens a Result into a single displayable alert carrying the
// member headlines, logged and dispatched as a SYNTHESIS-kind alert.
func (r *Result) Render() (alert.Alert, error) {
	lines := make([]string, 0, len(r.Members))
	subjects := make(map[string]struct{})
	for _, m := range r.Members {
		line := fmt.Sprintf("[%s/%s] %s", m.Source, m.Kind, m.Title)
		lines = append(lines, line)
		if m.Subject != "" {
			subjects[m.Subject] = struct{}{}
		}
	}

	subject := ""
	if len(subjects) == 1 {
		for s := range subjects {
			subject = s
		}
	}

	title := fmt.Sprintf("Confluence signal: %d corroborating alerts", len(r.Members))
	fields := []alert.Field{
		{Name: "confluence", Value: fmt.Sprintf("%.0f", r.Confluence)},
		{Name: "members", Value: fmt.Sprintf("%d", len(r.Members))},
	}

	return alert.New(alert.KindSynthesis, "synthesis", subject, title,
		strings.Join(lines, "\n"), fields, r.Confluence, r.ProducedAt)
}
