package dedup

import (
	"time"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
)

// Options tune the deduplication window.
type Options struct {
	// Cooldown is how long a fingerprint suppresses repeats after admission.
	Cooldown time.Duration
	// Retention is how long an idle entry survives before garbage collection.
	Retention time.Duration
	// GCThreshold is the entry count above which a cleanup pass runs.
	GCThreshold int
	// Fingerprint tunes hash specificity.
	Fingerprint alert.FingerprintSpec
}

// Window is a time-bounded fingerprint cache deciding whether an alert is a
// repeat within the cooldown or should pass through. Not safe for concurrent
// use; the orchestration loop is the single writer.
type Window struct {
	opts    Options
	entries map[string]time.Time
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs a Window with defaults applied.
func New(opts Options, logger zerolog.Logger) *Window {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 120 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.GCThreshold <= 0 {
		opts.GCThreshold = 100
	}
	return &Window{
		opts:    opts,
		entries: make(map[string]time.Time),
		logger:  logger.With().Str("component", "dedup").Logger(),
		now:     time.Now,
	}
}

// Admit decides whether an alert passes the window. Repeats inside the
// cooldown are suppressed; otherwise the entry timestamp is refreshed and the
// alert is admitted. O(1) amortised: cleanup runs only past the GC threshold.
func (w *Window) Admit(a alert.Alert) bool {
	fp := alert.Fingerprint(a, w.opts.Fingerprint)
	now := w.now().UTC()

	if last, ok := w.entries[fp]; ok && now.Sub(last) < w.opts.Cooldown {
		w.logger.Debug().
			Str("fingerprint", fp).
			Str("kind", string(a.Kind)).
			Str("subject", a.Subject).
			Dur("since_last", now.Sub(last)).
			Msg("duplicate suppressed")
		return false
	}

	w.entries[fp] = now
	if len(w.entries) > w.opts.GCThreshold {
		w.gc(now)
	}
	return true
}

// Len reports the current entry count.
func (w *Window) Len() int {
	return len(w.entries)
}

func (w *Window) gc(now time.Time) {
	dropped := 0
	for fp, last := range w.entries {
		if now.Sub(last) > w.opts.Retention {
			delete(w.entries, fp)
			dropped++
		}
	}
	if dropped > 0 {
		w.logger.Debug().Int("dropped", dropped).Int("remaining", len(w.entries)).Msg("dedup entries expired")
	}
}
