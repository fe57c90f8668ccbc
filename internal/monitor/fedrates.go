package monitor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-pulse-alerts/internal/alert"
)

// FedRatesOptions parameterise the rate-probability monitor.
type FedRatesOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// SwingPct is the probability move (in percentage points) that produces
	// an alert.
	SwingPct float64
}

// FedRates polls a rate-probability provider and alerts when the implied
// odds of a move swing by more than the configured threshold between checks.
type FedRates struct {
	opts   FedRatesOptions
	client *http.Client
	logger zerolog.Logger

	// last implied probability per outcome label, from the previous check.
	last map[string]decimal.Decimal
}

// NewFedRates constructs the monitor.
func NewFedRates(opts FedRatesOptions, logger zerolog.Logger) *FedRates {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.SwingPct <= 0 {
		opts.SwingPct = 5
	}
	return &FedRates{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "fedrates_monitor").Logger(),
		last:   make(map[string]decimal.Decimal),
	}
}

// Name implements Monitor.
func (m *FedRates) Name() string { return "fedrates" }

type rateProbabilityResponse struct {
	Meeting       string `json:"meeting"`
	Probabilities []struct {
		Move        string  `json:"move"`
		Probability float64 `json:"probability"`
	} `json:"probabilities"`
}

// Check fetches current probabilities and compares against the previous
// snapshot. The first check only seeds the baseline.
func (m *FedRates) Check(ctx context.Context) ([]alert.Alert, error) {
	if strings.TrimSpace(m.opts.BaseURL) == "" {
		return nil, fmt.Errorf("fedrates base_url not configured")
	}

	var res rateProbabilityResponse
	url := strings.TrimRight(m.opts.BaseURL, "/") + "/probabilities"
	if err := getJSON(ctx, m.client, url, m.opts.UserAgent, &res); err != nil {
		return nil, fmt.Errorf("fetch rate probabilities: %w", err)
	}

	swing := decimal.NewFromFloat(m.opts.SwingPct)
	now := time.Now().UTC()

	var alerts []alert.Alert
	seeding := len(m.last) == 0
	for _, p := range res.Probabilities {
		prob := decimal.NewFromFloat(p.Probability * 100).Round(1)
		prev, seen := m.last[p.Move]
		m.last[p.Move] = prob
		if seeding || !seen {
			continue
		}

		delta := prob.Sub(prev)
		if delta.Abs().LessThan(swing) {
			continue
		}

		direction := "rose"
		if delta.Sign() < 0 {
			direction = "fell"
		}
		title := fmt.Sprintf("Odds of %s %s to %s%% for %s", p.Move, direction, prob.StringFixed(1), res.Meeting)
		body := fmt.Sprintf("Implied probability moved %s points since the last check.", delta.StringFixed(1))
		fields := []alert.Field{
			{Name: "move", Value: p.Move},
			{Name: "probability_pct", Value: prob.StringFixed(1)},
			{Name: "delta_pct", Value: delta.StringFixed(1)},
			{Name: "meeting", Value: res.Meeting},
		}

		// Bigger swings score higher, capped well below a solo-fire level.
		score := 40 + delta.Abs().InexactFloat64()*2
		if score > 75 {
			score = 75
		}

		a, err := alert.New(alert.KindRateChange, m.Name(), "", title, body, fields, score, now)
		if err != nil {
			return nil, fmt.Errorf("build rate alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if seeding {
		m.logger.Debug().Int("outcomes", len(m.last)).Msg("baseline probabilities seeded")
	}
	return alerts, nil
}

var _ Monitor = (*FedRates)(nil)
