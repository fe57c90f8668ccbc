package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-pulse-alerts/internal/alert"
)

// DarkPoolOptions parameterise the dark-pool level monitor.
type DarkPoolOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Symbols   []string
	// TouchTolerancePct is how close (in percent of the level) spot must be
	// to count as a touch.
	TouchTolerancePct float64
}

// DarkPool polls printed dark-pool levels per symbol and alerts when spot
// trades into one of them.
type DarkPool struct {
	opts   DarkPoolOptions
	client *http.Client
	logger zerolog.Logger
}

// NewDarkPool constructs the monitor.
func NewDarkPool(opts DarkPoolOptions, logger zerolog.Logger) *DarkPool {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.TouchTolerancePct <= 0 {
		opts.TouchTolerancePct = 0.1
	}
	return &DarkPool{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "darkpool_monitor").Logger(),
	}
}

// Name implements Monitor.
func (m *DarkPool) Name() string { return "darkpool" }

type darkPoolResponse struct {
	Symbol string `json:"symbol"`
	Spot   string `json:"spot"`
	Levels []struct {
		Price  string `json:"price"`
		Volume int64  `json:"volume"`
	} `json:"levels"`
}

// Check fetches levels for every configured symbol. A failing symbol fails
// the whole check; partial batches are not emitted so a flaky provider does
// not produce lopsided confluence.
func (m *DarkPool) Check(ctx context.Context) ([]alert.Alert, error) {
	if strings.TrimSpace(m.opts.BaseURL) == "" {
		return nil, fmt.Errorf("darkpool base_url not configured")
	}

	tolerance := decimal.NewFromFloat(m.opts.TouchTolerancePct)
	now := time.Now().UTC()

	var alerts []alert.Alert
	for _, symbol := range m.opts.Symbols {
		endpoint := fmt.Sprintf("%s/levels?symbol=%s",
			strings.TrimRight(m.opts.BaseURL, "/"), url.QueryEscape(symbol))

		var res darkPoolResponse
		if err := getJSON(ctx, m.client, endpoint, m.opts.UserAgent, &res); err != nil {
			return nil, fmt.Errorf("fetch levels for %s: %w", symbol, err)
		}

		spot, err := decimal.NewFromString(res.Spot)
		if err != nil {
			return nil, fmt.Errorf("parse spot for %s: %w", symbol, err)
		}
		if spot.IsZero() {
			continue
		}

		for _, level := range res.Levels {
			price, err := decimal.NewFromString(level.Price)
			if err != nil {
				return nil, fmt.Errorf("parse level for %s: %w", symbol, err)
			}
			if price.IsZero() {
				continue
			}

			distancePct := spot.Sub(price).Div(price).Abs().Mul(decimal.NewFromInt(100))
			if distancePct.GreaterThan(tolerance) {
				continue
			}

			title := fmt.Sprintf("%s touched dark pool level %s", strings.ToUpper(symbol), price.StringFixed(2))
			body := fmt.Sprintf("Spot %s is within %s%% of a level printed on %d shares.",
				spot.StringFixed(2), distancePct.StringFixed(3), level.Volume)
			fields := []alert.Field{
				{Name: "price", Value: price.StringFixed(2)},
				{Name: "spot", Value: spot.StringFixed(2)},
				{Name: "volume", Value: fmt.Sprintf("%d", level.Volume)},
			}

			// Heavier prints carry more weight.
			score := 50.0
			if level.Volume >= 1_000_000 {
				score = 70
			} else if level.Volume >= 250_000 {
				score = 60
			}

			a, err := alert.New(alert.KindLevelTouch, m.Name(), strings.ToUpper(symbol), title, body, fields, score, now)
			if err != nil {
				return nil, fmt.Errorf("build level alert: %w", err)
			}
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

var _ Monitor = (*DarkPool)(nil)
