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

// TrendingOptions parameterise the trending-topics monitor.
type TrendingOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// SpikePct is the mention-growth percentage that produces an alert.
	SpikePct float64
	// MaxTopics bounds emitted alerts per check.
	MaxTopics int
}

// Trending polls a news-trend provider and alerts on topics whose mention
// volume is spiking.
type Trending struct {
	opts   TrendingOptions
	client *http.Client
	logger zerolog.Logger
}

// NewTrending constructs the monitor.
func NewTrending(opts TrendingOptions, logger zerolog.Logger) *Trending {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.SpikePct <= 0 {
		opts.SpikePct = 200
	}
	if opts.MaxTopics <= 0 {
		opts.MaxTopics = 5
	}
	return &Trending{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "trending_monitor").Logger(),
	}
}

// Name implements Monitor.
func (m *Trending) Name() string { return "trending" }

type trendingResponse struct {
	Topics []struct {
		Topic     string  `json:"topic"`
		Symbol    string  `json:"symbol"`
		Mentions  int64   `json:"mentions"`
		ChangePct float64 `json:"change_pct"`
	} `json:"topics"`
}

// Check fetches trends and emits NEWS_ITEM alerts for spiking topics, at
// most MaxTopics per check to keep one hot news cycle from flooding the
// buffer.
func (m *Trending) Check(ctx context.Context) ([]alert.Alert, error) {
	if strings.TrimSpace(m.opts.BaseURL) == "" {
		return nil, fmt.Errorf("trending base_url not configured")
	}

	var res trendingResponse
	url := strings.TrimRight(m.opts.BaseURL, "/") + "/trending"
	if err := getJSON(ctx, m.client, url, m.opts.UserAgent, &res); err != nil {
		return nil, fmt.Errorf("fetch trending topics: %w", err)
	}

	now := time.Now().UTC()
	var alerts []alert.Alert
	for _, topic := range res.Topics {
		if topic.ChangePct < m.opts.SpikePct {
			continue
		}
		if len(alerts) >= m.opts.MaxTopics {
			break
		}

		change := decimal.NewFromFloat(topic.ChangePct).Round(0)
		title := fmt.Sprintf("%q mentions up %s%%", topic.Topic, change.String())
		body := fmt.Sprintf("%d mentions in the current window.", topic.Mentions)
		fields := []alert.Field{
			{Name: "topic", Value: topic.Topic},
			{Name: "mentions", Value: fmt.Sprintf("%d", topic.Mentions)},
			{Name: "change_pct", Value: change.String()},
		}

		// News chatter is weak evidence on its own.
		score := 30.0
		if topic.ChangePct >= 2*m.opts.SpikePct {
			score = 45
		}

		a, err := alert.New(alert.KindNewsItem, m.Name(), strings.ToUpper(topic.Symbol), title, body, fields, score, now)
		if err != nil {
			return nil, fmt.Errorf("build trending alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

var _ Monitor = (*Trending)(nil)
