package monitor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
)

// CalendarOptions parameterise the economic-calendar monitor.
type CalendarOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// LeadWindow is how far ahead an event must be to alert.
	LeadWindow time.Duration
}

// Calendar polls an economic-calendar provider and alerts on high-impact
// events entering the lead window.
type Calendar struct {
	opts   CalendarOptions
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewCalendar constructs the monitor.
func NewCalendar(opts CalendarOptions, logger zerolog.Logger) *Calendar {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.LeadWindow <= 0 {
		opts.LeadWindow = time.Hour
	}
	return &Calendar{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "calendar_monitor").Logger(),
		now:    time.Now,
	}
}

// Name implements Monitor.
func (m *Calendar) Name() string { return "calendar" }

type calendarResponse struct {
	Events []struct {
		Name     string    `json:"name"`
		Impact   string    `json:"impact"`
		Time     time.Time `json:"time"`
		Forecast string    `json:"forecast"`
		Previous string    `json:"previous"`
	} `json:"events"`
}

// Check fetches upcoming events and emits one alert per high-impact event
// inside the lead window. Repeats across checks are the dedup window's
// problem, not the monitor's.
func (m *Calendar) Check(ctx context.Context) ([]alert.Alert, error) {
	if strings.TrimSpace(m.opts.BaseURL) == "" {
		return nil, fmt.Errorf("calendar base_url not configured")
	}

	var res calendarResponse
	url := strings.TrimRight(m.opts.BaseURL, "/") + "/calendar"
	if err := getJSON(ctx, m.client, url, m.opts.UserAgent, &res); err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}

	now := m.now().UTC()
	horizon := now.Add(m.opts.LeadWindow)

	var alerts []alert.Alert
	for _, ev := range res.Events {
		if !strings.EqualFold(ev.Impact, "high") {
			continue
		}
		eventTime := ev.Time.UTC()
		if eventTime.Before(now) || eventTime.After(horizon) {
			continue
		}

		until := eventTime.Sub(now).Round(time.Minute)
		title := fmt.Sprintf("%s in %s", ev.Name, until)
		body := fmt.Sprintf("High-impact release at %s UTC.", eventTime.Format("15:04"))
		fields := []alert.Field{
			{Name: "event", Value: ev.Name},
			{Name: "time", Value: eventTime.Format(time.RFC3339)},
		}
		if ev.Forecast != "" {
			fields = append(fields, alert.Field{Name: "forecast", Value: ev.Forecast})
		}
		if ev.Previous != "" {
			fields = append(fields, alert.Field{Name: "previous", Value: ev.Previous})
		}

		a, err := alert.New(alert.KindEventAhead, m.Name(), "", title, body, fields, 55, now)
		if err != nil {
			return nil, fmt.Errorf("build calendar alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

var _ Monitor = (*Calendar)(nil)
