package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFedRatesSeedsBaselineThenAlertsOnSwing(t *testing.T) {
	probability := 0.40
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"meeting": "2025-09-17",
			"probabilities": []map[string]any{
				{"move": "cut25", "probability": probability},
			},
		})
	}))
	defer srv.Close()

	m := NewFedRates(FedRatesOptions{BaseURL: srv.URL, Timeout: time.Second, SwingPct: 5}, noopLogger())

	alerts, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("baseline check should emit nothing, got %d", len(alerts))
	}

	probability = 0.52
	alerts, err = m.Check(context.Background())
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("12-point swing should emit one alert, got %d", len(alerts))
	}
	if alerts[0].Kind != alert.KindRateChange {
		t.Fatalf("expected RATE_CHANGE, got %s", alerts[0].Kind)
	}
}

func TestFedRatesIgnoresSmallMoves(t *testing.T) {
	probability := 0.40
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"meeting": "2025-09-17",
			"probabilities": []map[string]any{
				{"move": "cut25", "probability": probability},
			},
		})
	}))
	defer srv.Close()

	m := NewFedRates(FedRatesOptions{BaseURL: srv.URL, Timeout: time.Second, SwingPct: 5}, noopLogger())
	if _, err := m.Check(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	probability = 0.42
	alerts, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("2-point move below threshold should emit nothing, got %d", len(alerts))
	}
}

func TestDarkPoolLevelTouch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "SPY" {
			t.Fatalf("unexpected symbol %q", r.URL.Query().Get("symbol"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"symbol": "SPY",
			"spot":   "500.25",
			"levels": []map[string]any{
				{"price": "500.00", "volume": 1_500_000},
				{"price": "490.00", "volume": 2_000_000},
			},
		})
	}))
	defer srv.Close()

	m := NewDarkPool(DarkPoolOptions{
		BaseURL:           srv.URL,
		Timeout:           time.Second,
		Symbols:           []string{"SPY"},
		TouchTolerancePct: 0.1,
	}, noopLogger())

	alerts, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("only the 500.00 level is within tolerance, got %d alerts", len(alerts))
	}
	a := alerts[0]
	if a.Kind != alert.KindLevelTouch || a.Subject != "SPY" {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.Score != 70 {
		t.Fatalf("million-share print should score 70, got %.0f", a.Score)
	}
}

func TestDarkPoolProviderErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewDarkPool(DarkPoolOptions{BaseURL: srv.URL, Timeout: time.Second, Symbols: []string{"SPY"}}, noopLogger())
	if _, err := m.Check(context.Background()); err == nil {
		t.Fatal("provider 503 should surface as an error")
	}
}

func TestCalendarEmitsHighImpactInsideLeadWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"name": "CPI YoY", "impact": "high", "time": now.Add(30 * time.Minute).Format(time.RFC3339)},
				{"name": "Crude Inventories", "impact": "medium", "time": now.Add(30 * time.Minute).Format(time.RFC3339)},
				{"name": "NFP", "impact": "high", "time": now.Add(3 * time.Hour).Format(time.RFC3339)},
			},
		})
	}))
	defer srv.Close()

	m := NewCalendar(CalendarOptions{BaseURL: srv.URL, Timeout: time.Second, LeadWindow: time.Hour}, noopLogger())
	m.now = func() time.Time { return now }

	alerts, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("only CPI is high impact inside the window, got %d", len(alerts))
	}
	if alerts[0].Kind != alert.KindEventAhead {
		t.Fatalf("expected EVENT_AHEAD, got %s", alerts[0].Kind)
	}
}

func TestTrendingSpikesBounded(t *testing.T) {
	topics := make([]map[string]any, 0, 8)
	for i := 0; i < 8; i++ {
		topics = append(topics, map[string]any{
			"topic":      "topic",
			"symbol":     "NVDA",
			"mentions":   int64(1000 + i),
			"change_pct": 400.0,
		})
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"topics": topics})
	}))
	defer srv.Close()

	m := NewTrending(TrendingOptions{BaseURL: srv.URL, Timeout: time.Second, SpikePct: 200, MaxTopics: 3}, noopLogger())
	alerts, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("alerts should be capped at 3 per check, got %d", len(alerts))
	}
	if alerts[0].Subject != "NVDA" {
		t.Fatalf("expected NVDA subject, got %q", alerts[0].Subject)
	}
}
