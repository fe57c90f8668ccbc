package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"market-pulse-alerts/internal/alert"
)

// Monitor is an independent, periodically-polled data source adapter. Check
// returns zero or more alerts; a fetch failure is returned as an error and
// isolated by the orchestrator, never retried before the next interval.
// Provider payload shapes are normalized to canonical alerts here at the
// boundary, so the pipeline only ever sees one type.
type Monitor interface {
	Name() string
	Check(ctx context.Context) ([]alert.Alert, error)
}

// getJSON fetches url and decodes the response body into out. Shared by the
// concrete monitors; the caller's http.Client bounds the request.
func getJSON(ctx context.Context, client *http.Client, url, userAgent string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider responded %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
