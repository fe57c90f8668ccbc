package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/metrics"
	"market-pulse-alerts/internal/pubsub"
	"market-pulse-alerts/internal/storage"
	"market-pulse-alerts/internal/version"
)

// AlertReader is the slice of the store the API reads from.
type AlertReader interface {
	ListRecent(ctx context.Context, limit int) ([]storage.AlertRecord, error)
	ListBetween(ctx context.Context, from, to time.Time, filter storage.QueryFilter) ([]storage.AlertRecord, error)
}

// Options parameterise the HTTP surface.
type Options struct {
	Addr string
}

// Server is the thin REST/WebSocket transport over the alert pipeline.
type Server struct {
	httpServer *http.Server
	store      AlertReader
	hub        *pubsub.Hub
	logger     zerolog.Logger
}

// NewServer wires the router. Store may be nil; alert queries then return 503.
func NewServer(opts Options, store AlertReader, hub *pubsub.Hub, reg *metrics.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		store:  store,
		hub:    hub,
		logger: logger.With().Str("component", "httpapi").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/v1/stream", s.handleStream).Methods(http.MethodGet)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleAlerts serves the audit-log read contract: recent alerts, optionally
// narrowed by subject/kind/status and a from/to window.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not configured"})
		return
	}

	q := r.URL.Query()
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be within 1..1000"})
			return
		}
		limit = parsed
	}

	filter := storage.QueryFilter{
		Subject: strings.ToUpper(q.Get("subject")),
		Kind:    alert.Kind(q.Get("kind")),
		Status:  alert.Status(q.Get("status")),
	}

	var (
		records []storage.AlertRecord
		err     error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, parseErr := parseWindow(q.Get("from"), q.Get("to"))
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": parseErr.Error()})
			return
		}
		records, err = s.store.ListBetween(r.Context(), from, to, filter)
	} else {
		records, err = s.store.ListRecent(r.Context(), limit)
		records = applyFilter(records, filter)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("alert query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(records),
		"alerts": records,
	})
}

func parseWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from timestamp")
		}
		from = parsed
	}
	if toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to timestamp")
		}
		to = parsed
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func applyFilter(records []storage.AlertRecord, filter storage.QueryFilter) []storage.AlertRecord {
	if filter.Subject == "" && filter.Kind == "" && filter.Status == "" {
		return records
	}
	out := records[:0]
	for _, rec := range records {
		if filter.Subject != "" && rec.Subject != filter.Subject {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
