package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/dedup"
	"market-pulse-alerts/internal/dispatch"
	"market-pulse-alerts/internal/monitor"
	"market-pulse-alerts/internal/storage"
	"market-pulse-alerts/internal/synthesis"
)

type scriptedMonitor struct {
	name    string
	batches [][]alert.Alert
	err     error
	calls   int
}

func (m *scriptedMonitor) Name() string { return m.name }

func (m *scriptedMonitor) Check(_ context.Context) ([]alert.Alert, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

type recordingSink struct {
	dispatched []alert.Alert
}

func (s *recordingSink) Dispatch(_ context.Context, a alert.Alert) dispatch.Report {
	s.dispatched = append(s.dispatched, a)
	return dispatch.Report{AlertID: a.ID, FinalStatus: alert.StatusSent}
}

type recordingLog struct {
	rows []alert.Status
}

func (l *recordingLog) Append(_ context.Context, a alert.Alert, status alert.Status) (storage.AlertRecord, error) {
	l.rows = append(l.rows, status)
	return storage.NewRecord(a, status), nil
}

func makeAlert(t *testing.T, source, title string, score float64) alert.Alert {
	t.Helper()
	a, err := alert.New(alert.KindLevelTouch, source, "SPY", title, "", nil, score, time.Now().UTC())
	if err != nil {
		t.Fatalf("construct alert: %v", err)
	}
	return a
}

func buildOrchestrator(t *testing.T, opts Options, sink Sink, store AuditLog, monitors ...*scriptedMonitor) *Orchestrator {
	t.Helper()
	ms := make([]monitor.Monitor, 0, len(monitors))
	for _, m := range monitors {
		ms = append(ms, m)
	}
	window := dedup.New(dedup.Options{Cooldown: 60 * time.Second}, zerolog.Nop())
	buffer := synthesis.NewBuffer(20)
	trigger := synthesis.NewTrigger(synthesis.Options{}, zerolog.Nop())
	return New(opts, ms, window, buffer, trigger, sink, store, nil, zerolog.Nop())
}

func TestMonitorFailureIsolated(t *testing.T) {
	failing := &scriptedMonitor{name: "fedrates", err: errors.New("provider down")}
	healthy := &scriptedMonitor{name: "darkpool", batches: [][]alert.Alert{{makeAlert(t, "darkpool", "SPY touched 500.00", 60)}}}

	sink := &recordingSink{}
	log := &recordingLog{}
	o := buildOrchestrator(t, Options{Unified: false, SynthesisInterval: time.Hour}, sink, log, failing, healthy)

	o.Tick(context.Background(), time.Now().UTC())

	if failing.calls != 1 || healthy.calls != 1 {
		t.Fatalf("both monitors should be checked, got %d/%d", failing.calls, healthy.calls)
	}
	if len(sink.dispatched) != 1 {
		t.Fatalf("healthy monitor's alert should dispatch despite the failure, got %d", len(sink.dispatched))
	}
}

func TestSuppressedAlertsAuditedNotDispatched(t *testing.T) {
	a := makeAlert(t, "darkpool", "SPY touched 500.00", 60)
	m := &scriptedMonitor{name: "darkpool", batches: [][]alert.Alert{{a}, {a}}}

	sink := &recordingSink{}
	log := &recordingLog{}
	o := buildOrchestrator(t, Options{Unified: false, SynthesisInterval: time.Hour}, sink, log, m)

	now := time.Now().UTC()
	o.Tick(context.Background(), now)
	o.Tick(context.Background(), now.Add(time.Second))

	if len(sink.dispatched) != 1 {
		t.Fatalf("duplicate must not dispatch, got %d dispatches", len(sink.dispatched))
	}
	if len(log.rows) != 1 || log.rows[0] != alert.StatusSuppressed {
		t.Fatalf("suppressed alert must still be audited, rows %v", log.rows)
	}
}

func TestUnifiedModeBuffersAndSynthesizes(t *testing.T) {
	batch := make([]alert.Alert, 0, 5)
	for i := 0; i < 5; i++ {
		batch = append(batch, makeAlert(t, fmt.Sprintf("src%d", i), fmt.Sprintf("signal %d at %d.50", i, 400+i), 40))
	}
	m := &scriptedMonitor{name: "darkpool", batches: [][]alert.Alert{batch}}

	sink := &recordingSink{}
	log := &recordingLog{}
	o := buildOrchestrator(t, Options{Unified: true, SynthesisInterval: 0}, sink, log, m)

	o.Tick(context.Background(), time.Now().UTC())

	if len(sink.dispatched) != 1 {
		t.Fatalf("five buffered alerts should synthesize into one dispatch, got %d", len(sink.dispatched))
	}
	if sink.dispatched[0].Kind != alert.KindSynthesis {
		t.Fatalf("expected SYNTHESIS dispatch, got %s", sink.dispatched[0].Kind)
	}
	// Each member keeps its own audit row alongside the merged dispatch.
	if len(log.rows) != 5 {
		t.Fatalf("every synthesized member should have an audit row, got %d", len(log.rows))
	}
}

func TestUnifiedModeAuditsBufferedAlerts(t *testing.T) {
	m := &scriptedMonitor{name: "darkpool", batches: [][]alert.Alert{{makeAlert(t, "darkpool", "SPY touched 500.00", 60)}}}

	sink := &recordingSink{}
	log := &recordingLog{}
	o := buildOrchestrator(t, Options{Unified: true, SynthesisInterval: time.Hour}, sink, log, m)

	o.Tick(context.Background(), time.Now().UTC())

	if len(sink.dispatched) != 0 {
		t.Fatalf("a single buffered alert must not dispatch, got %d", len(sink.dispatched))
	}
	if len(log.rows) != 1 || log.rows[0] != alert.StatusSent {
		t.Fatalf("admitted alert buffered toward synthesis must still be audited, rows %v", log.rows)
	}
}

func TestIntervalsGateMonitorChecks(t *testing.T) {
	m := &scriptedMonitor{name: "trending"}
	o := buildOrchestrator(t, Options{
		Unified:           false,
		SynthesisInterval: time.Hour,
		Intervals:         map[string]time.Duration{"trending": 10 * time.Minute},
	}, &recordingSink{}, &recordingLog{}, m)

	start := time.Now().UTC()
	o.Tick(context.Background(), start)
	o.Tick(context.Background(), start.Add(time.Minute))
	o.Tick(context.Background(), start.Add(11*time.Minute))

	if m.calls != 2 {
		t.Fatalf("monitor on a 10m interval should run on ticks 1 and 3 only, got %d calls", m.calls)
	}
}
