package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/storage"
)

type fakeLog struct {
	appended  []alert.Status
	updates   []alert.Status
	appendErr error
}

func (f *fakeLog) Append(_ context.Context, a alert.Alert, status alert.Status) (storage.AlertRecord, error) {
	if f.appendErr != nil {
		return storage.AlertRecord{}, f.appendErr
	}
	f.appended = append(f.appended, status)
	return storage.NewRecord(a, status), nil
}

func (f *fakeLog) UpdateStatus(_ context.Context, _ string, status alert.Status) error {
	f.updates = append(f.updates, status)
	return nil
}

type fakeHub struct {
	published map[string]int
}

func (f *fakeHub) Publish(channel string, _ []byte) int {
	if f.published == nil {
		f.published = make(map[string]int)
	}
	f.published[channel]++
	return 1
}

func testAlert(t *testing.T) alert.Alert {
	t.Helper()
	a, err := alert.New(alert.KindLevelTouch, "darkpool", "SPY", "SPY touched 500.00",
		"heavy prints at the level", []alert.Field{{Name: "price", Value: "500.00"}}, 60, time.Now().UTC())
	if err != nil {
		t.Fatalf("construct alert: %v", err)
	}
	return a
}

func TestDispatchWritesAuditBeforeDelivery(t *testing.T) {
	log := &fakeLog{}
	hub := &fakeHub{}
	d := New(log, hub, nil, nil, zerolog.Nop())

	report := d.Dispatch(context.Background(), testAlert(t))
	if !report.StoreOK {
		t.Fatal("store sink should succeed")
	}
	if len(log.appended) != 1 || log.appended[0] != alert.StatusSent {
		t.Fatalf("expected one sent audit row, got %v", log.appended)
	}
	if hub.published["SPY"] != 1 || hub.published["unified"] != 1 {
		t.Fatalf("expected publish on subject and unified channels, got %v", hub.published)
	}
}

func TestDispatchWebhookFailureIsolatedAndRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	log := &fakeLog{}
	hub := &fakeHub{}
	sink := NewWebhookSink(WebhookOptions{URL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	d := New(log, hub, sink, nil, zerolog.Nop())

	report := d.Dispatch(context.Background(), testAlert(t))

	if report.WebhookOK {
		t.Fatal("webhook should have failed")
	}
	if !report.StoreOK || hub.published["SPY"] != 1 {
		t.Fatal("webhook failure must not prevent store write or publish")
	}
	if report.FinalStatus != alert.StatusFailed {
		t.Fatalf("expected failed final status, got %s", report.FinalStatus)
	}
	if len(log.updates) != 1 || log.updates[0] != alert.StatusFailed {
		t.Fatalf("expected one failed status correction, got %v", log.updates)
	}
}

func TestDispatchStoreFailureDoesNotBlockDelivery(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	log := &fakeLog{appendErr: errors.New("disk full")}
	sink := NewWebhookSink(WebhookOptions{URL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	d := New(log, &fakeHub{}, sink, nil, zerolog.Nop())

	report := d.Dispatch(context.Background(), testAlert(t))
	if report.StoreOK {
		t.Fatal("store sink should report failure")
	}
	if !report.WebhookOK || delivered.Load() != 1 {
		t.Fatal("audit-trail loss must not abort dispatch")
	}
}

func TestWebhookSuccess(t *testing.T) {
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody.Store(string(buf))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(WebhookOptions{URL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if err := sink.Send(context.Background(), NewMessage(testAlert(t))); err != nil {
		t.Fatalf("webhook send should succeed: %v", err)
	}
	body, _ := gotBody.Load().(string)
	if body == "" {
		t.Fatal("webhook should have received a JSON body")
	}
}

func TestWebhookUnconfiguredURL(t *testing.T) {
	sink := NewWebhookSink(WebhookOptions{}, zerolog.Nop())
	if err := sink.Send(context.Background(), NewMessage(testAlert(t))); err == nil {
		t.Fatal("missing url should error")
	}
}
