package alert

import (
	"testing"
	"time"
)

func mustAlert(t *testing.T, kind Kind, source, subject, title, body string, fields []Field, at time.Time) Alert {
	t.Helper()
	a, err := New(kind, source, subject, title, body, fields, 50, at)
	if err != nil {
		t.Fatalf("construct alert: %v", err)
	}
	return a
}

func TestFingerprintStableWithinMinute(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 30, 5, 0, time.UTC)
	spec := DefaultFingerprintSpec()

	a := mustAlert(t, KindLevelTouch, "darkpool", "SPY", "SPY touched 500.00", "", []Field{{"price", "500.00"}}, at)
	b := mustAlert(t, KindLevelTouch, "darkpool", "SPY", "SPY touched 500.00", "", []Field{{"price", "500.00"}}, at.Add(40*time.Second))

	if Fingerprint(a, spec) != Fingerprint(b, spec) {
		t.Fatal("identical alerts within the same minute bucket should share a fingerprint")
	}
}

func TestFingerprintDiffersAcrossMinutes(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 30, 55, 0, time.UTC)
	spec := DefaultFingerprintSpec()

	a := mustAlert(t, KindLevelTouch, "darkpool", "SPY", "SPY touched 500.00", "", nil, at)
	b := mustAlert(t, KindLevelTouch, "darkpool", "SPY", "SPY touched 500.00", "", nil, at.Add(10*time.Second))

	if Fingerprint(a, spec) == Fingerprint(b, spec) {
		t.Fatal("same payload a minute bucket apart must not collapse")
	}
}

func TestFingerprintSensitiveToNumbers(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	spec := DefaultFingerprintSpec()

	a := mustAlert(t, KindLevelTouch, "darkpool", "SPY", "SPY touched 500.00", "", []Field{{"price", "500.00"}}, at)
	b := mustAlert(t, KindLevelTouch, "darkpool", "SPY", "SPY touched 501.00", "", []Field{{"price", "501.00"}}, at)

	if Fingerprint(a, spec) == Fingerprint(b, spec) {
		t.Fatal("alerts differing in a salient number must not collapse")
	}
}

func TestFingerprintNormalizesTitleWhitespace(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	spec := DefaultFingerprintSpec()

	a := mustAlert(t, KindNewsItem, "trending", "", "Fed  pause   odds rising", "", nil, at)
	b := mustAlert(t, KindNewsItem, "trending", "", "fed pause odds rising", "", nil, at)

	if Fingerprint(a, spec) != Fingerprint(b, spec) {
		t.Fatal("whitespace and case variants of the same title should collapse")
	}
}

func TestFingerprintLength(t *testing.T) {
	at := time.Now().UTC()
	a := mustAlert(t, KindRateChange, "fedrates", "", "cut odds moved", "", nil, at)
	if got := Fingerprint(a, DefaultFingerprintSpec()); len(got) != 16 {
		t.Fatalf("fingerprint should render 16 hex chars, got %q", got)
	}
}

func TestNewRejectsMissingFields(t *testing.T) {
	if _, err := New("", "src", "", "title", "", nil, 0, time.Time{}); err != ErrMissingKind {
		t.Fatalf("expected ErrMissingKind, got %v", err)
	}
	if _, err := New(KindNewsItem, "", "", "title", "", nil, 0, time.Time{}); err != ErrMissingSource {
		t.Fatalf("expected ErrMissingSource, got %v", err)
	}
	if _, err := New(KindNewsItem, "src", "", "", "", nil, 0, time.Time{}); err != ErrMissingTitle {
		t.Fatalf("expected ErrMissingTitle, got %v", err)
	}
	if _, err := New(KindNewsItem, "src", "", "title", "", nil, 150, time.Time{}); err == nil {
		t.Fatal("score above 100 should be rejected")
	}
}

func TestChannel(t *testing.T) {
	at := time.Now().UTC()
	withSubject := mustAlert(t, KindLevelTouch, "darkpool", "spy", "touch", "", nil, at)
	if withSubject.Channel() != "SPY" {
		t.Fatalf("expected subject channel SPY, got %s", withSubject.Channel())
	}
	global := mustAlert(t, KindRateChange, "fedrates", "", "cut odds", "", nil, at)
	if global.Channel() != ChannelUnified {
		t.Fatalf("expected unified channel, got %s", global.Channel())
	}
}
