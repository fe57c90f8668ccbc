package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2025, 6, 2, 14, 30, 20, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)) {
		t.Fatalf("mid-interval start should align to the next boundary, got %s", got)
	}

	// Exactly on a boundary still waits one full interval.
	boundary := time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)
	if got := s.nextTick(boundary); !got.Equal(boundary.Add(time.Minute)) {
		t.Fatalf("boundary start should advance a full interval, got %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: 30 * time.Second}, zerolog.Nop())
	now := time.Date(2025, 6, 2, 14, 30, 20, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("unaligned scheduling should fire one interval from now, got %s", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ticks := 0
	err := s.Run(ctx, func(_ context.Context, now time.Time) error {
		if now.IsZero() {
			t.Fatal("tick should receive wall time")
		}
		ticks++
		cancel()
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ticks != 1 {
		t.Fatalf("expected exactly one tick before cancellation, got %d", ticks)
	}
}

func TestRunTickErrorNotFatal(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ticks := 0
	err := s.Run(ctx, func(_ context.Context, _ time.Time) error {
		ticks++
		if ticks == 2 {
			cancel()
		}
		return errors.New("transient provider failure")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ticks != 2 {
		t.Fatalf("a failing tick must not stop the loop, got %d ticks", ticks)
	}
}
