package pubsub

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestPublishReachesChannelSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	spy := hub.Subscribe("SPY")
	unified := hub.Subscribe("unified")

	if got := hub.Publish("SPY", []byte("level touch")); got != 1 {
		t.Fatalf("expected 1 delivery on SPY, got %d", got)
	}

	select {
	case msg := <-spy.C:
		if string(msg) != "level touch" {
			t.Fatalf("unexpected payload %q", msg)
		}
	default:
		t.Fatal("subscriber should have received the message")
	}

	select {
	case <-unified.C:
		t.Fatal("unified subscriber must not receive SPY traffic")
	default:
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	if got := hub.Publish("QQQ", []byte("nobody home")); got != 0 {
		t.Fatalf("expected 0 deliveries, got %d", got)
	}
}

func TestSlowSubscriberDroppedOthersUnaffected(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := hub.Subscribe("unified")
	healthy := hub.Subscribe("unified")

	// Fill the slow subscriber's buffer without draining.
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish("unified", []byte("flood"))
		// Keep the healthy subscriber draining.
		<-healthy.C
	}

	if hub.Subscribers("unified") != 1 {
		t.Fatalf("slow subscriber should be deregistered, have %d", hub.Subscribers("unified"))
	}
	if _, open := <-slow.C; open {
		// Buffered messages drain first; channel closes after.
		for range slow.C {
		}
	}

	if got := hub.Publish("unified", []byte("after")); got != 1 {
		t.Fatalf("healthy subscriber should still receive, got %d deliveries", got)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe("SPY")
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	if hub.Subscribers("SPY") != 0 {
		t.Fatal("unsubscribed listener still registered")
	}
}
