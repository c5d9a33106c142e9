package stream

import (
	"sync"
	"testing"
	"time"
)

func TestHubBroadcastsToAllSubscribers(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	hub := NewHub(WithClock(func() time.Time { return now }))
	a := hub.Subscribe()
	defer a.Close()
	b := hub.Subscribe()
	defer b.Close()

	sent := hub.Publish(TypeConfigChanged)
	if sent.ID == "" {
		t.Fatalf("expected event id")
	}
	for _, sub := range []Subscription{a, b} {
		select {
		case got := <-sub.Events:
			if got != sent {
				t.Fatalf("expected %+v, got %+v", sent, got)
			}
			if !got.Timestamp.Equal(now) {
				t.Fatalf("unexpected timestamp %v", got.Timestamp)
			}
		default:
			t.Fatalf("expected delivery")
		}
	}
}

func TestHubDropsOldestOnOverflow(t *testing.T) {
	hub := NewHub(WithSubscriberCapacity(2))
	sub := hub.Subscribe()
	defer sub.Close()
	first := hub.Publish(TypeConfigChanged)
	second := hub.Publish(TypeComponentsReloaded)
	third := hub.Publish(TypeConfigChanged)

	got := []Event{<-sub.Events, <-sub.Events}
	if got[0].ID != second.ID || got[1].ID != third.ID {
		t.Fatalf("expected oldest (%s) dropped, got %s and %s", first.ID, got[0].ID, got[1].ID)
	}
}

func TestHubCloseSubscription(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	if hub.Len() != 1 {
		t.Fatalf("expected one subscriber, got %d", hub.Len())
	}
	sub.Close()
	sub.Close()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.Len())
	}
	hub.Publish(TypeConfigChanged)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe()
	hub.Close()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel after hub close")
	}
	late := hub.Subscribe()
	if _, ok := <-late.Events; ok {
		t.Fatalf("expected closed channel for late subscriber")
	}
	late.Close()
}

func TestHubConcurrentPublishAndClose(t *testing.T) {
	hub := NewHub(WithSubscriberCapacity(1))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe()
			for j := 0; j < 20; j++ {
				hub.Publish(TypeConfigChanged)
			}
			sub.Close()
		}()
	}
	wg.Wait()
	if hub.Len() != 0 {
		t.Fatalf("expected all subscriptions removed, got %d", hub.Len())
	}
}
