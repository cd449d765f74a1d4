package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/juniorT34/disposable-backend/session"
)

func publishFor(h *Hub, userID string, status session.Status) {
	h.Publish(session.Event{
		SessionID: "browser-session_0000beef",
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now(),
	})
}

func mustReceive(t *testing.T, sub *Subscriber) session.Event {
	t.Helper()
	select {
	case data := <-sub.Send:
		var ev session.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return session.Event{}
	}
}

func assertEmpty(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case data := <-sub.Send:
		t.Fatalf("unexpected event: %s", data)
	default:
	}
}

func TestPublishReachesOwner(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("user-1", false)
	defer h.Unsubscribe(sub)

	publishFor(h, "user-1", session.StatusRunning)

	ev := mustReceive(t, sub)
	if ev.UserID != "user-1" || ev.Status != session.StatusRunning {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPublishSkipsForeignSubscriber(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("user-2", false)
	defer h.Unsubscribe(sub)

	publishFor(h, "user-1", session.StatusRunning)
	assertEmpty(t, sub)
}

func TestAdminSeesAllEvents(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("admin-1", true)
	defer h.Unsubscribe(sub)

	publishFor(h, "user-1", session.StatusRunning)
	publishFor(h, "user-2", session.StatusStopped)

	if ev := mustReceive(t, sub); ev.UserID != "user-1" {
		t.Fatalf("unexpected first event %+v", ev)
	}
	if ev := mustReceive(t, sub); ev.UserID != "user-2" {
		t.Fatalf("unexpected second event %+v", ev)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("user-1", false)
	defer h.Unsubscribe(sub)

	// Nobody drains Send, so the buffer fills and the overflow is
	// counted as drops. Publish must return promptly every time.
	for i := 0; i < subscriberBuffer+10; i++ {
		publishFor(h, "user-1", session.StatusRunning)
	}

	if got := sub.Drops(); got != 10 {
		t.Fatalf("expected 10 drops, got %d", got)
	}
	if got := len(sub.Send); got != subscriberBuffer {
		t.Fatalf("expected full buffer of %d, got %d", subscriberBuffer, got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("user-1", false)

	h.Unsubscribe(sub)
	if !sub.IsClosed() {
		t.Fatal("expected subscriber closed after unsubscribe")
	}
	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}

	publishFor(h, "user-1", session.StatusRunning)
	assertEmpty(t, sub)

	// Unsubscribing twice is harmless.
	h.Unsubscribe(sub)
}

func TestCloseDisconnectsAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("user-1", false)
	b := h.Subscribe("user-2", true)

	h.Close()

	if !a.IsClosed() || !b.IsClosed() {
		t.Fatal("expected all subscribers closed")
	}
	if got := h.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}
