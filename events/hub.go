// Package events fans session lifecycle transitions out to live
// subscribers (dashboards, the websocket endpoint). Publishing never
// blocks the lifecycle hot path: a subscriber with a full buffer loses
// the event and has its drop counter bumped.
package events

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/juniorT34/disposable-backend/session"
)

const subscriberBuffer = 64

type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a listener. Non-admin subscribers only see events
// for their own sessions.
func (h *Hub) Subscribe(userID string, admin bool) *Subscriber {
	sub := newSubscriber(subscriberBuffer, userID, admin)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.Close()
}

// Publish delivers the event to every interested subscriber without
// blocking on any of them.
func (h *Hub) Publish(ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[events] marshal event for %s: %v", ev.SessionID, err)
		return
	}

	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		if sub.wants(ev.UserID) {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case <-sub.Done:
			continue
		default:
		}
		select {
		case <-sub.Done:
		case sub.Send <- data:
		default:
			sub.drops.Add(1)
		}
	}
}

// Close disconnects every subscriber. Used at shutdown so streaming
// handlers unblock and return.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.Close()
		delete(h.subs, sub)
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
