package events

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives serialized lifecycle events on Send. A subscriber
// that cannot keep up has events dropped, never queued against the
// publisher.
type Subscriber struct {
	Send      chan []byte
	Done      chan struct{}
	userID    string
	admin     bool
	closeOnce sync.Once
	drops     atomic.Int64
}

func newSubscriber(bufferSize int, userID string, admin bool) *Subscriber {
	return &Subscriber{
		Send:   make(chan []byte, bufferSize),
		Done:   make(chan struct{}),
		userID: userID,
		admin:  admin,
	}
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.Done)
	})
}

func (s *Subscriber) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

func (s *Subscriber) Drops() int64 {
	return s.drops.Load()
}

func (s *Subscriber) wants(ownerID string) bool {
	return s.admin || s.userID == ownerID
}
