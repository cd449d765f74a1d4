// Package registry holds the authoritative in-process view of session
// state. Every status transition in the system goes through
// CompareAndTransition, which serializes mutations per session without
// a global write lock.
package registry

import (
	"sync"

	"github.com/juniorT34/disposable-backend/session"
)

type entry struct {
	mu        sync.Mutex
	rec       session.Record
	published bool
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Insert reserves a session id and stores the record unpublished: the
// id is claimed atomically, but Get and the listings skip the record
// until Publish. A running record is therefore never observable before
// its access URL is set.
func (r *Registry) Insert(rec session.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[rec.ID]; exists {
		return session.ErrConflict
	}
	r.entries[rec.ID] = &entry{rec: rec}
	return nil
}

// Publish makes a previously inserted record visible to reads.
func (r *Registry) Publish(id string) error {
	e, ok := r.lookup(id)
	if !ok {
		return session.ErrNotFound
	}

	e.mu.Lock()
	e.published = true
	e.mu.Unlock()
	return nil
}

func (r *Registry) Get(id string) (session.Record, error) {
	e, ok := r.lookup(id)
	if !ok {
		return session.Record{}, session.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.published {
		return session.Record{}, session.ErrNotFound
	}
	return e.rec, nil
}

// CompareAndTransition applies mutate to the record only if its current
// status equals expected, and returns the updated record. A mismatch
// returns ErrStaleState: the caller lost the race to a concurrent
// transition. This is the only way session state changes after Insert.
func (r *Registry) CompareAndTransition(id string, expected session.Status, mutate func(*session.Record)) (session.Record, error) {
	e, ok := r.lookup(id)
	if !ok {
		return session.Record{}, session.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.Status != expected {
		return session.Record{}, session.ErrStaleState
	}
	mutate(&e.rec)
	return e.rec, nil
}

// Remove drops a session from the active registry. The durable store
// keeps its history.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// ListByOwner returns a snapshot of the caller's published records.
func (r *Registry) ListByOwner(userID string) []session.Record {
	return r.list(func(rec *session.Record) bool {
		return rec.UserID == userID
	})
}

// ListAll returns a snapshot of every published record.
func (r *Registry) ListAll() []session.Record {
	return r.list(func(*session.Record) bool { return true })
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	return e, ok
}

// list collects entry pointers under the read lock, then copies each
// record under its own lock, so a slow reader never stalls writers.
func (r *Registry) list(keep func(*session.Record) bool) []session.Record {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	records := make([]session.Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.published && keep(&e.rec) {
			records = append(records, e.rec)
		}
		e.mu.Unlock()
	}
	return records
}
