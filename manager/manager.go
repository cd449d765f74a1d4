// Package manager implements the session lifecycle: provisioning,
// access control, stop/extend/status, expiry sweeping, and the glue to
// the event hub and the durable store.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/juniorT34/disposable-backend/config"
	"github.com/juniorT34/disposable-backend/events"
	"github.com/juniorT34/disposable-backend/registry"
	"github.com/juniorT34/disposable-backend/runtime"
	"github.com/juniorT34/disposable-backend/session"
	"github.com/juniorT34/disposable-backend/store"
)

const (
	startRateInterval = 2 * time.Second
	startRateBurst    = 3
	persistTimeout    = 5 * time.Second
)

type Manager struct {
	cfg   *config.Config
	reg   *registry.Registry
	rt    runtime.Client
	store store.Store
	hub   *events.Hub

	now func() time.Time

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	// slots counts a user's sessions from slot reservation at the start
	// of provisioning until the terminal transition, so in-flight starts
	// count against the cap even before the record is published.
	slotsMu sync.Mutex
	slots   map[string]int

	// sweepMu serializes reap passes, periodic and manual alike.
	sweepMu sync.Mutex

	persistMu   sync.Mutex
	persistTail map[string]chan struct{}
	persistWg   sync.WaitGroup
}

func New(cfg *config.Config, rt runtime.Client, st store.Store, hub *events.Hub) *Manager {
	return &Manager{
		cfg:         cfg,
		reg:         registry.New(),
		rt:          rt,
		store:       st,
		hub:         hub,
		now:         time.Now,
		limiters:    make(map[string]*rate.Limiter),
		slots:       make(map[string]int),
		persistTail: make(map[string]chan struct{}),
	}
}

// ReconcileLostSessions marks sessions the durable store still records
// as running as errored. Called once at startup: the in-memory registry
// died with the previous process, so those containers are unreachable.
func (m *Manager) ReconcileLostSessions(ctx context.Context) error {
	n, err := m.store.MarkRunningAsError(ctx, "backend restarted, session lost")
	if err != nil {
		return fmt.Errorf("reconcile lost sessions: %w", err)
	}
	if n > 0 {
		log.Printf("[manager] reconciled %d lost sessions", n)
	}
	return nil
}

// Close waits for in-flight best-effort persistence writes to finish.
func (m *Manager) Close() {
	m.persistWg.Wait()
}

// Stop terminates a session on behalf of its owner or an admin. A
// session that already reached a terminal state (for example because
// the sweeper got there first) is treated as successfully stopped.
func (m *Manager) Stop(ctx context.Context, caller session.Caller, id string) error {
	rec, err := m.reg.Get(id)
	if err != nil || !authorized(caller, rec) {
		return session.ErrNotFound
	}

	_, err = m.terminate(ctx, id, session.StatusStopped, nil)
	return err
}

// Extend pushes a running session's expiry forward by additionalSeconds,
// clamped to the configured per-call bound and capped at
// createdAt + max session age. At the cap the call is a no-op success.
func (m *Manager) Extend(ctx context.Context, caller session.Caller, id string, additionalSeconds int64) (time.Time, error) {
	if additionalSeconds <= 0 {
		return time.Time{}, fmt.Errorf("%w: additional seconds must be positive", session.ErrInvalidArgument)
	}
	if max := int64(m.cfg.MaxExtend / time.Second); additionalSeconds > max {
		additionalSeconds = max
	}

	rec, err := m.reg.Get(id)
	if err != nil || !authorized(caller, rec) {
		return time.Time{}, session.ErrNotFound
	}

	now := m.now()
	updated, err := m.reg.CompareAndTransition(id, session.StatusRunning, func(r *session.Record) {
		base := r.ExpiresAt
		if now.After(base) {
			base = now
		}
		newExpiry := base.Add(time.Duration(additionalSeconds) * time.Second)
		cap := r.CreatedAt.Add(m.cfg.MaxSessionAge)
		if newExpiry.After(cap) {
			newExpiry = cap
		}
		if newExpiry.After(r.ExpiresAt) {
			r.ExpiresAt = newExpiry
		}
	})
	if err != nil {
		if errors.Is(err, session.ErrStaleState) {
			return time.Time{}, fmt.Errorf("%w: session is not running", session.ErrInvalidArgument)
		}
		return time.Time{}, session.ErrNotFound
	}

	m.persistUpdate(updated)
	return updated.ExpiresAt, nil
}

// Status returns the session record, reconciling against the live
// container first: if the daemon no longer has the container while the
// registry says running, the session transitions to Error rather than
// lying to the caller.
func (m *Manager) Status(ctx context.Context, caller session.Caller, id string) (session.Record, error) {
	rec, err := m.reg.Get(id)
	if err != nil || !authorized(caller, rec) {
		return session.Record{}, session.ErrNotFound
	}

	if rec.Status != session.StatusRunning || rec.ContainerID == "" {
		return rec, nil
	}

	inspectCtx, cancel := context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
	info, err := m.rt.Inspect(inspectCtx, rec.ContainerID)
	cancel()

	if errors.Is(err, runtime.ErrGone) || (err == nil && !info.Running) {
		msg := "container missing from runtime"
		if _, terr := m.terminate(ctx, id, session.StatusError, &msg); terr != nil {
			log.Printf("[manager] drift transition for %s: %v", id, terr)
		}
		return m.reg.Get(id)
	}
	if err != nil {
		// Inspect failed but the container may well be fine; report
		// registry state.
		log.Printf("[manager] inspect %s: %v", id, err)
	}
	return rec, nil
}

// List returns the caller's sessions, or every session for an admin.
func (m *Manager) List(ctx context.Context, caller session.Caller) []session.Record {
	if caller.Role == session.RoleAdmin {
		return m.reg.ListAll()
	}
	return m.reg.ListByOwner(caller.UserID)
}

// terminate is the single stop pathway shared by explicit stops, the
// sweeper, and drift handling. The registry transition commits first;
// container teardown happens after, outside any lock, and is attempted
// exactly once per session because only one caller wins the transition.
// The bool reports whether this call performed the transition.
func (m *Manager) terminate(ctx context.Context, id string, terminal session.Status, lastError *string) (bool, error) {
	now := m.now()
	updated, err := m.reg.CompareAndTransition(id, session.StatusRunning, func(r *session.Record) {
		r.Status = terminal
		r.StoppedAt = &now
		if lastError != nil {
			r.LastError = lastError
		}
	})
	if err != nil {
		if errors.Is(err, session.ErrStaleState) {
			// Lost the race to a concurrent stop or sweep; the winner
			// already tore the container down.
			return false, nil
		}
		return false, err
	}

	m.releaseSlot(updated.UserID)

	if updated.ContainerID != "" {
		m.teardown(ctx, id, updated.ContainerID)
	}

	m.hub.Publish(session.Event{
		SessionID: id,
		UserID:    updated.UserID,
		Status:    terminal,
		Timestamp: now,
	})
	m.persistUpdate(updated)
	return true, nil
}

// teardown stops and removes the container. The registry already holds
// the terminal status, so runtime failures are logged, not propagated:
// the registry is the source of truth for intent.
func (m *Manager) teardown(ctx context.Context, id, containerID string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RuntimeTimeout)
	defer cancel()

	if err := m.rt.Stop(stopCtx, containerID); err != nil {
		log.Printf("[manager] stop container for %s: %v", id, err)
	}
	if err := m.rt.Remove(stopCtx, containerID); err != nil {
		log.Printf("[manager] remove container for %s: %v", id, err)
	}
}

func (m *Manager) limiter(userID string) *rate.Limiter {
	m.limitersMu.Lock()
	defer m.limitersMu.Unlock()

	l, ok := m.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(startRateInterval), startRateBurst)
		m.limiters[userID] = l
	}
	return l
}

// reserveSlot claims a concurrent-session slot for the user, counting
// sessions still being provisioned. The matching release happens on the
// terminal transition, or in Start's failure paths.
func (m *Manager) reserveSlot(userID string) error {
	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()

	if m.slots[userID] >= m.cfg.MaxSessionsPerUser {
		return fmt.Errorf("%w: at most %d concurrent sessions", session.ErrLimitExceeded, m.cfg.MaxSessionsPerUser)
	}
	m.slots[userID]++
	return nil
}

func (m *Manager) releaseSlot(userID string) {
	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()

	if m.slots[userID] > 1 {
		m.slots[userID]--
	} else {
		delete(m.slots, userID)
	}
}

// enqueuePersist queues a best-effort store write without blocking the
// lifecycle path. Writes for one session apply in the order they were
// queued, so a stop's update can never land before the start's save.
func (m *Manager) enqueuePersist(id, op string, write func(context.Context) error) {
	m.persistMu.Lock()
	prev := m.persistTail[id]
	done := make(chan struct{})
	m.persistTail[id] = done
	m.persistMu.Unlock()

	m.persistWg.Add(1)
	go func() {
		defer m.persistWg.Done()
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			log.Printf("[manager] persist %s for %s: %v", op, id, err)
		}
		close(done)

		m.persistMu.Lock()
		if m.persistTail[id] == done {
			delete(m.persistTail, id)
		}
		m.persistMu.Unlock()
	}()
}

func (m *Manager) persistUpdate(rec session.Record) {
	m.enqueuePersist(rec.ID, "update", func(ctx context.Context) error {
		return m.store.UpdateStatus(ctx, rec.ID, rec)
	})
}

func (m *Manager) persistSave(rec session.Record) {
	m.enqueuePersist(rec.ID, "save", func(ctx context.Context) error {
		return m.store.Save(ctx, rec)
	})
}

func authorized(caller session.Caller, rec session.Record) bool {
	return caller.Role == session.RoleAdmin || caller.UserID == rec.UserID
}
