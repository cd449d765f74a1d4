package manager

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/juniorT34/disposable-backend/session"
)

// Sweeper periodically reaps running sessions past their expiry and
// prunes terminal records past the retention window. Reap passes are
// serialized through the manager's sweep lock, shared with manual
// cleanup, so two passes never run concurrently.
type Sweeper struct {
	m        *Manager
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewSweeper(m *Manager) *Sweeper {
	return &Sweeper{
		m:        m,
		interval: m.cfg.SweepInterval,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()

	log.Printf("[sweeper] started, interval %s", s.interval)
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Println("[sweeper] stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	reaped := s.m.sweepExpired(ctx, func(session.Record) bool { return true })
	pruned := s.m.pruneTerminal()

	if len(reaped) > 0 || pruned > 0 {
		log.Printf("[sweeper] reaped %d expired sessions, pruned %d terminal records", len(reaped), pruned)
	}
}

// sweepExpired reaps every running session with expiresAt <= now that
// matches keep, using the shared stop pathway with terminal status
// Expired. One session's failure never aborts the batch. The sweep lock
// keeps the periodic cycle and manual cleanup from reaping concurrently.
func (m *Manager) sweepExpired(ctx context.Context, keep func(session.Record) bool) []session.Record {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	now := m.now()
	reaped := []session.Record{}

	for _, rec := range m.reg.ListAll() {
		if rec.Status != session.StatusRunning || rec.ExpiresAt.After(now) {
			continue
		}
		if !keep(rec) {
			continue
		}

		committed, err := m.terminate(ctx, rec.ID, session.StatusExpired, nil)
		if err != nil {
			log.Printf("[sweeper] reap %s: %v", rec.ID, err)
			continue
		}
		if committed {
			rec.Status = session.StatusExpired
			reaped = append(reaped, rec)
		}
	}
	return reaped
}

// pruneTerminal drops terminal records older than the retention window
// from the active registry. Their history stays in the durable store.
func (m *Manager) pruneTerminal() int {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	cutoff := m.now().Add(-m.cfg.Retention)
	pruned := 0

	for _, rec := range m.reg.ListAll() {
		if !rec.Status.Terminal() {
			continue
		}
		endedAt := rec.ExpiresAt
		if rec.StoppedAt != nil {
			endedAt = *rec.StoppedAt
		}
		if endedAt.Before(cutoff) {
			m.reg.Remove(rec.ID)
			pruned++
		}
	}
	return pruned
}
