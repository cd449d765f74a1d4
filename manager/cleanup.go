package manager

import (
	"context"

	"github.com/juniorT34/disposable-backend/session"
)

type CleanupResult struct {
	Reaped   int              `json:"reaped"`
	Sessions []session.Record `json:"sessions"`
}

// Cleanup triggers an out-of-cycle expiry sweep. Admins sweep every
// session; other callers only their own.
func (m *Manager) Cleanup(ctx context.Context, caller session.Caller) CleanupResult {
	keep := func(rec session.Record) bool {
		return rec.UserID == caller.UserID
	}
	if caller.Role == session.RoleAdmin {
		keep = func(session.Record) bool { return true }
	}

	reaped := m.sweepExpired(ctx, keep)
	return CleanupResult{
		Reaped:   len(reaped),
		Sessions: reaped,
	}
}
