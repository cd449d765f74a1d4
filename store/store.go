// Package store durably records session history for audit and
// reporting. Writes are best-effort from the manager's point of view: a
// store failure is logged and never fails a lifecycle operation.
package store

import (
	"context"

	"github.com/juniorT34/disposable-backend/session"
)

type Store interface {
	Save(ctx context.Context, rec session.Record) error
	UpdateStatus(ctx context.Context, id string, rec session.Record) error
	ListByUser(ctx context.Context, userID string) ([]session.Record, error)
	ListAll(ctx context.Context) ([]session.Record, error)
	// MarkRunningAsError flags sessions still recorded as running, used
	// at startup when the registry was lost with the process.
	MarkRunningAsError(ctx context.Context, message string) (int, error)
}

// Noop satisfies Store when no database is configured.
type Noop struct{}

func (Noop) Save(context.Context, session.Record) error { return nil }

func (Noop) UpdateStatus(context.Context, string, session.Record) error { return nil }

func (Noop) ListByUser(context.Context, string) ([]session.Record, error) { return nil, nil }

func (Noop) ListAll(context.Context) ([]session.Record, error) { return nil, nil }

func (Noop) MarkRunningAsError(context.Context, string) (int, error) { return 0, nil }
