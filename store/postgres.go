package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/juniorT34/disposable-backend/session"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Save(ctx context.Context, rec session.Record) error {
	var targetURLSQL sql.NullString
	if rec.TargetURL != nil {
		targetURLSQL = sql.NullString{String: *rec.TargetURL, Valid: true}
	}
	var flavorSQL sql.NullString
	if rec.Flavor != nil {
		flavorSQL = sql.NullString{String: string(*rec.Flavor), Valid: true}
	}
	var stoppedAtSQL sql.NullTime
	if rec.StoppedAt != nil {
		stoppedAtSQL = sql.NullTime{Time: *rec.StoppedAt, Valid: true}
	}
	var lastErrorSQL sql.NullString
	if rec.LastError != nil {
		lastErrorSQL = sql.NullString{String: *rec.LastError, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, session_type, status, container_id, target_url, flavor, access_url, created_at, expires_at, stopped_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, container_id = EXCLUDED.container_id, access_url = EXCLUDED.access_url, expires_at = EXCLUDED.expires_at, stopped_at = EXCLUDED.stopped_at, last_error = EXCLUDED.last_error
	`, rec.ID, rec.UserID, rec.Type, rec.Status, rec.ContainerID, targetURLSQL, flavorSQL, rec.AccessURL, rec.CreatedAt, rec.ExpiresAt, stoppedAtSQL, lastErrorSQL)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, rec session.Record) error {
	var stoppedAtSQL sql.NullTime
	if rec.StoppedAt != nil {
		stoppedAtSQL = sql.NullTime{Time: *rec.StoppedAt, Valid: true}
	}
	var lastErrorSQL sql.NullString
	if rec.LastError != nil {
		lastErrorSQL = sql.NullString{String: *rec.LastError, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, expires_at = $2, stopped_at = $3, last_error = $4
		WHERE id = $5
	`, rec.Status, rec.ExpiresAt, stoppedAtSQL, lastErrorSQL, id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]session.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, session_type, status, container_id, target_url, flavor, access_url, created_at, expires_at, stopped_at, last_error
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by user: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (p *Postgres) ListAll(ctx context.Context) ([]session.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, session_type, status, container_id, target_url, flavor, access_url, created_at, expires_at, stopped_at, last_error
		FROM sessions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all sessions: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (p *Postgres) MarkRunningAsError(ctx context.Context, message string) (int, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, stopped_at = $2, last_error = $3
		WHERE status = $4
	`, session.StatusError, time.Now(), message, session.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark running sessions as error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark running rows affected: %w", err)
	}
	return int(rows), nil
}

func scanRecords(rows *sql.Rows) ([]session.Record, error) {
	records := []session.Record{}
	for rows.Next() {
		var rec session.Record
		var targetURLSQL sql.NullString
		var flavorSQL sql.NullString
		var stoppedAtSQL sql.NullTime
		var lastErrorSQL sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Type,
			&rec.Status,
			&rec.ContainerID,
			&targetURLSQL,
			&flavorSQL,
			&rec.AccessURL,
			&rec.CreatedAt,
			&rec.ExpiresAt,
			&stoppedAtSQL,
			&lastErrorSQL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		if targetURLSQL.Valid {
			rec.TargetURL = &targetURLSQL.String
		}
		if flavorSQL.Valid {
			flavor := session.Flavor(flavorSQL.String)
			rec.Flavor = &flavor
		}
		if stoppedAtSQL.Valid {
			rec.StoppedAt = &stoppedAtSQL.Time
		}
		if lastErrorSQL.Valid {
			rec.LastError = &lastErrorSQL.String
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session rows: %w", err)
	}
	return records, nil
}
