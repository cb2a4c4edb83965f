package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists kiosk state in PostgreSQL, for fleets where call
// history is collected centrally.
type PostgresStore struct {
	pool *pgxpool.Pool
	// kioskID scopes rows so multiple kiosks can share one database.
	kioskID string
}

func NewPostgresStore(ctx context.Context, databaseURL, kioskID string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if kioskID == "" {
		kioskID = "default"
	}
	return &PostgresStore{pool: pool, kioskID: kioskID}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kiosk_permission (
			kiosk_id TEXT PRIMARY KEY,
			requested BOOLEAN NOT NULL,
			granted BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS kiosk_calls (
			id TEXT PRIMARY KEY,
			kiosk_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			exchanges INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_kiosk_calls_ended ON kiosk_calls (kiosk_id, ended_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadPermission(ctx context.Context) (PermissionRecord, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT requested, granted, updated_at FROM kiosk_permission WHERE kiosk_id=$1`,
		s.kioskID)

	var rec PermissionRecord
	if err := row.Scan(&rec.Requested, &rec.Granted, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionRecord{}, false, nil
		}
		return PermissionRecord{}, false, fmt.Errorf("load permission: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) SavePermission(ctx context.Context, rec PermissionRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kiosk_permission (kiosk_id, requested, granted, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kiosk_id) DO UPDATE SET requested=excluded.requested,
		   granted=excluded.granted, updated_at=excluded.updated_at`,
		s.kioskID, rec.Requested, rec.Granted, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendCall(ctx context.Context, rec CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kiosk_calls (id, kiosk_id, session_id, started_at, ended_at, duration_seconds, exchanges)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, s.kioskID, rec.SessionID, rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.Exchanges)
	if err != nil {
		return fmt.Errorf("append call: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, started_at, ended_at, duration_seconds, exchanges
		 FROM kiosk_calls WHERE kiosk_id=$1 ORDER BY ended_at DESC LIMIT $2`,
		s.kioskID, limit)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	out := make([]CallRecord, 0, limit)
	for rows.Next() {
		var r CallRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.DurationSeconds, &r.Exchanges); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
