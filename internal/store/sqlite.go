package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists kiosk state in a local SQLite file. This is the
// default durable backend on the kiosk appliance.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    requested INTEGER NOT NULL,
    granted INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS calls (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP NOT NULL,
    duration_seconds REAL NOT NULL,
    exchanges INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_ended ON calls(ended_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

const permissionKey = "mic_permission"

func (s *SQLiteStore) LoadPermission(ctx context.Context) (PermissionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT requested, granted, updated_at FROM kv WHERE key = ?`, permissionKey)

	var rec PermissionRecord
	var requested, granted int
	if err := row.Scan(&requested, &granted, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PermissionRecord{}, false, nil
		}
		return PermissionRecord{}, false, fmt.Errorf("load permission: %w", err)
	}
	rec.Requested = requested != 0
	rec.Granted = granted != 0
	return rec, true, nil
}

func (s *SQLiteStore) SavePermission(ctx context.Context, rec PermissionRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, requested, granted, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET requested=excluded.requested,
		   granted=excluded.granted, updated_at=excluded.updated_at`,
		permissionKey, boolToInt(rec.Requested), boolToInt(rec.Granted), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save permission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendCall(ctx context.Context, rec CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, session_id, started_at, ended_at, duration_seconds, exchanges)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.Exchanges)
	if err != nil {
		return fmt.Errorf("append call: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, started_at, ended_at, duration_seconds, exchanges
		 FROM calls ORDER BY ended_at DESC LIMIT ?`, limit)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
