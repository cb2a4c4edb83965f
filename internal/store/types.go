package store

import (
	"context"
	"time"
)

// PermissionRecord is the cached microphone-permission outcome. Once
// Requested is true the kiosk never re-prompts; Granted is authoritative
// until a runtime permission error downgrades it.
type PermissionRecord struct {
	Requested bool      `json:"requested"`
	Granted   bool      `json:"granted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CallRecord is one completed-call summary.
type CallRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Exchanges       int       `json:"exchanges"`
}

// Store persists kiosk state across process restarts.
type Store interface {
	LoadPermission(ctx context.Context) (PermissionRecord, bool, error)
	SavePermission(ctx context.Context, rec PermissionRecord) error
	AppendCall(ctx context.Context, rec CallRecord) error
	RecentCalls(ctx context.Context, limit int) ([]CallRecord, error)
	Close() error
}
