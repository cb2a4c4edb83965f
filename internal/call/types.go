// Package call implements the voice interaction controller: one event loop
// arbitrating speech capture, speech playback, the remote dialogue session
// and user barge-in.
package call

import (
	"errors"
	"time"
)

// Role tags an utterance with its origin.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// DisplayName is the role label used in exported transcripts.
func (r Role) DisplayName() string {
	if r == RoleUser {
		return "User"
	}
	return "System"
}

// Utterance is a single unit of text intended for or produced by speech.
type Utterance struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrCallActive   = errors.New("a call is already active")
	ErrNoActiveCall = errors.New("no active call")
)

// StartInfo is returned to the caller of StartCall.
type StartInfo struct {
	SessionID string            `json:"session_id"`
	Message   string            `json:"message"`
	State     string            `json:"state"`
	Options   map[string]string `json:"options,omitempty"`
	StartedAt time.Time         `json:"started_at"`
}

// EndInfo is returned to the caller of EndCall.
type EndInfo struct {
	SessionID string        `json:"session_id"`
	Duration  time.Duration `json:"duration"`
	Exchanges int           `json:"exchanges"`
}
