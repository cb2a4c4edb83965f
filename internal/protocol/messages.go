package protocol

import "errors"

// MessageType identifies websocket payload variants pushed to the display
// surface.
type MessageType string

const (
	TypeCallStarted  MessageType = "call_started"
	TypeCallEnded    MessageType = "call_ended"
	TypeUtterance    MessageType = "utterance"
	TypeMenuUpdate   MessageType = "menu_update"
	TypeStatusUpdate MessageType = "status_update"
	TypeElapsedTick  MessageType = "elapsed_tick"
	TypeSystemEvent  MessageType = "system_event"
	TypeErrorEvent   MessageType = "error_event"
)

// ErrInvalidKey is returned for input outside the keypad symbol set.
var ErrInvalidKey = errors.New("invalid keypad symbol")

type CallStarted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	StartedAt int64       `json:"started_at_ms"`
}

type CallEnded struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Duration  int64       `json:"duration_ms"`
	Exchanges int         `json:"exchanges"`
}

// Utterance mirrors one transcript entry, both origins.
type Utterance struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id"`
	Role    string      `json:"role"`
	Message string      `json:"message"`
	TSMs    int64       `json:"ts_ms"`
}

// MenuUpdate carries the dialogue state name and the keypad options the
// remote service attached to its last reply.
type MenuUpdate struct {
	Type    MessageType       `json:"type"`
	State   string            `json:"state"`
	Options map[string]string `json:"options,omitempty"`
}

type StatusUpdate struct {
	Type      MessageType `json:"type"`
	Speaking  bool        `json:"speaking"`
	Listening bool        `json:"listening"`
	Pending   int         `json:"pending"`
}

type ElapsedTick struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Seconds   int64       `json:"seconds"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// Keys is the fixed keypad symbol set, in display order.
var Keys = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "*", "0", "#"}

// ValidateKey checks a single keypad symbol. Keyboard key presses on the
// display surface map one-to-one onto these symbols.
func ValidateKey(key string) error {
	if len(key) != 1 {
		return ErrInvalidKey
	}
	switch key[0] {
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '*', '#':
		return nil
	default:
		return ErrInvalidKey
	}
}
