// Package speech abstracts the platform capability provider for speech
// capture and playback. The provider is asynchronous and occasionally
// voice-less right after startup; callers must tolerate both.
package speech

import "context"

// Voice describes one playback voice reported by the engine.
type Voice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Gender  string `json:"gender,omitempty"`
	Natural bool   `json:"natural,omitempty"`
	Default bool   `json:"default,omitempty"`
}

type CaptureEventType string

const (
	CaptureResult CaptureEventType = "result"
	CaptureError  CaptureEventType = "error"
	CaptureEnded  CaptureEventType = "ended"
)

// Well-known capture error codes. Anything else is an engine-specific code
// and is treated as a generic capture failure.
const (
	CodeNoSpeech   = "no_speech"
	CodeNotAllowed = "not_allowed"
	CodeAborted    = "aborted"
)

// CaptureEvent is emitted by a capture session. A session produces at most
// one CaptureResult, then CaptureEnded when the engine is done.
type CaptureEvent struct {
	Type   CaptureEventType
	Text   string
	Code   string
	Detail string
}

// CaptureSession is one single-shot capture activation.
type CaptureSession interface {
	Events() <-chan CaptureEvent
	// Stop tears the session down. Idempotent; the events channel is closed
	// once the underlying engine has let go.
	Stop()
}

// Recognizer starts capture activations.
type Recognizer interface {
	// Available reports whether speech capture exists in this environment.
	Available() bool
	StartCapture(ctx context.Context) (CaptureSession, error)
}

// Playback is one in-flight utterance. Done yields exactly one value: nil on
// normal completion, an error otherwise. Cancel is immediate from the
// caller's perspective even though engine teardown may lag.
type Playback interface {
	Done() <-chan error
	Cancel()
}

// Synthesizer plays whole utterances and reports available voices.
type Synthesizer interface {
	// Voices may return an empty list while the engine is still loading its
	// voice inventory.
	Voices() []Voice
	Speak(ctx context.Context, text string, voice *Voice) (Playback, error)
}

// PermissionPrompter asks the platform for capture access.
type PermissionPrompter interface {
	RequestCapture(ctx context.Context) (bool, error)
}

// Provider bundles the capability surfaces one engine implements.
type Provider interface {
	Recognizer
	Synthesizer
	PermissionPrompter
}
