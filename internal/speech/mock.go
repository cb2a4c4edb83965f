package speech

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockProvider is an in-process capability provider used in tests and as the
// dev fallback when no engine commands are configured. Capture sessions
// replay scripted transcripts; playbacks either auto-complete after a fixed
// interval or wait for an explicit FinishPlayback.
type MockProvider struct {
	mu           sync.Mutex
	available    bool
	grantCapture bool
	promptErr    error
	prompts      int

	voices       []Voice
	scripted     []CaptureEvent
	autoComplete time.Duration

	spoken    []string
	playbacks []*mockPlayback
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		available:    true,
		grantCapture: true,
		voices: []Voice{
			{ID: "mock-en", Name: "Mock English", Lang: "en-US", Default: true},
		},
	}
}

// SetAvailable toggles whether capture exists in the environment.
func (p *MockProvider) SetAvailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = v
}

// SetPermission controls the outcome of the next permission prompts.
func (p *MockProvider) SetPermission(granted bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grantCapture = granted
	p.promptErr = err
}

// PromptCount reports how many times the permission dialog was invoked.
func (p *MockProvider) PromptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

// SetVoices replaces the reported voice inventory.
func (p *MockProvider) SetVoices(v []Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voices = append([]Voice(nil), v...)
}

// ScriptCapture queues events the next capture session will emit.
func (p *MockProvider) ScriptCapture(events ...CaptureEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripted = append(p.scripted, events...)
}

// SetAutoComplete makes playbacks finish on their own after d. Zero keeps
// them open until FinishPlayback is called.
func (p *MockProvider) SetAutoComplete(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoComplete = d
}

// Spoken returns the texts handed to Speak so far, in order.
func (p *MockProvider) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

// FinishPlayback completes the oldest unfinished playback with err.
func (p *MockProvider) FinishPlayback(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pb := range p.playbacks {
		if pb.finish(err) {
			return true
		}
	}
	return false
}

// CancelledPlaybacks counts playbacks that were cancelled before finishing.
func (p *MockProvider) CancelledPlaybacks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pb := range p.playbacks {
		if pb.wasCancelled() {
			n++
		}
	}
	return n
}

func (p *MockProvider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *MockProvider) RequestCapture(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts++
	if p.promptErr != nil {
		return false, p.promptErr
	}
	return p.grantCapture, nil
}

func (p *MockProvider) StartCapture(_ context.Context) (CaptureSession, error) {
	p.mu.Lock()
	if !p.available {
		p.mu.Unlock()
		return nil, errors.New("speech capture unavailable")
	}
	script := p.scripted
	p.scripted = nil
	p.mu.Unlock()

	events := make(chan CaptureEvent, len(script)+1)
	for _, evt := range script {
		events <- evt
	}
	return &mockCaptureSession{events: events}, nil
}

func (p *MockProvider) Voices() []Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Voice(nil), p.voices...)
}

func (p *MockProvider) Speak(_ context.Context, text string, _ *Voice) (Playback, error) {
	pb := &mockPlayback{done: make(chan error, 1)}

	p.mu.Lock()
	p.spoken = append(p.spoken, text)
	p.playbacks = append(p.playbacks, pb)
	auto := p.autoComplete
	p.mu.Unlock()

	if auto > 0 {
		time.AfterFunc(auto, func() { pb.finish(nil) })
	}
	return pb, nil
}

type mockCaptureSession struct {
	mu      sync.Mutex
	events  chan CaptureEvent
	stopped bool
}

func (s *mockCaptureSession) Events() <-chan CaptureEvent { return s.events }

func (s *mockCaptureSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.events <- CaptureEvent{Type: CaptureEnded}
	close(s.events)
}

type mockPlayback struct {
	mu        sync.Mutex
	done      chan error
	finished  bool
	cancelled bool
}

func (pb *mockPlayback) Done() <-chan error { return pb.done }

func (pb *mockPlayback) Cancel() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.finished {
		return
	}
	pb.finished = true
	pb.cancelled = true
	pb.done <- errors.New("playback cancelled")
}

func (pb *mockPlayback) finish(err error) bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.finished {
		return false
	}
	pb.finished = true
	pb.done <- err
	return true
}

func (pb *mockPlayback) wasCancelled() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.cancelled
}
