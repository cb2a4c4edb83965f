package ivr

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockClient is an in-process dialogue service used by tests and by the
// daemon when no remote service is reachable in dev.
type MockClient struct {
	mu       sync.Mutex
	sessions map[string]int

	WelcomeText string
	// EndAfter makes SubmitInput report end-of-dialogue once a session has
	// seen this many inputs. Zero means never.
	EndAfter int
	// FailNext forces the next call of each operation to fail.
	FailNextStart bool
	FailNextInput bool
	FailNextEnd   bool
}

var errMockUnavailable = errors.New("ivr mock: forced failure")

func NewMockClient() *MockClient {
	return &MockClient{
		sessions:    make(map[string]int),
		WelcomeText: "Welcome to Train Enquiry System",
	}
}

func (m *MockClient) StartSession(_ context.Context) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNextStart {
		m.FailNextStart = false
		return Reply{}, errMockUnavailable
	}
	id := uuid.NewString()
	m.sessions[id] = 0
	return Reply{
		SessionID: id,
		Message:   m.WelcomeText,
		State:     "main_menu",
		Options: map[string]string{
			"1": "Book Train Ticket",
			"2": "Check Train Status",
			"5": "PNR Status Check",
			"0": "Repeat Menu",
		},
	}, nil
}

func (m *MockClient) SubmitInput(_ context.Context, sessionID, input string) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNextInput {
		m.FailNextInput = false
		return Reply{}, errMockUnavailable
	}
	n, ok := m.sessions[sessionID]
	if !ok {
		return Reply{}, errors.New("ivr mock: session not found")
	}
	n++
	m.sessions[sessionID] = n

	isEnd := m.EndAfter > 0 && n >= m.EndAfter
	msg := "You said " + strings.TrimSpace(input) + "."
	if isEnd {
		msg = "Thank you for calling. Goodbye."
	}
	return Reply{
		SessionID: sessionID,
		Message:   msg,
		State:     "main_menu",
		IsEnd:     isEnd,
	}, nil
}

func (m *MockClient) EndSession(_ context.Context, sessionID string) (EndResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNextEnd {
		m.FailNextEnd = false
		return EndResult{}, errMockUnavailable
	}
	n := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return EndResult{
		Message: "Call ended successfully",
		Summary: Summary{SessionID: sessionID, TotalExchanges: n},
	}, nil
}
