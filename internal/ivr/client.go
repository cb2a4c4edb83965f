// Package ivr talks to the remote dialogue service. The service is opaque to
// the kiosk: three request/response operations, no streaming, no retries.
package ivr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Reply is the response shape shared by start-session and submit-input.
type Reply struct {
	SessionID string            `json:"session_id"`
	Message   string            `json:"message"`
	State     string            `json:"state"`
	Options   map[string]string `json:"options,omitempty"`
	IsEnd     bool              `json:"is_end"`
}

// Summary is the completed-call record returned by end-session.
type Summary struct {
	SessionID       string  `json:"session_id"`
	DurationSeconds float64 `json:"duration_seconds"`
	StartedAt       string  `json:"started_at"`
	EndedAt         string  `json:"ended_at"`
	TotalExchanges  int     `json:"total_exchanges"`
}

// EndResult wraps the end-session response.
type EndResult struct {
	Message string  `json:"message"`
	Summary Summary `json:"summary"`
}

// Client is the dialogue-session contract the controller depends on.
type Client interface {
	StartSession(ctx context.Context) (Reply, error)
	SubmitInput(ctx context.Context, sessionID, input string) (Reply, error)
	EndSession(ctx context.Context, sessionID string) (EndResult, error)
}

// HTTPClient calls the dialogue service over its JSON HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type inputRequest struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

type endRequest struct {
	SessionID string `json:"session_id"`
}

func (c *HTTPClient) StartSession(ctx context.Context) (Reply, error) {
	var out Reply
	if err := c.post(ctx, "/api/ivr/start", struct{}{}, &out); err != nil {
		return Reply{}, err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return Reply{}, fmt.Errorf("start session: empty session_id in response")
	}
	return out, nil
}

func (c *HTTPClient) SubmitInput(ctx context.Context, sessionID, input string) (Reply, error) {
	var out Reply
	err := c.post(ctx, "/api/ivr/input", inputRequest{SessionID: sessionID, Input: input}, &out)
	if err != nil {
		return Reply{}, err
	}
	return out, nil
}

func (c *HTTPClient) EndSession(ctx context.Context, sessionID string) (EndResult, error) {
	var out EndResult
	err := c.post(ctx, "/api/ivr/end", endRequest{SessionID: sessionID}, &out)
	if err != nil {
		return EndResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("ivr %s status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
