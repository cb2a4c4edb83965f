package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/railvoice/kiosk/internal/call"
	"github.com/railvoice/kiosk/internal/config"
	"github.com/railvoice/kiosk/internal/ivr"
	"github.com/railvoice/kiosk/internal/observability"
	"github.com/railvoice/kiosk/internal/speech"
	"github.com/railvoice/kiosk/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *speech.MockProvider, *store.InMemoryStore) {
	t.Helper()
	client := ivr.NewMockClient()
	provider := speech.NewMockProvider()
	provider.SetAutoComplete(time.Millisecond)
	st := store.NewInMemoryStore()
	metrics := observability.NewMetrics(fmt.Sprintf("httpapi_test_%d", time.Now().UnixNano()))
	gate := call.NewGate(context.Background(), st, provider)

	delays := call.Delays{
		Settle:      time.Millisecond,
		Reply:       time.Millisecond,
		VoiceRetry:  time.Millisecond,
		EndCall:     20 * time.Millisecond,
		ElapsedTick: 10 * time.Millisecond,
	}
	controller := call.NewController(delays, client, provider, gate, st, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	go controller.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Config{AllowAnyOrigin: true}
	ts := httptest.NewServer(New(cfg, controller, st, metrics).Router())
	t.Cleanup(ts.Close)
	return ts, provider, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	res, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	ts, _, st := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/call/start", nil)
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var started map[string]any
	if err := json.NewDecoder(res.Body).Decode(&started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if id, _ := started["session_id"].(string); id == "" {
		t.Fatalf("missing session_id in start response: %+v", started)
	}

	dup := postJSON(t, ts.URL+"/v1/call/start", nil)
	defer dup.Body.Close()
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate start status = %d, want %d", dup.StatusCode, http.StatusConflict)
	}

	keyRes := postJSON(t, ts.URL+"/v1/call/key", map[string]string{"key": "5"})
	defer keyRes.Body.Close()
	if keyRes.StatusCode != http.StatusAccepted {
		t.Fatalf("key status = %d, want %d", keyRes.StatusCode, http.StatusAccepted)
	}

	expRes, err := http.Get(ts.URL + "/v1/transcript/export")
	if err != nil {
		t.Fatalf("export request error = %v", err)
	}
	defer expRes.Body.Close()
	if expRes.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d, want %d", expRes.StatusCode, http.StatusOK)
	}
	if ct := expRes.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("export content type = %q, want text/plain", ct)
	}
	if cd := expRes.Header.Get("Content-Disposition"); !strings.Contains(cd, "transcript_") {
		t.Fatalf("export disposition = %q, want transcript filename", cd)
	}
	body, err := io.ReadAll(expRes.Body)
	if err != nil {
		t.Fatalf("read export body: %v", err)
	}
	if !strings.Contains(string(body), "Pressed: 5") {
		t.Fatalf("export body %q missing keypad entry", body)
	}

	endRes := postJSON(t, ts.URL+"/v1/call/end", nil)
	defer endRes.Body.Close()
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}

	again := postJSON(t, ts.URL+"/v1/call/end", nil)
	defer again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("double end status = %d, want %d", again.StatusCode, http.StatusConflict)
	}

	// The history append is asynchronous relative to the end response.
	deadline := time.Now().Add(time.Second)
	for {
		calls, err := st.RecentCalls(context.Background(), 5)
		if err != nil {
			t.Fatalf("RecentCalls() error = %v", err)
		}
		if len(calls) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("history length = %d, want 1", len(calls))
		}
		time.Sleep(5 * time.Millisecond)
	}

	histRes, err := http.Get(ts.URL + "/v1/history?limit=5")
	if err != nil {
		t.Fatalf("history request error = %v", err)
	}
	defer histRes.Body.Close()
	if histRes.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d, want %d", histRes.StatusCode, http.StatusOK)
	}
	var hist struct {
		Calls []store.CallRecord `json:"calls"`
	}
	if err := json.NewDecoder(histRes.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if len(hist.Calls) != 1 {
		t.Fatalf("history calls = %d, want 1", len(hist.Calls))
	}
}

func TestPressKeyRejectsBadInput(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/call/key", map[string]string{"key": "q"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad key status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	noCall := postJSON(t, ts.URL+"/v1/call/key", map[string]string{"key": "5"})
	defer noCall.Body.Close()
	if noCall.StatusCode != http.StatusConflict {
		t.Fatalf("no-call key status = %d, want %d", noCall.StatusCode, http.StatusConflict)
	}
}

func TestHistoryLimitValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/v1/history?limit=0")
	if err != nil {
		t.Fatalf("history request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("history status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}
}

func TestDisplayFeedStreamsCallEvents(t *testing.T) {
	ts, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()

	res := postJSON(t, ts.URL+"/v1/call/start", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	seen := map[string]bool{}
	for !seen["call_started"] || !seen["utterance"] {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read display message: %v (seen %v)", err, seen)
		}
		if typ, _ := msg["type"].(string); typ != "" {
			seen[typ] = true
		}
	}
}
