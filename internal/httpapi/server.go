package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/railvoice/kiosk/internal/call"
	"github.com/railvoice/kiosk/internal/config"
	"github.com/railvoice/kiosk/internal/observability"
	"github.com/railvoice/kiosk/internal/protocol"
	"github.com/railvoice/kiosk/internal/store"
)

// Controller is the call-control surface the HTTP layer drives.
type Controller interface {
	StartCall(ctx context.Context) (call.StartInfo, error)
	EndCall(ctx context.Context) (call.EndInfo, error)
	PressKey(ctx context.Context, key string) error
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
	Transcript(ctx context.Context) ([]call.Utterance, error)
	Subscribe() (<-chan any, func())
}

type Server struct {
	cfg        config.Config
	controller Controller
	store      store.Store
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, controller Controller, st store.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		controller: controller,
		store:      st,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections may watch the display
				// feed unless explicitly opened up. Non-browser clients omit
				// Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/call/start", s.handleStartCall)
	r.Post("/v1/call/end", s.handleEndCall)
	r.Post("/v1/call/key", s.handlePressKey)
	r.Post("/v1/call/listen/start", s.handleStartListening)
	r.Post("/v1/call/listen/stop", s.handleStopListening)
	r.Get("/v1/transcript/export", s.handleTranscriptExport)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/ws", s.handleDisplayWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	info, err := s.controller.StartCall(r.Context())
	if err != nil {
		if errors.Is(err, call.ErrCallActive) {
			respondError(w, http.StatusConflict, "call_active", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "start_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	info, err := s.controller.EndCall(r.Context())
	if err != nil {
		if errors.Is(err, call.ErrNoActiveCall) {
			respondError(w, http.StatusConflict, "no_active_call", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "end_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":  info.SessionID,
		"duration_ms": info.Duration.Milliseconds(),
		"exchanges":   info.Exchanges,
	})
}

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handlePressKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.controller.PressKey(r.Context(), req.Key); err != nil {
		switch {
		case errors.Is(err, protocol.ErrInvalidKey):
			respondError(w, http.StatusBadRequest, "invalid_key", err.Error())
		case errors.Is(err, call.ErrNoActiveCall):
			respondError(w, http.StatusConflict, "no_active_call", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "key_failed", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleStartListening(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StartListening(r.Context()); err != nil {
		if errors.Is(err, call.ErrNoActiveCall) {
			respondError(w, http.StatusConflict, "no_active_call", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "listen_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleStopListening(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StopListening(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "listen_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleTranscriptExport(w http.ResponseWriter, r *http.Request) {
	entries, err := s.controller.Transcript(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+call.ExportFilename(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(call.ExportTranscript(entries)))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}
	calls, err := s.store.RecentCalls(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_failed", err.Error())
		return
	}
	if calls == nil {
		calls = []store.CallRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

// handleDisplayWS streams controller events to one display surface. The
// feed is outbound-only; reads exist to notice disconnects and answer pings.
func (s *Server) handleDisplayWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		s.metrics.WSMessages.WithLabelValues("inbound", "ignored").Inc()
	}

	cancel()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.CallStarted:
		return m.Type, true
	case protocol.CallEnded:
		return m.Type, true
	case protocol.Utterance:
		return m.Type, true
	case protocol.MenuUpdate:
		return m.Type, true
	case protocol.StatusUpdate:
		return m.Type, true
	case protocol.ElapsedTick:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
