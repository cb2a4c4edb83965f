package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/railvoice/kiosk/internal/call"
	"github.com/railvoice/kiosk/internal/config"
	"github.com/railvoice/kiosk/internal/httpapi"
	"github.com/railvoice/kiosk/internal/ivr"
	"github.com/railvoice/kiosk/internal/observability"
	"github.com/railvoice/kiosk/internal/speech"
	"github.com/railvoice/kiosk/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.DatabaseURL, cfg.DataPath)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	provider := selectSpeechProvider(cfg)
	gate := call.NewGate(ctx, st, provider)

	dialogue := ivr.NewHTTPClient(cfg.IVRBaseURL, cfg.IVRRequestTimeout)

	delays := call.Delays{
		Settle:      cfg.SettleDelay,
		Reply:       cfg.ReplyDelay,
		VoiceRetry:  cfg.VoiceRetryDelay,
		EndCall:     cfg.EndCallDelay,
		ElapsedTick: cfg.ElapsedTick,
	}
	controller := call.NewController(delays, dialogue, provider, gate, st, metrics)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go controller.Run(runCtx)

	api := httpapi.New(cfg, controller, st, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("kiosk listening on %s (dialogue service %s)", cfg.BindAddr, cfg.IVRBaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	// End any active call before the loop stops so the remote session is
	// released and the history row is written.
	if _, err := controller.EndCall(context.Background()); err != nil && !errors.Is(err, call.ErrNoActiveCall) {
		log.Printf("end call on shutdown failed: %v", err)
	}
	runCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// selectSpeechProvider resolves the configured speech backend. "auto" uses
// the exec provider when a capture or playback command is configured and
// falls back to the mock otherwise, so a dev box without audio helpers still
// runs.
func selectSpeechProvider(cfg config.Config) speech.Provider {
	mode := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	execCfg := speech.ExecConfig{
		CaptureCommand:    cfg.CaptureCommand,
		PlaybackCommand:   cfg.PlaybackCommand,
		ListVoicesCommand: cfg.ListVoicesCommand,
		PermissionCommand: cfg.PermissionCommand,
	}

	switch mode {
	case "exec":
		p, err := speech.NewExecProvider(execCfg)
		if err != nil {
			log.Fatalf("speech provider init failed: %v", err)
		}
		log.Printf("speech provider: exec")
		return p
	case "mock":
		log.Printf("speech provider: mock")
		return speech.NewMockProvider()
	default: // auto
		if execCfg.CaptureCommand != "" || execCfg.PlaybackCommand != "" {
			p, err := speech.NewExecProvider(execCfg)
			if err != nil {
				log.Fatalf("speech provider init failed: %v", err)
			}
			log.Printf("speech provider: exec")
			return p
		}
		log.Printf("speech provider: mock (no capture or playback command configured)")
		return speech.NewMockProvider()
	}
}
