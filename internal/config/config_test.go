package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.IVRBaseURL != "http://127.0.0.1:8000" {
		t.Fatalf("IVRBaseURL = %q, want default", cfg.IVRBaseURL)
	}
	if cfg.SpeechProvider != "auto" {
		t.Fatalf("SpeechProvider = %q, want %q", cfg.SpeechProvider, "auto")
	}
	if cfg.EndCallDelay != 2*time.Second {
		t.Fatalf("EndCallDelay = %v, want %v", cfg.EndCallDelay, 2*time.Second)
	}
	if cfg.SettleDelay != 300*time.Millisecond {
		t.Fatalf("SettleDelay = %v, want %v", cfg.SettleDelay, 300*time.Millisecond)
	}
}

func TestLoadOverridesDelays(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("KIOSK_END_CALL_DELAY", "750ms")
	t.Setenv("KIOSK_SETTLE_DELAY", "10ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EndCallDelay != 750*time.Millisecond {
		t.Fatalf("EndCallDelay = %v, want %v", cfg.EndCallDelay, 750*time.Millisecond)
	}
	if cfg.SettleDelay != 10*time.Millisecond {
		t.Fatalf("SettleDelay = %v, want %v", cfg.SettleDelay, 10*time.Millisecond)
	}
}

func TestLoadRejectsInvalidProvider(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("KIOSK_SPEECH_PROVIDER", "cloud")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want invalid provider error")
	}
}

func TestLoadRejectsShortIVRTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("KIOSK_IVR_REQUEST_TIMEOUT", "100ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want timeout validation error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"KIOSK_BIND_ADDR",
		"KIOSK_SHUTDOWN_TIMEOUT",
		"KIOSK_METRICS_NAMESPACE",
		"KIOSK_ALLOW_ANY_ORIGIN",
		"KIOSK_IVR_BASE_URL",
		"KIOSK_IVR_REQUEST_TIMEOUT",
		"KIOSK_SPEECH_PROVIDER",
		"KIOSK_CAPTURE_COMMAND",
		"KIOSK_PLAYBACK_COMMAND",
		"KIOSK_LIST_VOICES_COMMAND",
		"KIOSK_PERMISSION_COMMAND",
		"KIOSK_DATA_PATH",
		"DATABASE_URL",
		"KIOSK_SETTLE_DELAY",
		"KIOSK_REPLY_DELAY",
		"KIOSK_VOICE_RETRY_DELAY",
		"KIOSK_END_CALL_DELAY",
		"KIOSK_ELAPSED_TICK",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
