package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the kiosk daemon.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Remote dialogue service.
	IVRBaseURL        string
	IVRRequestTimeout time.Duration

	// Capability provider for speech capture and playback.
	SpeechProvider    string
	CaptureCommand    string
	PlaybackCommand   string
	ListVoicesCommand string
	PermissionCommand string

	// Durable kiosk state.
	DataPath    string
	DatabaseURL string

	// Controller timing knobs.
	SettleDelay     time.Duration
	ReplyDelay      time.Duration
	VoiceRetryDelay time.Duration
	EndCallDelay    time.Duration
	ElapsedTick     time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("KIOSK_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("KIOSK_METRICS_NAMESPACE", "kiosk"),
		AllowAnyOrigin:    false,
		IVRBaseURL:        envOrDefault("KIOSK_IVR_BASE_URL", "http://127.0.0.1:8000"),
		SpeechProvider:    envOrDefault("KIOSK_SPEECH_PROVIDER", "auto"),
		CaptureCommand:    strings.TrimSpace(os.Getenv("KIOSK_CAPTURE_COMMAND")),
		PlaybackCommand:   strings.TrimSpace(os.Getenv("KIOSK_PLAYBACK_COMMAND")),
		ListVoicesCommand: strings.TrimSpace(os.Getenv("KIOSK_LIST_VOICES_COMMAND")),
		PermissionCommand: strings.TrimSpace(os.Getenv("KIOSK_PERMISSION_COMMAND")),
		DataPath:          strings.TrimSpace(os.Getenv("KIOSK_DATA_PATH")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ShutdownTimeout:   15 * time.Second,
		IVRRequestTimeout: 15 * time.Second,
		SettleDelay:       300 * time.Millisecond,
		ReplyDelay:        150 * time.Millisecond,
		VoiceRetryDelay:   300 * time.Millisecond,
		EndCallDelay:      2 * time.Second,
		ElapsedTick:       time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("KIOSK_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.IVRRequestTimeout, err = durationFromEnv("KIOSK_IVR_REQUEST_TIMEOUT", cfg.IVRRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SettleDelay, err = durationFromEnv("KIOSK_SETTLE_DELAY", cfg.SettleDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyDelay, err = durationFromEnv("KIOSK_REPLY_DELAY", cfg.ReplyDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceRetryDelay, err = durationFromEnv("KIOSK_VOICE_RETRY_DELAY", cfg.VoiceRetryDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.EndCallDelay, err = durationFromEnv("KIOSK_END_CALL_DELAY", cfg.EndCallDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ElapsedTick, err = durationFromEnv("KIOSK_ELAPSED_TICK", cfg.ElapsedTick)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("KIOSK_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.IVRBaseURL) == "" {
		return Config{}, fmt.Errorf("KIOSK_IVR_BASE_URL must not be empty")
	}
	if cfg.IVRRequestTimeout < time.Second {
		return Config{}, fmt.Errorf("KIOSK_IVR_REQUEST_TIMEOUT must be at least 1s")
	}
	if cfg.SettleDelay < 0 || cfg.ReplyDelay < 0 || cfg.VoiceRetryDelay < 0 {
		return Config{}, fmt.Errorf("controller delays must not be negative")
	}
	if cfg.EndCallDelay < 0 {
		return Config{}, fmt.Errorf("KIOSK_END_CALL_DELAY must not be negative")
	}
	if cfg.ElapsedTick <= 0 {
		return Config{}, fmt.Errorf("KIOSK_ELAPSED_TICK must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.SpeechProvider)) {
	case "auto", "exec", "mock":
	default:
		return Config{}, fmt.Errorf("invalid KIOSK_SPEECH_PROVIDER: %q (expected auto|exec|mock)", cfg.SpeechProvider)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
