package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voxcall client.
type Config struct {
	ServerURL        string
	UserID           string
	DiagBindAddr     string
	MetricsNamespace string
	ShutdownTimeout  time.Duration

	ReconnectBaseDelay   time.Duration
	ReconnectMaxAttempts int
	PingInterval         time.Duration

	FragmentGap  time.Duration
	PlayerMode   string
	RecordingDir string

	RecognizerMode string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		ServerURL:            envOrDefault("VOX_SERVER_URL", "http://127.0.0.1:8000"),
		UserID:               envOrDefault("VOX_USER_ID", "anonymous"),
		DiagBindAddr:         envOrDefault("VOX_DIAG_BIND_ADDR", "127.0.0.1:9464"),
		MetricsNamespace:     envOrDefault("VOX_METRICS_NAMESPACE", "voxcall"),
		RecognizerMode:       envOrDefault("VOX_RECOGNIZER", "script"),
		PlayerMode:           envOrDefault("VOX_PLAYER", "discard"),
		RecordingDir:         envOrDefault("VOX_RECORDING_DIR", ""),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:      10 * time.Second,
		ReconnectBaseDelay:   2500 * time.Millisecond,
		ReconnectMaxAttempts: 5,
		PingInterval:         25 * time.Second,
		FragmentGap:          40 * time.Millisecond,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("VOX_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectBaseDelay, err = durationFromEnv("VOX_RECONNECT_BASE_DELAY", cfg.ReconnectBaseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectMaxAttempts, err = intFromEnv("VOX_RECONNECT_MAX_ATTEMPTS", cfg.ReconnectMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.PingInterval, err = durationFromEnv("VOX_PING_INTERVAL", cfg.PingInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.FragmentGap, err = durationFromEnv("VOX_FRAGMENT_GAP", cfg.FragmentGap)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.ServerURL) == "" {
		return Config{}, fmt.Errorf("VOX_SERVER_URL must not be empty")
	}
	if cfg.ReconnectBaseDelay <= 0 {
		return Config{}, fmt.Errorf("VOX_RECONNECT_BASE_DELAY must be positive")
	}
	if cfg.ReconnectMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("VOX_RECONNECT_MAX_ATTEMPTS must be positive")
	}
	if cfg.FragmentGap < 0 {
		return Config{}, fmt.Errorf("VOX_FRAGMENT_GAP must be >= 0")
	}
	if cfg.PingInterval < time.Second {
		return Config{}, fmt.Errorf("VOX_PING_INTERVAL must be at least 1s")
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

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
