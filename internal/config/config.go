package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the photo relay and analysis proxy.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	PublicBaseURL    string

	AllowAnyOrigin bool

	AnalysisAPIBaseURL string
	AnalysisAPITimeout time.Duration
	AnalyzeMaxBytes    int64

	RelayTTL           time.Duration
	RelaySweepInterval time.Duration
	RelayPollInterval  time.Duration
	UploadMaxBytes     int64

	TranscodeMode         string
	TranscodeQuality      int
	TranscodeMaxDimension int
	TranscodeMaxPixels    int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "skinlens"),
		PublicBaseURL:    strings.TrimRight(stringsTrimSpace("APP_PUBLIC_BASE_URL"), "/"),
		AllowAnyOrigin:   false,
		// The analysis service lives behind API Gateway; the browser never sees this URL.
		AnalysisAPIBaseURL:    envOrDefault("ANALYSIS_API_BASE_URL", "https://n1omiadwic.execute-api.us-east-1.amazonaws.com/prod"),
		AnalysisAPITimeout:    60 * time.Second,
		AnalyzeMaxBytes:       40 << 20,
		RelayTTL:              15 * time.Minute,
		RelaySweepInterval:    0,
		RelayPollInterval:     2 * time.Second,
		UploadMaxBytes:        25 << 20,
		TranscodeMode:         strings.ToLower(envOrDefault("TRANSCODE_MODE", "reencode")),
		TranscodeQuality:      80,
		TranscodeMaxDimension: 2048,
		TranscodeMaxPixels:    50_000_000,
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisAPITimeout, err = durationFromEnv("ANALYSIS_API_TIMEOUT", cfg.AnalysisAPITimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalyzeMaxBytes, err = int64FromEnv("ANALYZE_MAX_BYTES", cfg.AnalyzeMaxBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.RelayTTL, err = durationFromEnv("RELAY_TTL", cfg.RelayTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.RelaySweepInterval, err = durationFromEnv("RELAY_SWEEP_INTERVAL", cfg.RelaySweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.RelayPollInterval, err = durationFromEnv("RELAY_POLL_INTERVAL", cfg.RelayPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.UploadMaxBytes, err = int64FromEnv("UPLOAD_MAX_BYTES", cfg.UploadMaxBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscodeQuality, err = intFromEnv("TRANSCODE_QUALITY", cfg.TranscodeQuality)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscodeMaxDimension, err = intFromEnv("TRANSCODE_MAX_DIMENSION", cfg.TranscodeMaxDimension)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscodeMaxPixels, err = intFromEnv("TRANSCODE_MAX_PIXELS", cfg.TranscodeMaxPixels)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges for values that may come from the environment.
func (c Config) Validate() error {
	if c.RelayTTL < time.Minute {
		return fmt.Errorf("RELAY_TTL must be at least 1m")
	}
	if c.RelaySweepInterval < 0 {
		return fmt.Errorf("RELAY_SWEEP_INTERVAL must be >= 0")
	}
	if c.RelayPollInterval < 250*time.Millisecond {
		return fmt.Errorf("RELAY_POLL_INTERVAL must be at least 250ms")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if c.AnalyzeMaxBytes <= 0 {
		return fmt.Errorf("ANALYZE_MAX_BYTES must be positive")
	}
	if c.AnalysisAPITimeout <= 0 {
		return fmt.Errorf("ANALYSIS_API_TIMEOUT must be positive")
	}
	switch c.TranscodeMode {
	case "reencode", "off":
	default:
		return fmt.Errorf("invalid TRANSCODE_MODE: %q (expected reencode|off)", c.TranscodeMode)
	}
	if c.TranscodeQuality < 1 || c.TranscodeQuality > 100 {
		return fmt.Errorf("TRANSCODE_QUALITY must be within 1..100")
	}
	if c.TranscodeMaxDimension < 64 {
		return fmt.Errorf("TRANSCODE_MAX_DIMENSION must be at least 64")
	}
	if c.TranscodeMaxPixels < 1_000_000 {
		return fmt.Errorf("TRANSCODE_MAX_PIXELS must be at least 1000000")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
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

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
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
