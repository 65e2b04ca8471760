// Package config loads runtime settings for the voice orchestrator from
// environment variables, applying the missing-credential policy: an unset
// upstream credential disables only that capability rather than failing
// startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice orchestrator service.
type Config struct {
	Port                     int
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool

	DefaultLanguageCode string
	TBICMinConfidence   float64

	DatabaseURL string

	TranscriberMode     string
	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsSTTModel  string
	STTDuplexPythonPath string
	STTDuplexScript     string

	ResponderMode    string
	ResponderHTTPURL string
	ResponderCLIPath string

	SynthesizerMode           string
	ElevenLabsTTSVoice        string
	ElevenLabsTTSModel        string
	ElevenLabsTTSOutputFormat string
	TTSDuplexPythonPath       string
	TTSDuplexScript           string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                     3000,
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "voxrelay"),
		AllowAnyOrigin:           false,
		DefaultLanguageCode:      envOrDefault("DEFAULT_LANGUAGE_CODE", "en-US"),
		TBICMinConfidence:        0,
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,

		TranscriberMode:     envOrDefault("TRANSCRIBER_MODE", "auto"),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsSTTModel:  envOrDefault("ELEVENLABS_STT_MODEL_ID", "scribe_v1"),
		STTDuplexPythonPath: envOrDefault("STT_DUPLEX_PYTHON", "python3"),
		STTDuplexScript:     stringsTrimSpace("STT_DUPLEX_SCRIPT"),

		ResponderMode:    envOrDefault("RESPONDER_MODE", "auto"),
		ResponderHTTPURL: stringsTrimSpace("RESPONDER_HTTP_URL"),
		ResponderCLIPath: envOrDefault("RESPONDER_CLI_PATH", "llm-cli"),

		SynthesizerMode:           envOrDefault("SYNTHESIZER_MODE", "auto"),
		ElevenLabsTTSVoice:        envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel:        envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsTTSOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "pcm_16000"),
		TTSDuplexPythonPath:       envOrDefault("TTS_DUPLEX_PYTHON", "python3"),
		TTSDuplexScript:           stringsTrimSpace("TTS_DUPLEX_SCRIPT"),
	}

	var err error
	cfg.Port, err = intFromEnv("PORT", cfg.Port)
	if err != nil {
		return Config{}, err
	}
	cfg.BindAddr = fmt.Sprintf(":%d", cfg.Port)

	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.TBICMinConfidence, err = floatFromEnv("TBIC_MIN_CONFIDENCE", cfg.TBICMinConfidence)
	if err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 {
		return Config{}, fmt.Errorf("PORT must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.TBICMinConfidence < 0 || cfg.TBICMinConfidence > 1 {
		return Config{}, fmt.Errorf("TBIC_MIN_CONFIDENCE must be between 0 and 1")
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
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
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

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
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
