package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 3000 {
		t.Fatalf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.BindAddr != ":3000" {
		t.Fatalf("BindAddr = %q, want :3000", cfg.BindAddr)
	}
	if cfg.DefaultLanguageCode != "en-US" {
		t.Fatalf("DefaultLanguageCode = %q, want en-US", cfg.DefaultLanguageCode)
	}
	if cfg.TBICMinConfidence != 0 {
		t.Fatalf("TBICMinConfidence = %v, want 0", cfg.TBICMinConfidence)
	}
	if cfg.TranscriberMode != "auto" || cfg.ResponderMode != "auto" || cfg.SynthesizerMode != "auto" {
		t.Fatalf("unexpected default modes: %+v", cfg)
	}
	if cfg.ElevenLabsAPIKey != "" {
		t.Fatalf("ElevenLabsAPIKey = %q, want empty default", cfg.ElevenLabsAPIKey)
	}
}

func TestLoadUsesExplicitPort(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9191 || cfg.BindAddr != ":9191" {
		t.Fatalf("Port/BindAddr = %d/%q, want 9191/:9191", cfg.Port, cfg.BindAddr)
	}
}

func TestLoadRejectsOutOfRangeMinConfidence(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TBIC_MIN_CONFIDENCE", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range TBIC_MIN_CONFIDENCE")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DEFAULT_LANGUAGE_CODE",
		"TBIC_MIN_CONFIDENCE",
		"TRANSCRIBER_MODE",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_STT_MODEL_ID",
		"STT_DUPLEX_PYTHON",
		"STT_DUPLEX_SCRIPT",
		"RESPONDER_MODE",
		"RESPONDER_HTTP_URL",
		"RESPONDER_CLI_PATH",
		"SYNTHESIZER_MODE",
		"ELEVENLABS_TTS_VOICE_ID",
		"ELEVENLABS_TTS_MODEL_ID",
		"ELEVENLABS_TTS_OUTPUT_FORMAT",
		"TTS_DUPLEX_PYTHON",
		"TTS_DUPLEX_SCRIPT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
