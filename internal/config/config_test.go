package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "AI_PROVIDER", "ARK_MODEL", "ARK_API_KEY", "ARK_ACCESS_KEY", "GEMINI_API_KEY", "SPEECH_PROVIDER", "SPEECH_APP_ID", "SESSION_TTL", "PENDING_TTL", "CHAT_API_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Intake.SessionTTL != 30*time.Minute || cfg.Intake.PendingTTL != 5*time.Minute {
		t.Fatalf("unexpected ttls: %v/%v", cfg.Intake.SessionTTL, cfg.Intake.PendingTTL)
	}
	if cfg.AI.Enabled() {
		t.Fatalf("AI should be disabled without credentials")
	}
	if cfg.Speech.Enabled {
		t.Fatalf("speech should be disabled without credentials")
	}
	if cfg.Server.ChatAPI {
		t.Fatalf("chat API should be off by default")
	}
}

func TestChatAPIToggle(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CHAT_API_ENABLED", "true")
	server, err := loadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !server.ChatAPI {
		t.Fatalf("expected chat API enabled")
	}

	t.Setenv("CHAT_API_ENABLED", "maybe")
	if _, err := loadServerConfig(); err == nil {
		t.Fatalf("expected error for invalid bool")
	}
}

func TestLoadProviderDetection(t *testing.T) {
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("ARK_MODEL", "")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.Provider != ProviderGemini || !cfg.AI.Enabled() {
		t.Fatalf("expected gemini provider, got %q", cfg.AI.Provider)
	}
	if cfg.Speech.Provider != SpeechGemini {
		t.Fatalf("expected gemini speech provider, got %q", cfg.Speech.Provider)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("X_TIMEOUT", "90")
	got, err := parseDurationEnv("X_TIMEOUT", time.Second)
	if err != nil || got != 90*time.Second {
		t.Fatalf("expected 90s, got %v (%v)", got, err)
	}

	t.Setenv("X_TIMEOUT", "2m")
	got, err = parseDurationEnv("X_TIMEOUT", time.Second)
	if err != nil || got != 2*time.Minute {
		t.Fatalf("expected 2m, got %v (%v)", got, err)
	}

	t.Setenv("X_TIMEOUT", "soon")
	if _, err := parseDurationEnv("X_TIMEOUT", time.Second); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestInvalidPort(t *testing.T) {
	t.Setenv("PORT", "80 80")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}
