package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvGroqKey, EnvGeminiKey, EnvPexelsKey, EnvYouTubeClientID, EnvYouTubeClientSecret, EnvYouTubeRefreshToken} {
		t.Setenv(k, "")
	}
}

func TestLoad_missingFileUsesDefaults(t *testing.T) {
	clearCredentials(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Errorf("default model = %q", cfg.LLM.Model)
	}
	if cfg.Voice.Name != "en-US-ChristopherNeural" {
		t.Errorf("default voice = %q", cfg.Voice.Name)
	}
	if cfg.Footage.PerPage != 5 || cfg.Footage.Orientation != "portrait" {
		t.Errorf("footage defaults = %+v", cfg.Footage)
	}
	if cfg.Render.FPS != 24 || cfg.Render.Preset != "fast" {
		t.Errorf("render defaults = %+v", cfg.Render)
	}
	if cfg.Timeouts.Render != 0 {
		t.Errorf("timeouts should default to none, got %v", cfg.Timeouts.Render)
	}
}

func TestLoad_yamlOverridesDefaults(t *testing.T) {
	clearCredentials(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`llm:
  provider: gemini
  model: gemini-2.5-flash
timeouts:
  render: 5m
render:
  fps: 30
paths:
  output: out
`)
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != ProviderGemini || cfg.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Timeouts.Render != 5*time.Minute {
		t.Errorf("timeouts.render = %v", cfg.Timeouts.Render)
	}
	if cfg.Render.FPS != 30 {
		t.Errorf("fps = %d", cfg.Render.FPS)
	}
	if cfg.Render.Preset != "fast" {
		t.Errorf("unset fields should keep defaults, preset = %q", cfg.Render.Preset)
	}
	if cfg.Paths.Output != "out" {
		t.Errorf("paths.output = %q", cfg.Paths.Output)
	}
}

func TestLoad_badYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_missingCredentials(t *testing.T) {
	clearCredentials(t)
	cfg, _ := Load("")

	err := cfg.Validate()
	var missing *MissingCredentialError
	if !errors.As(err, &missing) || missing.Key != EnvGroqKey {
		t.Fatalf("expected missing %s, got %v", EnvGroqKey, err)
	}

	cfg.Credentials.GroqAPIKey = "g"
	err = cfg.Validate()
	if !errors.As(err, &missing) || missing.Key != EnvPexelsKey {
		t.Fatalf("expected missing %s, got %v", EnvPexelsKey, err)
	}

	cfg.Credentials.PexelsAPIKey = "p"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_geminiNeedsGeminiKey(t *testing.T) {
	clearCredentials(t)
	t.Setenv(EnvGroqKey, "g")
	t.Setenv(EnvPexelsKey, "p")
	cfg, _ := Load("")
	cfg.LLM.Provider = ProviderGemini

	var missing *MissingCredentialError
	if err := cfg.Validate(); !errors.As(err, &missing) || missing.Key != EnvGeminiKey {
		t.Fatalf("expected missing %s, got %v", EnvGeminiKey, err)
	}
}

func TestValidate_unknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "mystery"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidateUpload(t *testing.T) {
	clearCredentials(t)
	t.Setenv(EnvYouTubeClientID, "id")
	cfg, _ := Load("")

	var missing *MissingCredentialError
	if err := cfg.ValidateUpload(); !errors.As(err, &missing) || missing.Key != EnvYouTubeClientSecret {
		t.Fatalf("expected missing %s, got %v", EnvYouTubeClientSecret, err)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("AUTOTOK_TEST_INT", "12")
	if got := GetEnvInt("AUTOTOK_TEST_INT", 3); got != 12 {
		t.Errorf("got %d", got)
	}
	t.Setenv("AUTOTOK_TEST_INT", "abc")
	if got := GetEnvInt("AUTOTOK_TEST_INT", 3); got != 3 {
		t.Errorf("invalid int should fall back, got %d", got)
	}
}
