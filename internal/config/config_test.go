package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validConfig = `
server:
  addr: ":8080"
sandbox:
  image: "python:3.11-slim"
  memory_mb: 512
  cpu_percent: 50
repro:
  timeout: 300s
  clone_depth: 50
llm:
  base_url: "https://llm.internal/v1"
  model: "repair-analyst"
  temperature: 0.2
  max_tokens: 4000
janitor:
  schedule: "@every 1h"
  max_age: 24h
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "repairagent.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Sandbox.Image != "python:3.11-slim" {
		t.Errorf("Sandbox.Image = %q, want %q", cfg.Sandbox.Image, "python:3.11-slim")
	}
	if cfg.Repro.CloneDepth != 50 {
		t.Errorf("Repro.CloneDepth = %d, want 50", cfg.Repro.CloneDepth)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, "server:\n  addr: \":9090\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Sandbox.Image == "" {
		t.Error("expected default sandbox image to be applied")
	}
	if cfg.Sandbox.MemoryMB != 512 {
		t.Errorf("MemoryMB = %d, want default 512", cfg.Sandbox.MemoryMB)
	}
	if cfg.Repro.CloneDepth != 50 {
		t.Errorf("CloneDepth = %d, want default 50", cfg.Repro.CloneDepth)
	}
	if cfg.Janitor.MaxAge.Hours() != 24 {
		t.Errorf("Janitor.MaxAge = %v, want 24h", cfg.Janitor.MaxAge)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestOverlayReadsEnv(t *testing.T) {
	t.Setenv("REPAIRAGENT_WEBHOOK_SECRET", "shh")
	t.Setenv("REPAIRAGENT_DATABASE_DSN", "postgres://x")
	t.Setenv("REPAIRAGENT_LLM_API_KEY", "key-123")

	var cfg AgentConfig
	Overlay(&cfg)

	if cfg.WebhookSecret != "shh" {
		t.Errorf("WebhookSecret = %q, want %q", cfg.WebhookSecret, "shh")
	}
	if cfg.DatabaseDSN != "postgres://x" {
		t.Errorf("DatabaseDSN = %q, want %q", cfg.DatabaseDSN, "postgres://x")
	}
	if cfg.LLMAPIKey != "key-123" {
		t.Errorf("LLMAPIKey = %q, want %q", cfg.LLMAPIKey, "key-123")
	}
}

func TestValidate(t *testing.T) {
	cfg := &AgentConfig{}
	applyDefaults(cfg)
	cfg.LLM.BaseURL = "" // leave required field empty to trigger a validation error

	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("expected validation errors for missing llm.base_url")
	}

	found := false
	for _, e := range errs {
		if e.Field == "llm.base_url" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error for llm.base_url, got %v", errs)
	}
}

func TestValidateClean(t *testing.T) {
	cfg := &AgentConfig{}
	applyDefaults(cfg)
	cfg.LLM.BaseURL = "https://llm.internal/v1"

	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("expected no validation errors, got %v", errs)
	}
}
