package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses an agent configuration from the given YAML file path,
// then applies defaults and overlays secrets from the environment.
func Load(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	Overlay(&cfg)
	return &cfg, nil
}

// LoadDefault searches for an agent config in standard locations and loads
// the first one found. Search order: ./repairagent.yaml, ~/.repairagent/config.yaml
func LoadDefault() (*AgentConfig, error) {
	candidates := []string{"repairagent.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".repairagent", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no agent config found (searched: %v)", candidates)
}

// Overlay reads secrets and connection strings from the environment.
// Config files never carry these values.
func Overlay(cfg *AgentConfig) {
	cfg.WebhookSecret = os.Getenv("REPAIRAGENT_WEBHOOK_SECRET")
	cfg.DatabaseDSN = os.Getenv("REPAIRAGENT_DATABASE_DSN")
	cfg.LLMAPIKey = os.Getenv("REPAIRAGENT_LLM_API_KEY")
}

// applyDefaults fills in zero-valued fields with the system defaults named
// throughout spec.md so a minimal config file is still fully operable.
func applyDefaults(cfg *AgentConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = "python:3.11-slim"
	}
	if cfg.Sandbox.MemoryMB == 0 {
		cfg.Sandbox.MemoryMB = 512
	}
	if cfg.Sandbox.CPUPercent == 0 {
		cfg.Sandbox.CPUPercent = 50
	}
	if cfg.Sandbox.WorkspaceDir == "" {
		cfg.Sandbox.WorkspaceDir = "/app"
	}

	if cfg.Repro.Timeout == 0 {
		cfg.Repro.Timeout = 300 * time.Second
	}
	if cfg.Repro.DepsTimeout == 0 {
		cfg.Repro.DepsTimeout = 180 * time.Second
	}
	if cfg.Repro.EditTimeout == 0 {
		cfg.Repro.EditTimeout = 120 * time.Second
	}
	if cfg.Repro.CloneDepth == 0 {
		cfg.Repro.CloneDepth = 50
	}

	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4000
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 45 * time.Second
	}

	if cfg.Janitor.Schedule == "" {
		cfg.Janitor.Schedule = "@every 1h"
	}
	if cfg.Janitor.MaxAge == 0 {
		cfg.Janitor.MaxAge = 24 * time.Hour
	}
	if cfg.Janitor.WorkspaceDir == "" {
		cfg.Janitor.WorkspaceDir = cfg.Sandbox.WorkspaceDir
	}
}
