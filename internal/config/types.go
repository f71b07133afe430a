package config

import "time"

// AgentConfig is the top-level configuration for the repair agent,
// parsed from YAML and overlaid with environment-derived secrets.
type AgentConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Repro   ReproConfig   `yaml:"repro"`
	LLM     LLMConfig     `yaml:"llm"`
	Janitor JanitorConfig `yaml:"janitor"`

	// Secrets — never populated from YAML. Set via Overlay from the
	// environment after Load so checked-in config never carries them.
	WebhookSecret string `yaml:"-"`
	DatabaseDSN   string `yaml:"-"`
	LLMAPIKey     string `yaml:"-"`
}

// ServerConfig configures the webhook ingestion listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SandboxConfig configures the container runtime driver (C4).
type SandboxConfig struct {
	Image        string `yaml:"image"`
	MemoryMB     int64  `yaml:"memory_mb"`
	CPUPercent   int    `yaml:"cpu_percent"`
	WorkspaceDir string `yaml:"workspace_dir"` // in-container mount path
}

// ReproConfig configures the reproduction runner (C5).
type ReproConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	DepsTimeout time.Duration `yaml:"deps_timeout"`
	EditTimeout time.Duration `yaml:"editable_install_timeout"`
	CloneDepth  int           `yaml:"clone_depth"`
}

// LLMConfig configures the LLM client shared by C6/C7/C8.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// JanitorConfig configures the background sweep (C12).
type JanitorConfig struct {
	Schedule     string        `yaml:"schedule"` // cron expression
	MaxAge       time.Duration `yaml:"max_age"`
	WorkspaceDir string        `yaml:"workspace_dir"`
}

// ConfidenceGate is the analysis-confidence threshold below which the
// pipeline short-circuits to escalation (spec §4.6, §4.10).
const ConfidenceGate = 0.3

// MaxFixAttempts bounds the fix loop (spec §4.9).
const MaxFixAttempts = 3

// LogTruncateBudget is the default byte budget for log truncation (spec §4.2).
const LogTruncateBudget = 50_000
