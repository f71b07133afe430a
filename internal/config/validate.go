package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks an AgentConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *AgentConfig) []ValidationError {
	var errs []ValidationError

	if cfg.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "is required"})
	}

	if cfg.Sandbox.Image == "" {
		errs = append(errs, ValidationError{Field: "sandbox.image", Message: "is required"})
	}
	if cfg.Sandbox.MemoryMB <= 0 {
		errs = append(errs, ValidationError{Field: "sandbox.memory_mb", Message: "must be positive"})
	}
	if cfg.Sandbox.CPUPercent <= 0 || cfg.Sandbox.CPUPercent > 100 {
		errs = append(errs, ValidationError{Field: "sandbox.cpu_percent", Message: "must be in (0, 100]"})
	}

	if cfg.Repro.CloneDepth <= 0 {
		errs = append(errs, ValidationError{Field: "repro.clone_depth", Message: "must be positive"})
	}
	if cfg.Repro.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "repro.timeout", Message: "must be positive"})
	}

	if cfg.LLM.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "llm.base_url", Message: "is required"})
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 0.2 {
		errs = append(errs, ValidationError{Field: "llm.temperature", Message: "must be in [0, 0.2]"})
	}
	if cfg.LLM.MaxTokens <= 0 {
		errs = append(errs, ValidationError{Field: "llm.max_tokens", Message: "must be positive"})
	}

	if cfg.Janitor.Schedule == "" {
		errs = append(errs, ValidationError{Field: "janitor.schedule", Message: "is required"})
	}
	if cfg.Janitor.MaxAge <= 0 {
		errs = append(errs, ValidationError{Field: "janitor.max_age", Message: "must be positive"})
	}

	return errs
}
