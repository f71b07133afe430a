// Package llmclient is the LLM transport shared by the pipeline's three
// structured calls. It has a single entry point, Complete, which returns
// the model's raw text; the three calls, each a distinct Go function
// returning a distinct artifact type, are analysis.Analyze,
// testsynth.Synthesize and fixsynth.Synthesize, which reach this client
// through their own narrow LLM interfaces. No LLM provider SDK appears anywhere in the
// reference corpus this package was modeled on, so the transport is built
// directly on net/http with backoff/v4 retry — see DESIGN.md.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Client submits prompts to the configured LLM endpoint and returns its
// raw UTF-8 text response. Analysis and fix responses must be JSON; test
// responses are a single source-level test function. Each call carries
// its own request timeout (recommended ≤60s per spec.md §5).
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	log         zerolog.Logger
}

// Config configures a Client. Fields mirror internal/config.LLMConfig.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New constructs a Client against an OpenAI-compatible chat-completions
// endpoint — the lowest common denominator most self-hosted and hosted
// LLM reasoning services expose.
func New(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		log:         log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete submits prompt as the sole user message and returns the first
// choice's text content. Retries transient transport and 5xx failures
// with exponential backoff; a non-2xx response in the 4xx range is
// treated as permanent and not retried.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: marshal request: %w", err)
	}

	var respText string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("llmclient: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("llmclient: request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("llmclient: read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("llmclient: server error %d: %s", resp.StatusCode, string(data))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("llmclient: client error %d: %s", resp.StatusCode, string(data)))
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("llmclient: parse response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("llmclient: response has no choices"))
		}
		respText = parsed.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Dur("wait", wait).Msg("llm request retrying")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return respText, nil
}
