package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/go-github/v55/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/ci-healer/agent/internal/codehost"
	"github.com/ci-healer/agent/internal/config"
	"github.com/ci-healer/agent/internal/dbstore"
	"github.com/ci-healer/agent/internal/llmclient"
	"github.com/ci-healer/agent/internal/orchestrator"
	"github.com/ci-healer/agent/internal/repro"
	"github.com/ci-healer/agent/internal/sandbox"
	"github.com/ci-healer/agent/internal/workspace"
)

// app bundles every wired dependency a command might need. Shared by
// the serve, status and replay commands.
type app struct {
	Config     *config.AgentConfig
	Log        zerolog.Logger
	Store      *dbstore.Store
	Sandboxes  *sandbox.Driver
	Workspaces *workspace.Manager
	Codehost   *codehost.Client
	Orch       *orchestrator.Orchestrator
}

// newApp wires up the full dependency set and returns a ready app plus a
// cleanup function the caller must defer.
func newApp(ctx context.Context) (*app, func(), error) {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	store, err := dbstore.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open durable store: %w", err)
	}

	sandboxes, err := sandbox.NewDriver(cfg.Sandbox.CPUPercent)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("connect to container runtime: %w", err)
	}

	workspaces := workspace.NewManager(&codehost.ExecGit{}, os.TempDir()+"/repairagent-workspaces")

	ghHTTPClient := githubHTTPClient(ctx, os.Getenv("REPAIRAGENT_GITHUB_TOKEN"))
	ch := codehost.NewClient(github.NewClient(ghHTTPClient))

	llm := llmclient.New(llmclient.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, log)

	orch := orchestrator.New(orchestrator.Options{
		Store:          store,
		Codehost:       ch,
		Workspaces:     workspaces,
		Runner:         repro.New(workspaces, sandboxes),
		TestRunner:     &repro.SandboxTestRunner{Sandboxes: sandboxes},
		LLM:            llm,
		Log:            log,
		FixTestTimeout: cfg.Repro.Timeout,
	})

	a := &app{
		Config:     cfg,
		Log:        log,
		Store:      store,
		Sandboxes:  sandboxes,
		Workspaces: workspaces,
		Codehost:   ch,
		Orch:       orch,
	}
	return a, func() { store.Close() }, nil
}

func githubCloneURL(repo string) string {
	return fmt.Sprintf("https://github.com/%s.git", repo)
}

func githubHTTPClient(ctx context.Context, token string) *http.Client {
	if token == "" {
		return http.DefaultClient
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, ts)
}
