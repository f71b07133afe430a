// Package webhook implements the one HTTP surface spec.md §1 calls out
// of scope for internal design: a thin ingestion boundary that verifies
// the shared-secret signature, filters on action/conclusion, and hands
// off to the orchestrator. Plain net/http, no router library — the
// teacher's own internal/web stack is built the same way.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ci-healer/agent/internal/orchestrator"
)

// Ingester is the narrow capability the handler needs from the
// orchestrator, satisfied by *orchestrator.Orchestrator.
type Ingester interface {
	Ingest(ctx context.Context, ev orchestrator.Event) error
}

type payload struct {
	Action      string `json:"action"`
	WorkflowRun struct {
		ID         int64  `json:"id"`
		HeadSha    string `json:"head_sha"`
		HeadBranch string `json:"head_branch"`
		Conclusion string `json:"conclusion"`
		Name       string `json:"name"`
	} `json:"workflow_run"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// Handler serves the workflow-run webhook endpoint.
type Handler struct {
	orch   Ingester
	secret string
	log    zerolog.Logger
}

// New builds a Handler. An empty secret accepts requests unsigned
// (development mode only), per spec.md §6.
func New(orch Ingester, secret string, log zerolog.Logger) *Handler {
	return &Handler{orch: orch, secret: secret, log: log}
}

const signatureHeader = "X-Hub-Signature-256"

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		if !h.verifySignature(body, r.Header.Get(signatureHeader)) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if p.Action != "completed" {
		h.ack(w, "ignored: action is not completed")
		return
	}
	if p.WorkflowRun.Conclusion != "failure" {
		h.ack(w, "ignored: conclusion is not failure")
		return
	}

	owner, name := splitRepo(p.Repository.FullName)
	ev := orchestrator.Event{
		RunID:        p.WorkflowRun.ID,
		Repo:         p.Repository.FullName,
		Owner:        owner,
		Name:         name,
		Sha:          p.WorkflowRun.HeadSha,
		Branch:       p.WorkflowRun.HeadBranch,
		WorkflowName: p.WorkflowRun.Name,
		CloneURL:     p.Repository.CloneURL,
	}

	if err := h.orch.Ingest(r.Context(), ev); err != nil {
		h.log.Error().Err(err).Msg("webhook: failed to ingest event")
		http.Error(w, "failed to ingest event", http.StatusInternalServerError)
		return
	}

	h.ack(w, "accepted")
}

func (h *Handler) ack(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": message})
}

// verifySignature checks the HMAC-SHA-256 signature of body against the
// configured secret using constant-time comparison, per spec.md §6.
func (h *Handler) verifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(sig, expected)
}

func splitRepo(fullName string) (owner, name string) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 {
		return "", fullName
	}
	return parts[0], parts[1]
}
