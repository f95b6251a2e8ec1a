package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// Expander is the external query-understanding capability: it rewrites a
// query into related keywords. It may fail, stall or return junk.
type Expander interface {
	Expand(ctx context.Context, query string) (string, error)
}

const expandPrompt = `Fix any spelling mistakes in the search query below and list its important keywords, ` +
	`adding close synonyms where helpful. Reply with the keywords only, separated by spaces.

Query: %s`

// OllamaExpander asks an Ollama model to expand queries via /api/generate.
// Generate exposes the same client for other prompts.
type OllamaExpander struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaExpander(host, model string) *OllamaExpander {
	return &OllamaExpander{
		host:  strings.TrimRight(host, "/"),
		model: model,
		// Deadlines come from the caller's context.
		client: &http.Client{},
	}
}

// Model returns the generation model name.
func (o *OllamaExpander) Model() string { return o.model }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (o *OllamaExpander) Expand(ctx context.Context, query string) (string, error) {
	out, err := o.Generate(ctx, fmt.Sprintf(expandPrompt, query))
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return "", kberrors.EnhancementTimeoutError("query expansion timed out", err)
	}
	return out, err
}

// Generate sends one non-streaming prompt and returns the model's reply.
func (o *OllamaExpander) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		return "", kberrors.InternalError("failed to marshal generate request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", kberrors.InternalError("failed to build generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("generate: %w", ctxErr)
		}
		return "", kberrors.NetworkError("ollama unreachable", err).WithDetail("host", o.host)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generate failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	return out.Response, nil
}
