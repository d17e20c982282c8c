// Package provider implements the generation-capability clients used by the
// test case pipeline, plus provider-name resolution. Gemini talks to the
// generativelanguage REST API; OpenAI and Groq share the OpenAI chat wire
// format; Ollama uses its local generate endpoint. No client guarantees any
// output schema; callers must treat responses as arbitrary text.
package provider

import (
	"context"
	"fmt"

	"caseforge/internal/types"
)

// Client is the generation capability the pipeline depends on.
type Client interface {
	// Generate sends a prompt and returns the raw completion text.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Name returns the client name, e.g. "gemini:gemini-2.5-flash".
	Name() string
}

// GenerateOptions carries per-call generation hints.
type GenerateOptions struct {
	// CoverageLevel of the run that issued this call. Informational; clients
	// may use it for logging or profile selection.
	CoverageLevel types.CoverageLevel

	// ModelProfile optionally overrides the client's configured model for
	// this call.
	ModelProfile string
}

// ConfigError is a caller-visible configuration problem: an unknown provider
// name or a missing required credential. It is raised at provider resolution
// time, before any generation work starts.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Reason)
}

// Chat wire types shared by the OpenAI-compatible clients (OpenAI, Groq).

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}
