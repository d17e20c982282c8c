// Package config loads caseforge configuration from .caseforge/config.json.
// Environment variables fill in any API key the file does not provide.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"caseforge/internal/logging"
)

// Provider names accepted in config and on the command line.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
)

// UserConfig holds all caseforge configuration from .caseforge/config.json.
type UserConfig struct {
	// Default generation provider: gemini, openai, groq, ollama.
	Provider string `json:"provider,omitempty"`

	// API keys per provider. Env vars (GEMINI_API_KEY, OPENAI_API_KEY,
	// GROQ_API_KEY) are used when the corresponding field is empty.
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`
	OpenAIAPIKey string `json:"openai_api_key,omitempty"`
	GroqAPIKey   string `json:"groq_api_key,omitempty"`

	// Optional model override for the generation provider.
	Model string `json:"model,omitempty"`

	// Ollama generation settings (local, no key required).
	OllamaEndpoint string `json:"ollama_endpoint,omitempty"` // Default: http://localhost:11434
	OllamaModel    string `json:"ollama_model,omitempty"`    // Default: llama3.2:3b

	// Embedding engine settings.
	Embedding EmbeddingConfig `json:"embedding,omitempty"`

	// Logging settings.
	Logging logging.Config `json:"logging,omitempty"`
}

// EmbeddingConfig selects and configures the embedding backend used for
// semantic deduplication. An empty provider disables embedding dedup.
type EmbeddingConfig struct {
	// Provider: "genai" or "ollama". Empty means embeddings unavailable;
	// deduplication degrades to a no-op.
	Provider string `json:"provider,omitempty"`

	GenAIAPIKey string `json:"genai_api_key,omitempty"`
	GenAIModel  string `json:"genai_model,omitempty"` // Default: gemini-embedding-001

	OllamaEndpoint string `json:"ollama_endpoint,omitempty"` // Default: http://localhost:11434
	OllamaModel    string `json:"ollama_model,omitempty"`    // Default: embeddinggemma
}

// Default returns the configuration used when no config file exists.
func Default() *UserConfig {
	return &UserConfig{
		Provider:       ProviderGemini,
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "llama3.2:3b",
		Embedding: EmbeddingConfig{
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
		},
	}
}

// DefaultPath returns the default config location under the workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".caseforge", "config.json")
}

// Load reads config from path, falling back to defaults when the file is
// missing. A present but unparseable file is an error.
func Load(path string) (*UserConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *UserConfig) applyEnv() {
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.GroqAPIKey == "" {
		c.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	}
	if c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = c.GeminiAPIKey
	}
}

func (c *UserConfig) fillDefaults() {
	d := Default()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.OllamaEndpoint == "" {
		c.OllamaEndpoint = d.OllamaEndpoint
	}
	if c.OllamaModel == "" {
		c.OllamaModel = d.OllamaModel
	}
	if c.Embedding.GenAIModel == "" {
		c.Embedding.GenAIModel = d.Embedding.GenAIModel
	}
	if c.Embedding.OllamaEndpoint == "" {
		c.Embedding.OllamaEndpoint = d.Embedding.OllamaEndpoint
	}
	if c.Embedding.OllamaModel == "" {
		c.Embedding.OllamaModel = d.Embedding.OllamaModel
	}
}

// APIKeyFor returns the configured credential for a provider name.
// Ollama needs none and always returns "".
func (c *UserConfig) APIKeyFor(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGroq:
		return c.GroqAPIKey
	default:
		return ""
	}
}
