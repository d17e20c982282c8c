package provider

import (
	"strings"

	"caseforge/internal/config"
	"caseforge/internal/logging"
)

// modelIDToProvider maps caller-facing model ids to provider names, for
// callers that select a model rather than a provider.
var modelIDToProvider = map[string]string{
	"gpt-4o-mini":             config.ProviderOpenAI,
	"gpt-4o":                  config.ProviderOpenAI,
	"gemini-2.5-flash":        config.ProviderGemini,
	"llama-3.3-70b-versatile": config.ProviderGroq,
	"llama3.2:3b":             config.ProviderOllama,
}

// ModelIDToProvider returns the provider name for a model id, or "" if the
// model id is unknown.
func ModelIDToProvider(modelID string) string {
	return modelIDToProvider[strings.TrimSpace(modelID)]
}

// Resolve returns the generation client for the given provider name. An
// empty name selects the configured default provider. Unknown names and
// missing credentials return a *ConfigError.
func Resolve(cfg *config.UserConfig, name string) (Client, error) {
	resolved := strings.ToLower(strings.TrimSpace(name))
	if resolved == "" {
		resolved = cfg.Provider
	}

	logging.Boot("Resolving generation provider: %s", resolved)

	switch resolved {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, &ConfigError{Provider: resolved, Reason: "missing API key (set gemini_api_key or GEMINI_API_KEY)"}
		}
		geminiCfg := DefaultGeminiConfig(cfg.GeminiAPIKey)
		if cfg.Model != "" {
			geminiCfg.Model = cfg.Model
		}
		return NewGeminiClientWithConfig(geminiCfg), nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, &ConfigError{Provider: resolved, Reason: "missing API key (set openai_api_key or OPENAI_API_KEY)"}
		}
		openaiCfg := DefaultOpenAIConfig(cfg.OpenAIAPIKey)
		if cfg.Model != "" {
			openaiCfg.Model = cfg.Model
		}
		return NewOpenAIClientWithConfig(openaiCfg), nil

	case config.ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, &ConfigError{Provider: resolved, Reason: "missing API key (set groq_api_key or GROQ_API_KEY)"}
		}
		groqCfg := DefaultGroqConfig(cfg.GroqAPIKey)
		if cfg.Model != "" {
			groqCfg.Model = cfg.Model
		}
		return newChatClient("groq", groqCfg), nil

	case config.ProviderOllama:
		model := cfg.OllamaModel
		if cfg.Model != "" {
			model = cfg.Model
		}
		return NewOllamaClient(cfg.OllamaEndpoint, model), nil

	default:
		return nil, &ConfigError{Provider: resolved, Reason: "unsupported provider (use 'gemini', 'openai', 'groq', or 'ollama')"}
	}
}
