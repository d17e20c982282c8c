package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"caseforge/internal/logging"
)

// OpenAIClient implements Client for the OpenAI chat completions API.
// GroqClient reuses the same wire format with a different base URL.
type OpenAIClient struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// OpenAIConfig holds configuration for OpenAI-compatible clients.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		Timeout:   5 * time.Minute,
		MaxTokens: 8192,
	}
}

// NewOpenAIClient creates a new OpenAI client with default config.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return newChatClient("openai", DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom config.
func NewOpenAIClientWithConfig(config OpenAIConfig) *OpenAIClient {
	return newChatClient("openai", config)
}

// DefaultGroqConfig returns sensible defaults for Groq's OpenAI-compatible API.
func DefaultGroqConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.groq.com/openai/v1",
		Model:     "llama-3.3-70b-versatile",
		Timeout:   5 * time.Minute,
		MaxTokens: 8192,
	}
}

// NewGroqClient creates a client for Groq's OpenAI-compatible API.
func NewGroqClient(apiKey string) *OpenAIClient {
	return newChatClient("groq", DefaultGroqConfig(apiKey))
}

func newChatClient(name string, config OpenAIConfig) *OpenAIClient {
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &OpenAIClient{
		name:      name,
		apiKey:    config.APIKey,
		baseURL:   config.BaseURL,
		model:     config.Model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Generate sends the prompt and returns the raw completion text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	model := c.model
	if opts.ModelProfile != "" {
		model = opts.ModelProfile
	}

	logging.API("[%s] Generate: model=%s coverage=%s prompt_len=%d", c.name, model, opts.CoverageLevel, len(prompt))

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.3,
	}

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var chatResp chatResponse
		if err := json.Unmarshal(body, &chatResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if chatResp.Error != nil {
			return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
		}
		if len(chatResp.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		text := chatResp.Choices[0].Message.Content
		logging.API("[%s] Generate complete: response_len=%d", c.name, len(text))
		return text, nil
	}

	return "", fmt.Errorf("%s request failed after %d retries: %w", c.name, maxRetries, lastErr)
}

// Name returns the client name.
func (c *OpenAIClient) Name() string {
	return fmt.Sprintf("%s:%s", c.name, c.model)
}
