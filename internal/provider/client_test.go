package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func chatCompletionOK(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestChatClient(baseURL string) *OpenAIClient {
	return newChatClient("openai", OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
		Timeout: 10 * time.Second,
	})
}

func TestOpenAIClientGenerate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionOK(`{"scenarios": ["a"]}`)))
	}))
	defer server.Close()

	client := newTestChatClient(server.URL)
	text, err := client.Generate(context.Background(), "list scenarios", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != `{"scenarios": ["a"]}` {
		t.Errorf("unexpected completion text: %q", text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("missing bearer auth, got %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("wrong model in request: %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "list scenarios" {
		t.Errorf("prompt not carried in request: %+v", gotBody.Messages)
	}
}

func TestOpenAIClientModelProfileOverride(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		_, _ = w.Write([]byte(chatCompletionOK("ok")))
	}))
	defer server.Close()

	client := newTestChatClient(server.URL)
	_, err := client.Generate(context.Background(), "p", GenerateOptions{ModelProfile: "gpt-4o"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gotModel != "gpt-4o" {
		t.Errorf("per-call model override ignored, request used %q", gotModel)
	}
}

func TestOpenAIClientRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chatCompletionOK("recovered")))
	}))
	defer server.Close()

	client := newTestChatClient(server.URL)
	text, err := client.Generate(context.Background(), "p", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate should recover after 429: %v", err)
	}
	if text != "recovered" {
		t.Errorf("unexpected text %q", text)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAIClientHardFailureNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer server.Close()

	client := newTestChatClient(server.URL)
	_, err := client.Generate(context.Background(), "p", GenerateOptions{})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status code: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx other than 429 must not retry, got %d calls", calls.Load())
	}
}

func TestOpenAIClientMissingKey(t *testing.T) {
	client := newChatClient("openai", OpenAIConfig{Timeout: time.Second})
	_, err := client.Generate(context.Background(), "p", GenerateOptions{})
	if err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestGeminiClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("API key missing from query, got %q", r.URL.RawQuery)
		}
		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "part one "}, {"text": "part two"}},
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gemini-2.5-flash",
		Timeout: 10 * time.Second,
	})
	text, err := client.Generate(context.Background(), "p", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "part one part two" {
		t.Errorf("candidate parts not concatenated: %q", text)
	}
}

func TestOllamaClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if stream, ok := body["stream"].(bool); !ok || stream {
			t.Error("request must disable streaming")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": "local output", "done": true})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3.2:3b")
	text, err := client.Generate(context.Background(), "p", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "local output" {
		t.Errorf("unexpected text %q", text)
	}
}
