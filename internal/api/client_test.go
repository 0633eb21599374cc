package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/lamim/copyforge/internal/config"
)

const okBody = `{
	"id": "test-123",
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Test response"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testModel(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		BaseURL:            baseURL,
		ModelName:          "test-model",
		Temperature:        0.7,
		TopP:               1.0,
		MaxOutputTokens:    100,
		RateLimitPerMinute: 6000,
		MaxRetries:         3,
	}
}

func TestChatCompletion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header 'Bearer test-key', got '%s'", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type 'application/json', got '%s'", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	client := NewClient(testLogger(), nil)

	resp, err := client.ChatCompletion(context.Background(), testModel(server.URL+"/"), "test-key",
		[]Message{{Role: RoleUser, Content: "Test message"}})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Content() != "Test response" {
		t.Errorf("Expected content 'Test response', got '%s'", resp.Content())
	}
}

func TestChatCompletion_JSONMode(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	client := NewClient(testLogger(), nil)
	model := testModel(server.URL)
	model.UseJSONMode = true
	model.Temperature = 0

	if _, err := client.ChatCompletion(context.Background(), model, "", []Message{{Role: RoleUser, Content: "x"}}); err != nil {
		t.Fatalf("ChatCompletion() error: %v", err)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat = %+v, want json_object", got.ResponseFormat)
	}
	if got.Model != "test-model" || got.MaxTokens != 100 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestChatCompletion_RetryOn500(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "Server error"}}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	client := NewClient(testLogger(), nil)
	client.baseRetryDelay = 1 // 1ns for fast testing

	resp, err := client.ChatCompletion(context.Background(), testModel(server.URL), "test", []Message{{Role: RoleUser, Content: "test"}})
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts (2 retries), got %d", attempts.Load())
	}
	if resp.Content() != "Test response" {
		t.Errorf("unexpected content %q", resp.Content())
	}
}

func TestChatCompletion_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewClient(testLogger(), nil)
	client.baseRetryDelay = 1

	_, err := client.ChatCompletion(context.Background(), testModel(server.URL), "", []Message{{Role: RoleUser, Content: "x"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "bad model" || apiErr.Retryable {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", attempts.Load())
	}
}

func TestChatCompletion_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testLogger(), nil)
	client.baseRetryDelay = 1
	model := testModel(server.URL)
	model.MaxRetries = 2

	_, err := client.ChatCompletion(context.Background(), model, "", []Message{{Role: RoleUser, Content: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestChatCompletion_NegativeRetriesDisablesRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testLogger(), nil)
	client.baseRetryDelay = 1
	model := testModel(server.URL)
	model.MaxRetries = -1

	if _, err := client.ChatCompletion(context.Background(), model, "", []Message{{Role: RoleUser, Content: "x"}}); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", attempts.Load())
	}
}

func TestChatBackend_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer generic-key" {
			t.Errorf("unexpected Authorization %q", r.Header.Get("Authorization"))
		}
		var req ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Content != "寫一篇文案" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	secrets := &config.Secrets{APIKeys: map[string]string{"generic": "generic-key"}}
	backend := NewChatBackend(NewClient(testLogger(), nil), secrets)

	text, err := backend.Complete(context.Background(), "寫一篇文案", testModel(server.URL), TaskGeneration)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if text != "Test response" {
		t.Errorf("Complete() = %q", text)
	}
}

func TestChatBackend_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"index": 0, "message": {"role": "assistant", "content": ""}}]}`))
	}))
	defer server.Close()

	backend := NewChatBackend(NewClient(testLogger(), nil), nil)

	tests := []struct {
		task    Task
		wantErr error
	}{
		{TaskGeneration, ErrEmptyResponse},
		{TaskRubricCheck, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.task), func(t *testing.T) {
			text, err := backend.Complete(context.Background(), "x", testModel(server.URL), tt.task)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Complete() error = %v, want %v", err, tt.wantErr)
			}
			if text != "" {
				t.Errorf("Complete() = %q, want empty", text)
			}
		})
	}
}
