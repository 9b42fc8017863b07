package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/koscakluka/ema-campus/core/llms"
)

func TestGenerateSendsSystemPromptAsLeadingUserContent(t *testing.T) {
	var received map[string]any
	var path, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("expected valid JSON body, got %v", err)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Your OS class is at 8."}]}}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	reply, err := client.Generate(context.Background(), []llms.Message{
		llms.UserMessage("hi"),
		llms.AssistantMessage("hello"),
		llms.UserMessage("when is OS?"),
	}, "be brief")
	if err != nil {
		t.Fatalf("expected generate to succeed, got %v", err)
	}
	if reply != "Your OS class is at 8." {
		t.Fatalf("expected candidate text, got %q", reply)
	}
	if path != "/v1beta/models/gemini-2.5-flash:generateContent" {
		t.Fatalf("expected generateContent path, got %q", path)
	}
	if key != "test-key" {
		t.Fatalf("expected api key in query, got %q", key)
	}

	contents, ok := received["contents"].([]any)
	if !ok || len(contents) != 4 {
		t.Fatalf("expected 4 contents, got %v", received["contents"])
	}
	wantRoles := []string{"user", "user", "model", "user"}
	wantTexts := []string{"be brief", "hi", "hello", "when is OS?"}
	for i, raw := range contents {
		entry := raw.(map[string]any)
		if entry["role"] != wantRoles[i] {
			t.Fatalf("expected content %d role %q, got %v", i, wantRoles[i], entry["role"])
		}
		parts := entry["parts"].([]any)
		if text := parts[0].(map[string]any)["text"]; text != wantTexts[i] {
			t.Fatalf("expected content %d text %q, got %v", i, wantTexts[i], text)
		}
	}

	config, ok := received["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("expected generationConfig, got %v", received["generationConfig"])
	}
	if config["temperature"] != 0.7 || config["topK"] != float64(40) ||
		config["topP"] != 0.95 || config["maxOutputTokens"] != float64(1024) {
		t.Fatalf("unexpected generationConfig %v", config)
	}
	if _, ok := config["responseMimeType"]; ok {
		t.Fatalf("expected no response mime type on plain generation")
	}
}

func TestGenerateWithoutAPIKeyDoesNotCallBackend(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient("", WithBaseURL(server.URL))
	_, err := client.Generate(context.Background(), []llms.Message{llms.UserMessage("hi")}, "")

	var configErr *llms.ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected config error, got %v", err)
	}
	if !errors.Is(err, llms.ErrMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no backend calls, got %d", calls.Load())
	}
}

func TestGenerateReturnsNetworkErrorOnBackendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := client.Generate(context.Background(), []llms.Message{llms.UserMessage("hi")}, "")

	var networkErr *llms.NetworkError
	if !errors.As(err, &networkErr) {
		t.Fatalf("expected network error, got %v", err)
	}
	if networkErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", networkErr.StatusCode)
	}
	if networkErr.Message != "quota exceeded" || networkErr.Status != "RESOURCE_EXHAUSTED" {
		t.Fatalf("expected parsed error envelope, got %+v", networkErr)
	}
	if llms.IsConfigError(err) {
		t.Fatalf("expected backend failure not to be a config error")
	}
}

func TestGenerateReturnsErrorWithoutCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := client.Generate(context.Background(), []llms.Message{llms.UserMessage("hi")}, "")
	if !errors.Is(err, llms.ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestGenerateStructuredRequestsJSONSchema(t *testing.T) {
	type verdict struct {
		Kind string `json:"kind" jsonschema:"enum=normal,enum=emergency"`
	}

	var received struct {
		GenerationConfig map[string]any `json:"generationConfig"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"kind\":\"emergency\"}"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithModel("gemini-test"), WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	var out verdict
	if err := client.GenerateStructured(context.Background(), []llms.Message{llms.UserMessage("help")}, "classify", &out); err != nil {
		t.Fatalf("expected structured generation to succeed, got %v", err)
	}
	if out.Kind != "emergency" {
		t.Fatalf("expected decoded kind, got %q", out.Kind)
	}
	if received.GenerationConfig["responseMimeType"] != "application/json" {
		t.Fatalf("expected json mime type, got %v", received.GenerationConfig["responseMimeType"])
	}
	if _, ok := received.GenerationConfig["responseJsonSchema"].(map[string]any); !ok {
		t.Fatalf("expected response schema, got %v", received.GenerationConfig["responseJsonSchema"])
	}
}

func TestGenerateStructuredRejectsNonPointer(t *testing.T) {
	client := NewClient("test-key")
	if err := client.GenerateStructured(context.Background(), nil, "", struct{}{}); err == nil {
		t.Fatalf("expected error for non-pointer output")
	}
}
