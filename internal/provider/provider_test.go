package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/suzieq/ceo-office/internal/config"
)

func TestOpenAIProvider_DefaultModel(t *testing.T) {
	p := NewOpenAIProvider(OpenAIOptions{APIKey: "test-key"})
	if p.DefaultModel() != "gpt-4o-mini" {
		t.Errorf("expected default model gpt-4o-mini, got %s", p.DefaultModel())
	}

	p = NewOpenAIProvider(OpenAIOptions{APIKey: "test-key", Model: "openai/gpt-4"})
	if p.DefaultModel() != "openai/gpt-4" {
		t.Errorf("expected model openai/gpt-4, got %s", p.DefaultModel())
	}
}

func TestOpenAIProvider_Decide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		var body struct {
			Messages []Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 1 || body.Messages[0].Content != "Plan Q3" {
			t.Errorf("unexpected messages %+v", body.Messages)
		}
		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Role: "assistant", Content: "Ship it."}, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "test-key", APIBase: server.URL})
	got, err := p.Decide(context.Background(), "Plan Q3")
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if got != "Ship it." {
		t.Errorf("expected 'Ship it.', got %q", got)
	}
}

func TestOpenAIProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "test-key", APIBase: server.URL})
	if _, err := p.Decide(context.Background(), "Hello"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestOpenAIProvider_EmbedDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}],"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "k", APIBase: server.URL, Dimensions: 3})
	resp, err := p.Embed(context.Background(), &EmbeddingRequest{Input: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Vector) != 3 || resp.Usage.TotalTokens != 3 {
		t.Errorf("unexpected embedding response %+v", resp)
	}

	strict := NewOpenAIProvider(OpenAIOptions{APIKey: "k", APIBase: server.URL, Dimensions: 1536})
	if _, err := strict.Embed(context.Background(), &EmbeddingRequest{Input: "hello"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestHTTPBrainDecision(t *testing.T) {
	cases := []struct {
		name, reply, want string
	}{
		{"top level", `{"decision":"Hire two engineers."}`, "Hire two engineers."},
		{"nested body", `{"body":{"decision":"Pause spend."}}`, "Pause spend."},
		{"missing", `{"status":"ok"}`, NoDecision},
		{"not json", `thinking...`, NoDecision},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				if body["context"] != "what now?" {
					t.Errorf("expected context field, got %v", body)
				}
				w.Write([]byte(tc.reply))
			}))
			defer server.Close()

			got, err := NewHTTPBrain(server.URL, 0).Decide(context.Background(), "what now?")
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestHTTPBrainServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewHTTPBrain(server.URL, 0).Decide(context.Background(), "x"); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestClampImportance(t *testing.T) {
	cases := map[string]int{
		"4":                       4,
		"Importance: 5/5":         5,
		"9":                       5,
		"0":                       1,
		"-3":                      1,
		"":                        DefaultImportance,
		"very important":          DefaultImportance,
		"3.7":                     3,
		"99999999999999999999999": 5,
	}
	for raw, want := range cases {
		if got := ClampImportance(raw); got != want {
			t.Errorf("ClampImportance(%q) = %d, want %d", raw, got, want)
		}
	}
}

func TestBrainScorer(t *testing.T) {
	ctx := context.Background()
	ok := NewBrainScorer(BrainFunc(func(context.Context, string) (string, error) { return "I'd say 4.", nil }))
	if got := ok.Score(ctx, "board meeting moved"); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	failing := NewBrainScorer(BrainFunc(func(context.Context, string) (string, error) { return "", errors.New("timeout") }))
	if got := failing.Score(ctx, "x"); got != DefaultImportance {
		t.Errorf("expected default on failure, got %d", got)
	}
	var nilScorer *BrainScorer
	if got := nilScorer.Score(ctx, "x"); got != DefaultImportance {
		t.Errorf("expected default for nil scorer, got %d", got)
	}
}

func TestNewBrainKinds(t *testing.T) {
	if _, err := NewBrain(config.BrainConfig{Kind: "http", URL: "http://brain"}); err != nil {
		t.Errorf("http brain: %v", err)
	}
	if _, err := NewBrain(config.BrainConfig{Kind: "http"}); err == nil {
		t.Error("expected error without url")
	}
	if _, err := NewBrain(config.BrainConfig{Kind: "openai", APIKey: "k"}); err != nil {
		t.Errorf("openai brain: %v", err)
	}
	if _, err := NewBrain(config.BrainConfig{Kind: "oracle"}); err == nil {
		t.Error("expected unknown kind error")
	}
	if NewEmbedder(config.EmbeddingConfig{Enabled: true}) != nil {
		t.Error("embedder without key should be nil")
	}
}
