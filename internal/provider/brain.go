package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suzieq/ceo-office/internal/config"
)

// HTTPBrain posts {"context": prompt} to a decision endpoint and reads
// "decision" (or "body.decision") from the reply.
type HTTPBrain struct {
	url        string
	httpClient *http.Client
}

// NewHTTPBrain creates a brain client for url.
func NewHTTPBrain(url string, timeout time.Duration) *HTTPBrain {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBrain{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// Decide implements Brain.
func (b *HTTPBrain) Decide(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]string{"context": prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("brain error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseDecision(body), nil
}

func parseDecision(body []byte) string {
	var out struct {
		Decision string `json:"decision"`
		Body     struct {
			Decision string `json:"decision"`
		} `json:"body"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return NoDecision
	}
	switch {
	case strings.TrimSpace(out.Decision) != "":
		return out.Decision
	case strings.TrimSpace(out.Body.Decision) != "":
		return out.Body.Decision
	default:
		return NoDecision
	}
}

// NewBrain builds the configured decision service client.
func NewBrain(cfg config.BrainConfig) (Brain, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("brain url is required for kind http")
		}
		return NewHTTPBrain(cfg.URL, cfg.Timeout), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("brain api key is required for kind openai")
		}
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:  cfg.APIKey,
			APIBase: cfg.APIBase,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown brain kind %q", cfg.Kind)
	}
}

// NewEmbedder builds the configured embedder, or nil when embeddings are
// disabled. A nil embedder means "no memory" for every caller.
func NewEmbedder(cfg config.EmbeddingConfig) Embedder {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil
	}
	return NewOpenAIProvider(OpenAIOptions{
		APIKey:         cfg.APIKey,
		APIBase:        cfg.APIBase,
		EmbeddingModel: cfg.Model,
		Dimensions:     cfg.Dimensions,
		Timeout:        cfg.Timeout,
	})
}
