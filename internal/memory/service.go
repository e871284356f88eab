// Package memory combines the short-term activity log and embedding-indexed
// long-term memory behind one service.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/suzieq/ceo-office/internal/config"
	"github.com/suzieq/ceo-office/internal/provider"
	"github.com/suzieq/ceo-office/internal/recall"
	"github.com/suzieq/ceo-office/internal/store"
)

var (
	// ErrInvalidImportance rejects caller-supplied importance outside 1..5.
	ErrInvalidImportance = errors.New("memory: importance must be between 1 and 5")
	// ErrEmptyContent rejects blank notes.
	ErrEmptyContent = errors.New("memory: content is empty")
)

// Options controls unranked recall.
type Options struct {
	Limit         int
	MinSimilarity float64
	// Department restricts recall; empty means global.
	Department string
}

// RankedOptions adds importance and recency weighting.
type RankedOptions struct {
	Options
	HalfLifeDays float64
	Alpha        float64
	Beta         float64
}

// RememberInput describes a note to keep.
type RememberInput struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	// Importance 0 asks the scorer; anything else must be in 1..5.
	Importance int    `json:"importance"`
	Source     string `json:"source"`
	Department string `json:"department"`
	Actor      string `json:"actor"`
}

// Service provides log, remember and recall operations. With a nil embedder
// notes are stored unindexed and recall returns nothing.
type Service struct {
	store    *store.Store
	embedder provider.Embedder
	scorer   provider.ImportanceScorer
	defaults config.RecallConfig
}

// NewService creates a memory service.
func NewService(st *store.Store, embedder provider.Embedder, scorer provider.ImportanceScorer, defaults config.RecallConfig) *Service {
	return &Service{store: st, embedder: embedder, scorer: scorer, defaults: defaults}
}

// Log appends a short-term activity record.
func (s *Service) Log(ctx context.Context, rec store.MemoryRecord) error {
	return s.store.AppendMemory(ctx, rec)
}

// Recent returns the newest activity records first.
func (s *Service) Recent(ctx context.Context, limit int) ([]store.MemoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.RecentMemory(ctx, limit)
}

// Remember stores a long-term note with its embedding and importance.
func (s *Service) Remember(ctx context.Context, in RememberInput) (*store.LongTermMemory, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	importance := in.Importance
	switch {
	case importance == 0:
		importance = provider.DefaultImportance
		if s.scorer != nil {
			importance = recall.ClampImportance(s.scorer.Score(ctx, content))
		}
	case importance < recall.MinImportance || importance > recall.MaxImportance:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidImportance, importance)
	}

	rec := store.LongTermMemory{
		Content:    content,
		Tags:       normalizeTags(in.Tags),
		Importance: importance,
		Source:     in.Source,
		Department: in.Department,
		Actor:      in.Actor,
	}
	if rec.Source == "" {
		rec.Source = "user"
	}
	if s.embedder != nil {
		resp, err := s.embedder.Embed(ctx, &provider.EmbeddingRequest{Input: content})
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		rec.Embedding = resp.Vector
	} else {
		slog.Debug("No embedder configured, storing note unindexed")
	}

	stored, err := s.store.InsertLongTerm(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	stored.Embedding = nil
	return &stored, nil
}

// Recall performs plain nearest-neighbour recall.
func (s *Service) Recall(ctx context.Context, query string, opts Options) ([]store.MemoryMatch, error) {
	return s.match(ctx, query, store.MatchQuery{
		Count:         s.limit(opts.Limit),
		MinSimilarity: opts.MinSimilarity,
		Department:    opts.Department,
	})
}

// RecallRanked performs importance and recency weighted recall.
func (s *Service) RecallRanked(ctx context.Context, query string, opts RankedOptions) ([]store.MemoryMatch, error) {
	return s.match(ctx, query, store.MatchQuery{
		Count:         s.limit(opts.Limit),
		MinSimilarity: opts.MinSimilarity,
		Department:    opts.Department,
		Ranked:        true,
		HalfLifeDays:  opts.HalfLifeDays,
		Alpha:         opts.Alpha,
		Beta:          opts.Beta,
	})
}

func (s *Service) match(ctx context.Context, query string, q store.MatchQuery) ([]store.MemoryMatch, error) {
	if s.embedder == nil || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	resp, err := s.embedder.Embed(ctx, &provider.EmbeddingRequest{Input: query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q.Embedding = resp.Vector
	return s.store.MatchMemories(ctx, q)
}

// ChatOptions are the configured weights for conversational recall.
func (s *Service) ChatOptions() RankedOptions {
	return RankedOptions{
		Options: Options{
			Limit:         s.defaults.Limit,
			MinSimilarity: s.defaults.MinSimilarity,
		},
		HalfLifeDays: s.defaults.HalfLifeDays,
		Alpha:        s.defaults.Alpha,
		Beta:         s.defaults.Beta,
	}
}

// AgentOptions are the configured weights for department-scoped agents.
func (s *Service) AgentOptions(department string) RankedOptions {
	opts := s.ChatOptions()
	opts.Department = department
	opts.Alpha = s.defaults.AgentAlpha
	opts.Beta = s.defaults.AgentBeta
	return opts
}

// ContextFor renders ranked recall as a prompt section. Any failure
// degrades to no memory context.
func (s *Service) ContextFor(ctx context.Context, query string, opts RankedOptions) string {
	matches, err := s.RecallRanked(ctx, query, opts)
	if err != nil {
		slog.Warn("Memory recall failed, continuing without context", "error", err)
		return ""
	}
	return FormatContext(matches)
}

// FormatContext renders matches as a bullet list headed "Relevant memory:".
func FormatContext(matches []store.MemoryMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Relevant memory:\n")
	for _, m := range matches {
		sb.WriteString("- ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s *Service) limit(n int) int {
	if n > 0 {
		return n
	}
	if s.defaults.Limit > 0 {
		return s.defaults.Limit
	}
	return 5
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
