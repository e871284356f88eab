package provider

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// DefaultImportance is used whenever a score cannot be determined.
const DefaultImportance = 2

// ImportanceScorer rates how important a piece of text is, 1 to 5.
type ImportanceScorer interface {
	Score(ctx context.Context, text string) int
}

var firstInt = regexp.MustCompile(`-?\d+`)

// ClampImportance extracts the first integer from raw and clamps it into
// [1,5]. Text without a number yields DefaultImportance.
func ClampImportance(raw string) int {
	m := firstInt.FindString(raw)
	if m == "" {
		return DefaultImportance
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		// Only overflow gets here; the sign still tells us which end.
		if strings.HasPrefix(m, "-") {
			return 1
		}
		return 5
	}
	switch {
	case n < 1:
		return 1
	case n > 5:
		return 5
	}
	return n
}

// BrainScorer asks the decision service for a rating.
type BrainScorer struct {
	brain Brain
}

// NewBrainScorer creates a scorer backed by brain.
func NewBrainScorer(brain Brain) *BrainScorer {
	return &BrainScorer{brain: brain}
}

// Score implements ImportanceScorer. Failures yield DefaultImportance.
func (s *BrainScorer) Score(ctx context.Context, text string) int {
	if s == nil || s.brain == nil {
		return DefaultImportance
	}
	prompt := "Rate the long-term importance of this note for a company CEO on a scale " +
		"of 1 (trivial) to 5 (critical). Reply with a single digit only.\n\nNote: " + text
	reply, err := s.brain.Decide(ctx, prompt)
	if err != nil {
		slog.Warn("Importance scoring failed, using default", "error", err)
		return DefaultImportance
	}
	return ClampImportance(reply)
}
