// Package recall scores long-term memory candidates against a query vector.
//
// Two policies share the same candidate set: Nearest applies only the
// similarity floor and limit, Rank adds importance and recency weighting.
package recall

import (
	"math"
	"sort"
	"time"
)

// Importance bounds for long-term memory records.
const (
	MinImportance = 1
	MaxImportance = 5
)

// Candidate is a long-term memory record as seen by the ranking engine.
type Candidate struct {
	ID         string
	Content    string
	Embedding  []float32
	Importance int
	Department string
	CreatedAt  time.Time
}

// Scored is a candidate annotated with its similarity and final score.
// For Nearest results Score equals Similarity.
type Scored struct {
	Candidate
	Similarity float64
	Score      float64
}

// Params controls a single ranking call. Weights are per call so different
// call sites can tune relevance independently.
type Params struct {
	Limit         int
	MinSimilarity float64
	// Department restricts candidates by exact match; empty means global.
	Department   string
	HalfLifeDays float64
	Alpha        float64
	Beta         float64
}

// Rank scores candidates with
//
//	cosine + Alpha*ImportanceTerm + Beta*RecencyTerm
//
// after dropping everything outside the department or below the similarity
// floor. Ties go to the newest record.
func Rank(query []float32, candidates []Candidate, p Params, now time.Time) []Scored {
	out := filter(query, candidates, p)
	for i := range out {
		out[i].Score = out[i].Similarity +
			p.Alpha*ImportanceTerm(out[i].Importance) +
			p.Beta*RecencyTerm(out[i].CreatedAt, now, p.HalfLifeDays)
	}
	sortScored(out)
	return limit(out, p.Limit)
}

// Nearest is the unranked variant: similarity floor, department filter and
// limit only.
func Nearest(query []float32, candidates []Candidate, p Params) []Scored {
	out := filter(query, candidates, p)
	for i := range out {
		out[i].Score = out[i].Similarity
	}
	sortScored(out)
	return limit(out, p.Limit)
}

// ImportanceTerm maps an importance rating in [1,5] onto [0,1]. Out of
// range ratings are clamped first.
func ImportanceTerm(importance int) float64 {
	return float64(ClampImportance(importance)-MinImportance) / float64(MaxImportance-MinImportance)
}

// RecencyTerm is 2^(-age_days/halfLifeDays). A record from the future counts
// as fresh; a non-positive half life disables decay.
func RecencyTerm(createdAt, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	age := now.Sub(createdAt).Hours() / 24
	if age < 0 {
		age = 0
	}
	return math.Exp2(-age / halfLifeDays)
}

// ClampImportance forces an importance value into [1,5].
func ClampImportance(i int) int {
	if i < MinImportance {
		return MinImportance
	}
	if i > MaxImportance {
		return MaxImportance
	}
	return i
}

// Cosine computes the cosine similarity between two vectors. Mismatched
// lengths and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func filter(query []float32, candidates []Candidate, p Params) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if p.Department != "" && c.Department != p.Department {
			continue
		}
		if len(c.Embedding) == 0 {
			continue
		}
		sim := Cosine(query, c.Embedding)
		if sim < p.MinSimilarity {
			continue
		}
		out = append(out, Scored{Candidate: c, Similarity: sim})
	}
	return out
}

func sortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.After(s[j].CreatedAt)
		}
		return s[i].ID < s[j].ID
	})
}

func limit(s []Scored, n int) []Scored {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
