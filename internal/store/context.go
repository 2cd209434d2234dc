package store

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rcliao/hostwarden/internal/model"
)

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query  string
	K      int // candidates to consider (default 20)
	Budget int // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextIncident is a scored incident for context output.
type ContextIncident struct {
	ID         string     `json:"id"`
	Kind       model.Kind `json:"kind"`
	Timestamp  time.Time  `json:"timestamp"`
	Outcome    string     `json:"outcome,omitempty"`
	Narrative  string     `json:"narrative"`
	Similarity float64    `json:"similarity"`
	Score      float64    `json:"score"`
	Excerpt    bool       `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget    int               `json:"budget"`
	Used      int               `json:"used"`
	Incidents []ContextIncident `json:"incidents"`
}

// Context assembles the most useful past incidents for query within a token
// budget, favoring similar, recent and operator-relevant incidents.
func (s *Store) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = 1000
	}
	charBudget := budget * 4
	k := p.K
	if k <= 0 {
		k = 20
	}

	hits, err := s.Search(ctx, p.Query, k)
	if err != nil {
		return nil, err
	}
	result := &ContextResult{Budget: budget, Incidents: []ContextIncident{}}
	if len(hits) == 0 {
		return result, nil
	}

	now := s.now()
	type candidate struct {
		hit   SearchHit
		score float64
	}
	candidates := make([]candidate, 0, len(hits))
	for _, h := range hits {
		// Recency: exponential decay by age in days.
		age := now.Sub(h.Timestamp).Hours() / 24.0
		recency := math.Exp(-0.1 * math.Max(age, 0))
		score := h.Score*0.6 + recency*0.25 + importance(h.Incident)*0.15
		candidates = append(candidates, candidate{hit: h, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	used := 0
	for _, c := range candidates {
		ci := ContextIncident{
			ID:         c.hit.ID,
			Kind:       c.hit.Kind,
			Timestamp:  c.hit.Timestamp,
			Outcome:    c.hit.Outcome,
			Narrative:  c.hit.Narrative,
			Similarity: math.Round(c.hit.Score*1000) / 1000,
			Score:      math.Round(c.score*100) / 100,
		}
		n := len(ci.Narrative)
		if used+n <= charBudget {
			result.Incidents = append(result.Incidents, ci)
			used += n
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			ci.Narrative = ci.Narrative[:remaining] + "..."
			ci.Excerpt = true
			result.Incidents = append(result.Incidents, ci)
			used += remaining
		}
		break
	}
	result.Used = used / 4
	return result, nil
}

// importance weighs outcomes an operator would want surfaced first.
func importance(inc model.Incident) float64 {
	switch model.Outcome(inc.Outcome) {
	case model.OutcomeEscalatedExhausted, model.OutcomeFailed:
		return 1.0
	}
	switch inc.Kind {
	case model.KindRemediation:
		return 0.75
	case model.KindHealthCheck:
		return 0.5
	default:
		return 0.25
	}
}
