package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/hostwarden/internal/embedding"
	"github.com/rcliao/hostwarden/internal/model"
)

// SearchHit is an incident with its similarity to the query.
type SearchHit struct {
	model.Incident
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
}

// Search embeds query with the store's embedder and returns the k most
// similar incidents by exact cosine similarity. Ties go to the newest incident.
func (s *Store) Search(ctx context.Context, query string, k int) ([]SearchHit, error) {
	if k <= 0 {
		return []SearchHit{}, nil
	}
	s.mu.RLock()
	emb, stale := s.embedder, s.stale
	s.mu.RUnlock()
	if stale {
		return nil, fmt.Errorf("%w: reindex before searching", ErrModelMismatch)
	}

	q, err := embedding.EmbedPooled(ctx, emb, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.SearchVector(ctx, embedding.Normalize(q), k)
}

// SearchVector is Search with a precomputed, unit-length query vector.
func (s *Store) SearchVector(ctx context.Context, q []float32, k int) ([]SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stale {
		return nil, fmt.Errorf("%w: reindex before searching", ErrModelMismatch)
	}
	if len(q) != s.header.Dims {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrModelMismatch, len(q), s.header.Dims)
	}
	top := s.index.topK(q, k)
	if len(top) == 0 {
		return []SearchHit{}, nil
	}

	ids := make([]any, len(top))
	for i, t := range top {
		ids[i] = t.id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incidentCols+` FROM incidents WHERE id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]model.Incident, len(top))
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		byID[inc.ID] = inc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(top))
	for _, t := range top {
		inc, ok := byID[t.id]
		if !ok {
			return nil, fmt.Errorf("%w: indexed id %s missing from incidents", ErrIndexMismatch, t.id)
		}
		hits = append(hits, SearchHit{Incident: inc, Score: t.score, Distance: 1 - t.score})
	}
	return hits, nil
}
