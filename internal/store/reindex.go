package store

import (
	"context"
	"fmt"

	"github.com/rcliao/hostwarden/internal/embedding"
)

// Reindex re-embeds every narrative with emb and rewrites the vectors and the
// header in one transaction. It is the only way to change embedding model.
// Appends block until it finishes.
func (s *Store) Reindex(ctx context.Context, emb embedding.Embedder) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct{ id, narrative string }
	rows, err := s.db.QueryContext(ctx, `SELECT id, narrative FROM incidents ORDER BY seq`)
	if err != nil {
		return 0, err
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.narrative); err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	vecs := make([][]float32, len(all))
	for i, r := range all {
		v, err := embedding.EmbedPooled(ctx, emb, r.narrative)
		if err != nil {
			return 0, fmt.Errorf("embed %s: %w", r.id, err)
		}
		vecs[i] = embedding.Normalize(v)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for i, r := range all {
		if _, err := tx.ExecContext(ctx, `UPDATE vectors SET vec = ? WHERE id = ?`, encodeVector(vecs[i]), r.id); err != nil {
			return 0, fmt.Errorf("update vector: %w", err)
		}
	}
	h := Header{EmbeddingModel: emb.Model(), Dims: emb.Dims(), Metric: metric, Format: format}
	if err := writeHeader(ctx, tx, h); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.header = h
	s.embedder = emb
	s.stale = false
	if err := s.loadIndex(ctx); err != nil {
		return 0, err
	}
	s.log.Info("reindexed incident memory", "incidents", len(all), "model", h.EmbeddingModel, "dims", h.Dims)
	return len(all), nil
}
