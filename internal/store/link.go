package store

import (
	"context"

	"github.com/rcliao/hostwarden/internal/model"
)

// Links returns all links touching an incident, in either direction.
func (s *Store) Links(ctx context.Context, id string) ([]model.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, rel, created_at FROM incident_links
		 WHERE from_id = ? OR to_id = ? ORDER BY created_at`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []model.Link{}
	for rows.Next() {
		var l model.Link
		var created string
		if err := rows.Scan(&l.FromID, &l.ToID, &l.Rel, &created); err != nil {
			return nil, err
		}
		l.CreatedAt, _ = parseTime(created)
		links = append(links, l)
	}
	return links, rows.Err()
}

// Latest returns the newest incident matching p, or nil if none.
func (s *Store) Latest(ctx context.Context, p ListParams) (*model.Incident, error) {
	p.Limit = 1
	list, err := s.List(ctx, p)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}
