package store

import (
	"context"
	"encoding/json"
	"io"
)

// Export writes every incident as one JSON line in append order.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+incidentCols+` FROM incidents ORDER BY seq`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	n := 0
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return n, err
		}
		if err := enc.Encode(inc); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}
