package store

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Stats holds aggregate counts over the incident memory.
type Stats struct {
	DBPath         string         `json:"db_path"`
	JournalPath    string         `json:"journal_path"`
	DBSizeBytes    int64          `json:"db_size_bytes"`
	TotalIncidents int            `json:"total_incidents"`
	Vectors        int            `json:"vectors"`
	Links          int            `json:"links"`
	ByKind         map[string]int `json:"by_kind"`
	Outcomes       map[string]int `json:"outcomes"`
	ToolUsage      map[string]int `json:"tool_usage"`
	Header         Header         `json:"header"`
	First          *time.Time     `json:"first,omitempty"`
	Last           *time.Time     `json:"last,omitempty"`
	// LastByKind is the newest incident time of each kind.
	LastByKind map[string]time.Time `json:"last_by_kind"`
}

// Stats scans the side table. It holds the read lock, so the result reflects
// exactly the appends completed before it started.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dbPath := filepath.Join(s.dir, dbFile)
	st := &Stats{
		DBPath:      dbPath,
		JournalPath: s.journal.Path(),
		Vectors:     s.index.len(),
		Header:      s.header,
		ByKind:      map[string]int{},
		Outcomes:    map[string]int{},
		ToolUsage:   map[string]int{},
		LastByKind:  map[string]time.Time{},
	}
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	var first, last *string
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM incidents`).Scan(&st.TotalIncidents, &first, &last); err != nil {
		return nil, err
	}
	if first != nil {
		t, _ := parseTime(*first)
		st.First = &t
	}
	if last != nil {
		t, _ := parseTime(*last)
		st.Last = &t
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incident_links`).Scan(&st.Links); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, MAX(created_at) FROM incidents GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind, ts string
		if err := rows.Scan(&kind, &ts); err != nil {
			return nil, err
		}
		st.LastByKind[kind], _ = parseTime(ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histograms := []struct {
		query string
		into  map[string]int
	}{
		{`SELECT kind, COUNT(*) FROM incidents GROUP BY kind`, st.ByKind},
		{`SELECT outcome, COUNT(*) FROM incidents WHERE outcome != '' GROUP BY outcome`, st.Outcomes},
		{`SELECT json_each.value, COUNT(*) FROM incidents, json_each(incidents.tools) GROUP BY json_each.value`, st.ToolUsage},
	}
	for _, h := range histograms {
		if err := s.histogram(ctx, h.query, h.into); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *Store) histogram(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		into[k] = n
	}
	return rows.Err()
}
