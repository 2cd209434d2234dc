package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/hostwarden/internal/model"
)

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id         TEXT PRIMARY KEY,
		seq        INTEGER NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		kind       TEXT NOT NULL,
		narrative  TEXT NOT NULL,
		payload    TEXT,
		tags       TEXT,
		outcome    TEXT NOT NULL DEFAULT '',
		tools      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_kind ON incidents(kind, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_incidents_created ON incidents(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_incidents_outcome ON incidents(outcome);

	CREATE TABLE IF NOT EXISTS vectors (
		id  TEXT PRIMARY KEY REFERENCES incidents(id),
		vec BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS incident_links (
		from_id    TEXT NOT NULL REFERENCES incidents(id),
		to_id      TEXT NOT NULL REFERENCES incidents(id),
		rel        TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, rel)
	);
	CREATE INDEX IF NOT EXISTS idx_links_to ON incident_links(to_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) readHeader(ctx context.Context) (Header, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return Header{}, false, err
	}
	defer rows.Close()

	var h Header
	found := false
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Header{}, false, err
		}
		found = true
		switch k {
		case "embedding_model":
			h.EmbeddingModel = v
		case "dims":
			h.Dims, _ = strconv.Atoi(v)
		case "metric":
			h.Metric = v
		case "format":
			h.Format = v
		}
	}
	return h, found, rows.Err()
}

func writeHeader(ctx context.Context, tx *sql.Tx, h Header) error {
	for k, v := range map[string]string{
		"embedding_model": h.EmbeddingModel,
		"dims":            strconv.Itoa(h.Dims),
		"metric":          h.Metric,
		"format":          h.Format,
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	return nil
}

// checkHeader adopts the embedder's space for a fresh store and otherwise
// requires it to match the stored header exactly.
func (s *Store) checkHeader(ctx context.Context) error {
	want := Header{
		EmbeddingModel: s.embedder.Model(),
		Dims:           s.embedder.Dims(),
		Metric:         metric,
		Format:         format,
	}
	h, found, err := s.readHeader(ctx)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !found {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d incidents but no index header", ErrIndexMismatch, n)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := writeHeader(ctx, tx, want); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.header = want
		return nil
	}
	if h.Format != format || h.Metric != metric {
		return fmt.Errorf("%w: unsupported index format %q/%q", ErrIndexMismatch, h.Format, h.Metric)
	}
	if h.EmbeddingModel != want.EmbeddingModel || h.Dims != want.Dims {
		if s.allowModelChange {
			s.log.Warn("index built for another embedding model; reindex required",
				"index_model", h.EmbeddingModel, "embedder_model", want.EmbeddingModel)
			s.header = h
			s.stale = true
			return nil
		}
		return fmt.Errorf("%w: index built with %s (%d dims), embedder is %s (%d dims); run reindex",
			ErrModelMismatch, h.EmbeddingModel, h.Dims, want.EmbeddingModel, want.Dims)
	}
	s.header = h
	return nil
}

// checkConsistency verifies that incidents and vectors hold the same id set
// and that every vector has the header's dimension.
func (s *Store) checkConsistency(ctx context.Context) error {
	var missingVec, orphanVec, badLen int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents i LEFT JOIN vectors v ON v.id = i.id WHERE v.id IS NULL`).Scan(&missingVec); err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vectors v LEFT JOIN incidents i ON i.id = v.id WHERE i.id IS NULL`).Scan(&orphanVec); err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vectors WHERE length(vec) != ?`, s.header.Dims*4).Scan(&badLen); err != nil {
		return err
	}
	if missingVec > 0 || orphanVec > 0 || badLen > 0 {
		return fmt.Errorf("%w: %d incidents without vectors, %d vectors without incidents, %d vectors of wrong size",
			ErrIndexMismatch, missingVec, orphanVec, badLen)
	}
	return nil
}

func (s *Store) loadIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.created_at, v.vec FROM incidents i JOIN vectors v ON v.id = i.id ORDER BY i.seq`)
	if err != nil {
		return err
	}
	defer rows.Close()

	idx := newFlatIndex()
	for rows.Next() {
		var id, created string
		var blob []byte
		if err := rows.Scan(&id, &created, &blob); err != nil {
			return err
		}
		ts, _ := parseTime(created)
		idx.add(id, ts, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.index = idx
	return nil
}

func insertIncident(ctx context.Context, tx *sql.Tx, inc *model.Incident, links []model.Link) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO incidents (id, seq, created_at, kind, narrative, payload, tags, outcome, tools)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Seq, formatTime(inc.Timestamp), string(inc.Kind), inc.Narrative,
		nullableJSON(inc.Payload), jsonList(inc.Tags), inc.Outcome, jsonList(inc.Tools))
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vectors (id, vec) VALUES (?, ?)`,
		inc.ID, encodeVector(inc.Embedding)); err != nil {
		return fmt.Errorf("insert vector: %w", err)
	}
	for _, l := range links {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM incidents WHERE id = ?`, l.ToID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("link %s -> %s: %w", l.Rel, l.ToID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO incident_links (from_id, to_id, rel, created_at) VALUES (?, ?, ?, ?)`,
			l.FromID, l.ToID, l.Rel, formatTime(l.CreatedAt)); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}
	return nil
}

const incidentCols = `id, seq, created_at, kind, narrative, payload, tags, outcome, tools`

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (model.Incident, error) {
	var inc model.Incident
	var created, kind string
	var payload, tags, tools sql.NullString
	if err := row.Scan(&inc.ID, &inc.Seq, &created, &kind, &inc.Narrative, &payload, &tags, &inc.Outcome, &tools); err != nil {
		return inc, err
	}
	inc.Kind = model.Kind(kind)
	inc.Timestamp, _ = parseTime(created)
	if payload.Valid && payload.String != "" {
		inc.Payload = json.RawMessage(payload.String)
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &inc.Tags)
	}
	if tools.Valid {
		_ = json.Unmarshal([]byte(tools.String), &inc.Tools)
	}
	return inc, nil
}

// Timestamps are stored as fixed-width RFC3339 with nanoseconds so that
// lexical order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func jsonList(v []string) any {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
