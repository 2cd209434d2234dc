// Package store provides the incident memory: an append-only SQLite side
// table, a vector table with an in-memory exact index, and a hash-chained
// JSON-lines journal, kept consistent under a single writer.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/hostwarden/internal/embedding"
	"github.com/rcliao/hostwarden/internal/logging"
	"github.com/rcliao/hostwarden/internal/model"
)

var (
	// ErrNotFound is returned when an incident id does not exist.
	ErrNotFound = errors.New("incident not found")
	// ErrModelMismatch is returned when the stored index was built with a
	// different embedding model or dimension than the configured embedder.
	ErrModelMismatch = errors.New("embedding model does not match index header")
	// ErrIndexMismatch is returned when the side table and vector index disagree.
	ErrIndexMismatch = errors.New("incident table and vector index are inconsistent")
	// ErrBroken is returned by Append after a write failed half-way; reopen the
	// store to replay the journal.
	ErrBroken = errors.New("store needs recovery; reopen")
)

const (
	dbFile      = "incidents.db"
	journalFile = "journal.jsonl"
	metric      = "cosine"
	format      = "hostwarden-v1"
)

// Options configures Open.
type Options struct {
	Dir      string
	Embedder embedding.Embedder
	// Now overrides the clock used for incident timestamps.
	Now    func() time.Time
	Logger *slog.Logger
	// AllowModelChange opens an index built for another embedding space in a
	// read-only state where Search and Append fail until Reindex runs.
	AllowModelChange bool
}

// Store is the incident memory. All methods are safe for concurrent use.
// Appends are serialized; reads see every completed append.
type Store struct {
	mu       sync.RWMutex
	db       *sql.DB
	journal  *Journal
	index    *flatIndex
	embedder embedding.Embedder
	header   Header
	entropy  *ulid.MonotonicEntropy
	nextSeq  int64
	broken   error
	// stale is set while the header names a different model than embedder.
	stale bool

	allowModelChange bool

	dir string
	now func() time.Time
	log *slog.Logger
}

// Header identifies the embedding space of the vector index.
type Header struct {
	EmbeddingModel string `json:"embedding_model"`
	Dims           int    `json:"dims"`
	Metric         string `json:"metric"`
	Format         string `json:"format"`
}

// LinkTo is an outgoing relation recorded with an appended incident.
type LinkTo struct {
	ToID string
	Rel  string
}

// AppendParams describes a new incident.
type AppendParams struct {
	Kind      model.Kind
	Narrative string
	Payload   any
	Tags      []string
	Outcome   string
	Tools     []string
	Links     []LinkTo
	// Embedding, when set, is used instead of embedding Narrative.
	Embedding []float32
}

// sanitized replaces invalid UTF-8 in every caller-supplied string. JSON
// encoding would otherwise rewrite those bytes, and the journal hash must be
// reproducible from the decoded record.
func (p AppendParams) sanitized() AppendParams {
	p.Narrative = validUTF8(p.Narrative)
	p.Outcome = validUTF8(p.Outcome)
	p.Tags = validUTF8All(p.Tags)
	p.Tools = validUTF8All(p.Tools)
	if len(p.Links) > 0 {
		links := make([]LinkTo, len(p.Links))
		for i, l := range p.Links {
			links[i] = LinkTo{ToID: validUTF8(l.ToID), Rel: validUTF8(l.Rel)}
		}
		p.Links = links
	}
	return p
}

func validUTF8(s string) string { return strings.ToValidUTF8(s, "\uFFFD") }

func validUTF8All(v []string) []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v))
	for i, s := range v {
		out[i] = validUTF8(s)
	}
	return out
}

// ListParams filters List.
type ListParams struct {
	Kind    model.Kind
	Tag     string
	Outcome string
	Since   time.Time
	Limit   int
}

// Open opens or creates the store in opts.Dir. It refuses to open an index
// built for another embedding space, or whose tables disagree.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Embedder == nil {
		return nil, errors.New("store: embedder is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(opts.Dir, dbFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps transactions and reads strictly ordered.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		embedder: opts.Embedder,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		dir:      opts.Dir,
		now:      opts.Now,
		log:      opts.Logger,

		allowModelChange: opts.AllowModelChange,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logging.Component("store")
	}

	if err := s.init(ctx); err != nil {
		if s.journal != nil {
			s.journal.Close()
		}
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := s.checkHeader(ctx); err != nil {
		return err
	}
	j, err := OpenJournal(filepath.Join(s.dir, journalFile))
	if err != nil {
		return err
	}
	s.journal = j
	if err := s.recover(ctx); err != nil {
		return fmt.Errorf("recover from journal: %w", err)
	}
	if err := s.checkConsistency(ctx); err != nil {
		return err
	}
	if err := s.loadIndex(ctx); err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM incidents`).Scan(&s.nextSeq)
}

// Close closes the database and journal.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.journal.Close(), s.db.Close())
}

// Stale reports whether the index must be rebuilt with Reindex before use.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Header returns the index header.
func (s *Store) Header() Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Append embeds the narrative, then writes the incident, its vector and links
// in one transaction, journals it and publishes it to the search index.
// Concurrent appends never interleave.
func (s *Store) Append(ctx context.Context, p AppendParams) (*model.Incident, error) {
	if !model.ValidKinds[p.Kind] {
		return nil, fmt.Errorf("invalid kind %q", p.Kind)
	}
	p = p.sanitized()
	if p.Narrative == "" {
		return nil, errors.New("narrative is required")
	}
	var payload json.RawMessage
	if p.Payload != nil {
		b, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		payload = b
	}

	s.mu.RLock()
	emb := s.embedder
	s.mu.RUnlock()

	vec := p.Embedding
	if vec == nil {
		v, err := embedding.EmbedPooled(ctx, emb, p.Narrative)
		if err != nil {
			return nil, fmt.Errorf("embed narrative: %w", err)
		}
		vec = v
	}
	vec = embedding.Normalize(append([]float32(nil), vec...))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroken, s.broken)
	}
	if s.stale {
		return nil, fmt.Errorf("%w: reindex before appending", ErrModelMismatch)
	}
	if emb != s.embedder {
		return nil, fmt.Errorf("%w: embedder changed during append", ErrModelMismatch)
	}
	if len(vec) != s.header.Dims {
		return nil, fmt.Errorf("%w: vector has %d dims, index has %d", ErrModelMismatch, len(vec), s.header.Dims)
	}

	now := s.now().UTC()
	inc := &model.Incident{
		ID:        ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		Seq:       s.nextSeq,
		Timestamp: now,
		Kind:      p.Kind,
		Narrative: p.Narrative,
		Payload:   payload,
		Embedding: vec,
		Tags:      p.Tags,
		Outcome:   p.Outcome,
		Tools:     p.Tools,
	}
	links := make([]model.Link, 0, len(p.Links))
	for _, l := range p.Links {
		links = append(links, model.Link{FromID: inc.ID, ToID: l.ToID, Rel: l.Rel, CreatedAt: now})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := insertIncident(ctx, tx, inc, links); err != nil {
		return nil, err
	}
	rec := JournalRecord{Seq: inc.Seq, Model: s.header.EmbeddingModel, Incident: *inc, Links: links}
	if err := s.journal.Append(&rec); err != nil {
		// A partial line may now end the journal; reopening truncates it.
		s.broken = err
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		// The journal holds a record the database does not; replay on reopen.
		s.broken = err
		s.log.Error("commit failed after journal write", "id", inc.ID, "error", err)
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.nextSeq++
	s.index.add(inc.ID, inc.Timestamp, vec)
	s.log.Debug("incident appended", "id", inc.ID, "kind", inc.Kind, "seq", inc.Seq)
	return inc, nil
}

// Get returns one incident by id, including its embedding.
func (s *Store) Get(ctx context.Context, id string) (*model.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if v, ok := s.index.vector(id); ok {
		inc.Embedding = append([]float32(nil), v...)
	}
	return &inc, nil
}

// List returns incidents newest first.
func (s *Store) List(ctx context.Context, p ListParams) ([]model.Incident, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	where := "1=1"
	var args []any
	if p.Kind != "" {
		where += " AND kind = ?"
		args = append(args, string(p.Kind))
	}
	if p.Outcome != "" {
		where += " AND outcome = ?"
		args = append(args, p.Outcome)
	}
	if p.Tag != "" {
		where += " AND EXISTS (SELECT 1 FROM json_each(incidents.tags) WHERE json_each.value = ?)"
		args = append(args, p.Tag)
	}
	if !p.Since.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, formatTime(p.Since))
	}
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incidentCols+` FROM incidents WHERE `+where+` ORDER BY seq DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
