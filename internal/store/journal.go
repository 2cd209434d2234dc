package store

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rcliao/hostwarden/internal/embedding"
	"github.com/rcliao/hostwarden/internal/model"
)

// ErrJournalCorrupt is returned when the journal hash chain does not verify.
var ErrJournalCorrupt = errors.New("journal hash chain broken")

// JournalRecord is one line of the journal: a complete incident with its
// vector and links, chained to the previous line by hash.
type JournalRecord struct {
	Seq      int64          `json:"seq"`
	Model    string         `json:"model"`
	Incident model.Incident `json:"incident"`
	Links    []model.Link   `json:"links,omitempty"`
	PrevHash string         `json:"prev_hash"`
	Hash     string         `json:"hash"`
}

// Journal writes append-only, hash-chained records to a JSON-lines file.
// Every append is fsynced before it returns.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	prevHash string
	lastSeq  int64
}

// OpenJournal opens (or creates) the journal at path, drops a trailing
// partial line left by a crash and recovers the chain head.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	j := &Journal{path: path}

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		if i := bytes.LastIndexByte(data, '\n'); i != len(data)-1 {
			if err := os.Truncate(path, int64(i+1)); err != nil {
				return nil, fmt.Errorf("journal: truncate partial line: %w", err)
			}
			data = data[:i+1]
		}
		lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte{'\n'})
		for i := len(lines) - 1; i >= 0; i-- {
			if len(lines[i]) == 0 {
				continue
			}
			var rec JournalRecord
			if err := json.Unmarshal(lines[i], &rec); err != nil {
				return nil, fmt.Errorf("%w: unreadable last record: %v", ErrJournalCorrupt, err)
			}
			j.prevHash = rec.Hash
			j.lastSeq = rec.Seq
			break
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	j.file = f
	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append chains and writes rec, filling PrevHash and Hash.
func (j *Journal) Append(rec *JournalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec.PrevHash = j.prevHash
	hash, err := recordHash(rec)
	if err != nil {
		return err
	}
	rec.Hash = hash

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	line = append(line, '\n')
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	j.prevHash = rec.Hash
	j.lastSeq = rec.Seq
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// recordHash is SHA256(prev_hash + json(record without hash)).
func recordHash(rec *JournalRecord) (string, error) {
	c := *rec
	c.Hash = ""
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("journal: marshal: %w", err)
	}
	h := sha256.Sum256(append([]byte(c.PrevHash), raw...))
	return fmt.Sprintf("%x", h), nil
}

// VerifyReport summarizes a journal verification.
type VerifyReport struct {
	Path     string `json:"path"`
	Records  int    `json:"records"`
	LastSeq  int64  `json:"last_seq"`
	LastHash string `json:"last_hash"`
}

// ReadJournal calls fn for every record in order after checking its link in
// the hash chain. It stops at the first broken line.
func ReadJournal(path string, fn func(JournalRecord) error) (*VerifyReport, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &VerifyReport{Path: path}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rep := &VerifyReport{Path: path}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	prev := ""
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec JournalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return rep, fmt.Errorf("%w: line %d: %v", ErrJournalCorrupt, lineNo, err)
		}
		if rec.PrevHash != prev {
			return rep, fmt.Errorf("%w: line %d: prev_hash does not match line before", ErrJournalCorrupt, lineNo)
		}
		want, err := recordHash(&rec)
		if err != nil {
			return rep, err
		}
		if rec.Hash != want {
			return rep, fmt.Errorf("%w: line %d: hash mismatch", ErrJournalCorrupt, lineNo)
		}
		if fn != nil {
			if err := fn(rec); err != nil {
				return rep, err
			}
		}
		prev = rec.Hash
		rep.Records++
		rep.LastSeq = rec.Seq
		rep.LastHash = rec.Hash
	}
	return rep, sc.Err()
}

// VerifyJournal recomputes the whole hash chain.
func VerifyJournal(path string) (*VerifyReport, error) {
	return ReadJournal(path, nil)
}

// VerifyJournal verifies this store's journal.
func (s *Store) VerifyJournal() (*VerifyReport, error) {
	return VerifyJournal(s.journal.Path())
}

// recover replays journal records the database is missing, which happens
// when the process died between the journal write and the commit.
func (s *Store) recover(ctx context.Context) error {
	var maxSeq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM incidents`).Scan(&maxSeq); err != nil {
		return err
	}
	if s.journal.lastSeq <= maxSeq {
		return nil
	}

	var pending []JournalRecord
	if _, err := ReadJournal(s.journal.Path(), func(rec JournalRecord) error {
		if rec.Seq > maxSeq {
			pending = append(pending, rec)
		}
		return nil
	}); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, rec := range pending {
		inc := rec.Incident
		if rec.Model != s.header.EmbeddingModel || len(inc.Embedding) != s.header.Dims {
			if s.stale {
				return fmt.Errorf("seq %d needs re-embedding; open with the indexed model first", rec.Seq)
			}
			v, err := embedding.EmbedPooled(ctx, s.embedder, inc.Narrative)
			if err != nil {
				return fmt.Errorf("re-embed %s: %w", inc.ID, err)
			}
			inc.Embedding = embedding.Normalize(v)
		}
		if err := insertIncident(ctx, tx, &inc, rec.Links); err != nil {
			return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Warn("replayed journal records missing from database", "count", len(pending))
	return nil
}
