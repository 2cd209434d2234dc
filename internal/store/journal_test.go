package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/rcliao/hostwarden/internal/embedding"
	"github.com/rcliao/hostwarden/internal/model"
)

func TestJournalChainVerifies(t *testing.T) {
	s := newTestStore(t)
	a := mustAppend(t, s, AppendParams{Kind: model.KindQuery, Narrative: "alpha"})
	mustAppend(t, s, AppendParams{Kind: model.KindQuery, Narrative: "beta", Links: []LinkTo{{ToID: a.ID, Rel: model.RelContextFor}}})

	rep, err := s.VerifyJournal()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Records != 2 || rep.LastSeq != 2 || rep.LastHash == "" {
		t.Errorf("report = %+v", rep)
	}

	var seen []JournalRecord
	if _, err := ReadJournal(rep.Path, func(r JournalRecord) error {
		seen = append(seen, r)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0].PrevHash != "" || seen[1].PrevHash != seen[0].Hash {
		t.Errorf("chain not linked: %+v", seen)
	}
	if len(seen[1].Links) != 1 || len(seen[0].Incident.Embedding) != 64 {
		t.Errorf("journal record missing links or vector: %+v", seen[1])
	}
}

func TestJournalVerifiesInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewHashEmbedder(64)
	s, err := openTestStore(t, dir, emb)
	if err != nil {
		t.Fatal(err)
	}
	inc := mustAppend(t, s, AppendParams{
		Kind:      model.KindQuery,
		Narrative: "recent_errors: bad byte \xff here",
		Tags:      []string{"proc:\xfe"},
		Outcome:   "ok",
	})
	if !utf8.ValidString(inc.Narrative) || inc.Narrative != "recent_errors: bad byte \uFFFD here" {
		t.Errorf("narrative = %q", inc.Narrative)
	}
	if len(inc.Tags) != 1 || inc.Tags[0] != "proc:\uFFFD" {
		t.Errorf("tags = %q", inc.Tags)
	}

	rep, err := s.VerifyJournal()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Records != 1 {
		t.Errorf("records = %d", rep.Records)
	}

	// Replay must also accept the record after a crash before commit.
	for _, q := range []string{`DELETE FROM vectors WHERE id = ?`, `DELETE FROM incidents WHERE id = ?`} {
		if _, err := s.db.ExecContext(ctx, q, inc.ID); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()

	s, err = openTestStore(t, dir, emb)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, inc.ID)
	if err != nil {
		t.Fatalf("replayed incident missing: %v", err)
	}
	if got.Narrative != inc.Narrative {
		t.Errorf("replayed narrative = %q", got.Narrative)
	}
}

func TestJournalDetectsTampering(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, AppendParams{Kind: model.KindQuery, Narrative: "alpha"})
	mustAppend(t, s, AppendParams{Kind: model.KindQuery, Narrative: "beta"})

	path := s.journal.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Replace(data, []byte(`"alpha"`), []byte(`"alphz"`), 1)
	if bytes.Equal(tampered, data) {
		t.Fatal("narrative not found in journal")
	}
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := VerifyJournal(path); !errors.Is(err, ErrJournalCorrupt) {
		t.Errorf("verify tampered journal err = %v, want ErrJournalCorrupt", err)
	}
}

func TestVerifyMissingJournal(t *testing.T) {
	rep, err := VerifyJournal(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || rep.Records != 0 {
		t.Errorf("missing journal = %+v, %v", rep, err)
	}
}

func TestOpenJournalDropsPartialLine(t *testing.T) {
	dir := t.TempDir()
	emb := embedding.NewHashEmbedder(64)
	s, err := openTestStore(t, dir, emb)
	if err != nil {
		t.Fatal(err)
	}
	mustAppend(t, s, AppendParams{Kind: model.KindQuery, Narrative: "complete"})
	s.Close()

	f, err := os.OpenFile(filepath.Join(dir, journalFile), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"seq":2,"model":"hash`)
	f.Close()

	s, err = openTestStore(t, dir, emb)
	if err != nil {
		t.Fatalf("reopen with partial line: %v", err)
	}
	defer s.Close()
	mustAppend(t, s, AppendParams{Kind: model.KindQuery, Narrative: "next"})
	rep, err := s.VerifyJournal()
	if err != nil || rep.Records != 2 {
		t.Errorf("journal after truncation = %+v, %v", rep, err)
	}
}

func TestOpenReplaysJournalAheadOfDatabase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewHashEmbedder(64)
	s, err := openTestStore(t, dir, emb)
	if err != nil {
		t.Fatal(err)
	}
	first := mustAppend(t, s, AppendParams{Kind: model.KindRemediation, Narrative: "first remediation"})
	lost := mustAppend(t, s, AppendParams{
		Kind:      model.KindRemediation,
		Narrative: "lost in crash",
		Tags:      []string{"process:x"},
		Links:     []LinkTo{{ToID: first.ID, Rel: model.RelRecurrenceOf}},
	})

	// Simulate a crash between the journal write and the commit.
	for _, q := range []string{
		`DELETE FROM incident_links WHERE from_id = ?`,
		`DELETE FROM vectors WHERE id = ?`,
		`DELETE FROM incidents WHERE id = ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, lost.ID); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()

	s, err = openTestStore(t, dir, emb)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, lost.ID)
	if err != nil {
		t.Fatalf("replayed incident missing: %v", err)
	}
	if got.Seq != lost.Seq || !got.HasTag("process:x") {
		t.Errorf("replayed incident = %+v", got)
	}
	links, _ := s.Links(ctx, first.ID)
	if len(links) != 1 {
		t.Errorf("replayed links = %+v", links)
	}
	hits, err := s.Search(ctx, "lost in crash", 1)
	if err != nil || len(hits) != 1 || hits[0].ID != lost.ID {
		t.Errorf("replayed incident not searchable: %+v, %v", hits, err)
	}
	if next := mustAppend(t, s, AppendParams{Kind: model.KindQuery, Narrative: "after"}); next.Seq != 3 {
		t.Errorf("seq after replay = %d, want 3", next.Seq)
	}
}
