package chunker

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	if result := Split("   ", DefaultOptions()); result != nil {
		t.Errorf("expected nil, got %v", result)
	}
}

func TestSplit_ShortNarrative(t *testing.T) {
	text := "Remediation of process stress (PID 42). Outcome: resolved."
	result := Split(text, DefaultOptions())
	if len(result) != 1 {
		t.Fatalf("expected 1 window, got %d", len(result))
	}
	if result[0].Text != text || result[0].Start != 0 || result[0].End != len(text) {
		t.Errorf("unexpected window %+v", result[0])
	}
}

func TestSplit_SentenceBoundaries(t *testing.T) {
	sentence := "Sent SIGTERM, waited 5s, still running. "
	text := strings.Repeat(sentence, 30)

	opts := Options{TargetSize: 200, MaxSize: 300}
	result := Split(text, opts)
	if len(result) < 2 {
		t.Fatalf("expected several windows, got %d", len(result))
	}
	for i, w := range result {
		if len(w.Text) > opts.MaxSize {
			t.Errorf("window %d exceeds max size: %d", i, len(w.Text))
		}
		if !strings.HasSuffix(w.Text, ".") {
			t.Errorf("window %d should end on a sentence boundary: %q", i, w.Text)
		}
		if text[w.Start:w.End] != w.Text {
			t.Errorf("window %d offsets do not match text", i)
		}
	}
}

func TestSplit_HardSplitsLongSentence(t *testing.T) {
	text := strings.Repeat("word ", 300) // one 1500-byte sentence
	opts := Options{TargetSize: 200, MaxSize: 300}
	result := Split(text, opts)
	if len(result) < 5 {
		t.Fatalf("expected hard split, got %d windows", len(result))
	}
	for _, w := range result {
		if len(w.Text) > opts.TargetSize {
			t.Errorf("hard split window too long: %d", len(w.Text))
		}
		if strings.HasSuffix(w.Text, "wor") {
			t.Errorf("split inside a word: %q", w.Text)
		}
	}
}

func TestSplit_NewlinesSeparate(t *testing.T) {
	line := strings.Repeat("x", 250)
	text := line + "\n" + line + "\n" + line
	result := Split(text, Options{TargetSize: 300, MaxSize: 400})
	if len(result) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(result))
	}
	if got := Texts(result); got[1] != line {
		t.Errorf("middle window = %q", got[1])
	}
}
