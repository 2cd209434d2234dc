// Package chunker splits long incident narratives into windows so each can be
// embedded separately and pooled.
package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configures windowing.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default windowing options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Window is a slice of the original text with its byte offsets.
type Window struct {
	Text  string
	Start int
	End   int
}

// Split breaks text into windows of roughly TargetSize bytes on sentence
// boundaries. Text no longer than MaxSize is returned as a single window.
func Split(text string, opts Options) []Window {
	if opts.TargetSize <= 0 || opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []Window{trimmed(text, 0, len(text))}
	}
	return merge(sentences(text), text, opts)
}

// Texts returns only the text of each window.
func Texts(ws []Window) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Text
	}
	return out
}

type span struct{ start, end int }

// sentences splits on '.', '!', '?' followed by whitespace, and on newlines.
func sentences(text string) []span {
	var out []span
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		end := -1
		switch {
		case c == '\n':
			end = i + 1
		case (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || unicode.IsSpace(rune(text[i+1]))):
			end = i + 1
		}
		if end > start {
			out = append(out, span{start, end})
			start = end
		}
	}
	if start < len(text) {
		out = append(out, span{start, len(text)})
	}
	return out
}

// merge packs sentences into windows, hard-splitting any sentence over MaxSize.
func merge(spans []span, text string, opts Options) []Window {
	var out []Window
	cur := span{-1, -1}

	flush := func() {
		if cur.start < 0 {
			return
		}
		if w := trimmed(text, cur.start, cur.end); w.Text != "" {
			out = append(out, w)
		}
		cur = span{-1, -1}
	}

	for _, s := range spans {
		if s.end-s.start > opts.MaxSize {
			flush()
			out = append(out, hardSplit(text, s, opts)...)
			continue
		}
		if cur.start < 0 {
			cur = s
			continue
		}
		if s.end-cur.start <= opts.TargetSize {
			cur.end = s.end
			continue
		}
		flush()
		cur = s
	}
	flush()
	return out
}

// hardSplit breaks an oversized sentence on word boundaries.
func hardSplit(text string, s span, opts Options) []Window {
	var out []Window
	start := s.start
	for start < s.end {
		end := start + opts.TargetSize
		if end >= s.end {
			end = s.end
		} else if cut := strings.LastIndexByte(text[start:end], ' '); cut > 0 {
			end = start + cut + 1
		}
		if w := trimmed(text, start, end); w.Text != "" {
			out = append(out, w)
		}
		start = end
	}
	return out
}

func trimmed(text string, start, end int) Window {
	seg := text[start:end]
	lead := len(seg) - len(strings.TrimLeftFunc(seg, unicode.IsSpace))
	seg = strings.TrimSpace(seg)
	return Window{Text: seg, Start: start + lead, End: start + lead + len(seg)}
}
