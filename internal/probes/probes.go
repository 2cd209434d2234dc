// Package probes implements the read-only diagnostic tools the agent may run.
package probes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rcliao/hostwarden/internal/config"
	"github.com/rcliao/hostwarden/internal/logging"
	"github.com/rcliao/hostwarden/internal/model"
)

// ErrUnknownTool is returned for a tool that is not registered or not allowed.
var ErrUnknownTool = errors.New("unknown tool")

// Func produces a probe's text output.
type Func func(ctx context.Context, args map[string]string) (string, error)

// Probe is a named read-only diagnostic.
type Probe struct {
	Name        string
	Description string
	Run         Func
}

// Registry holds the allowed probes and runs them with a timeout and an
// output cap.
type Registry struct {
	probes    map[string]Probe
	allowed   map[string]bool
	timeout   time.Duration
	maxOutput int
	now       func() time.Time
	log       *slog.Logger
}

// NewRegistry returns a registry with the built-in probes, restricted to
// cfg.Allowed.
func NewRegistry(cfg config.Tools) *Registry {
	r := &Registry{
		probes:    make(map[string]Probe),
		allowed:   make(map[string]bool, len(cfg.Allowed)),
		timeout:   cfg.Timeout,
		maxOutput: cfg.MaxOutput,
		now:       time.Now,
		log:       logging.Component("probes"),
	}
	for _, name := range cfg.Allowed {
		r.allowed[name] = true
	}
	for _, p := range Builtin() {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a probe. It is only runnable if allowed.
func (r *Registry) Register(p Probe) {
	r.probes[p.Name] = p
}

// Allowed reports whether name is registered and on the allow-list.
func (r *Registry) Allowed(name string) bool {
	_, ok := r.probes[name]
	return ok && r.allowed[name]
}

// Names returns the runnable probe names, sorted.
func (r *Registry) Names() []string {
	var names []string
	for name := range r.probes {
		if r.allowed[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Describe returns name → description for every runnable probe.
func (r *Registry) Describe() map[string]string {
	out := make(map[string]string)
	for _, name := range r.Names() {
		out[name] = r.probes[name].Description
	}
	return out
}

// Run executes one probe. Failures are reported in the result, never as a
// panic or error; output beyond the cap is cut and marked truncated.
func (r *Registry) Run(ctx context.Context, name string, args map[string]string) model.ToolResult {
	start := r.now()
	res := model.ToolResult{Tool: name, Timestamp: start}
	if !r.Allowed(name) {
		res.Error = fmt.Sprintf("%v: %s", ErrUnknownTool, name)
		return res
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := r.probes[name].Run(ctx, args)
	res.Duration = r.now().Sub(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		res.Error = err.Error()
		r.log.Warn("probe failed", "tool", name, "error", err)
	} else {
		res.Success = true
	}
	res.Output, res.Truncated = truncate(out, r.maxOutput)
	r.log.Debug("probe executed", "tool", name, "success", res.Success, "duration", res.Duration)
	return res
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.Clone(s[:cut]), true
}
