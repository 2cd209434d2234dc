// Package planner turns an operator question into an ordered list of probe
// invocations.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/hostwarden/internal/config"
	"github.com/rcliao/hostwarden/internal/model"
)

var (
	// ErrUnknownTool is returned by Validate when a step names a tool outside
	// the allow-list.
	ErrUnknownTool = errors.New("plan uses unknown tool")
	// ErrInvalidPlan is returned when a planner response has the wrong shape.
	ErrInvalidPlan = errors.New("invalid plan")
)

// Request is the input to a planner.
type Request struct {
	Question string
	// Tools maps each allowed tool to its description.
	Tools map[string]string
	// History holds narratives of related past incidents, most relevant first.
	History []string
}

// Planner produces a plan for a question. It does not execute anything.
type Planner interface {
	Plan(ctx context.Context, req Request) (*model.Plan, error)
}

// New returns the planner named by cfg.
func New(cfg config.Planner) (Planner, error) {
	switch cfg.Provider {
	case "", "keyword":
		return KeywordPlanner{}, nil
	case "ollama":
		return NewOllamaPlanner(cfg.URL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown planner provider %q", cfg.Provider)
	}
}

// Validate checks the plan's shape: at least one step, and every tool on the
// allow-list. A plan that fails is never executed.
func Validate(p *model.Plan, allowed func(string) bool) error {
	if p == nil || len(p.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidPlan)
	}
	var unknown []string
	for _, s := range p.Steps {
		if !allowed(s.Tool) {
			unknown = append(unknown, s.Tool)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTool, strings.Join(unknown, ", "))
	}
	return nil
}

// toolList renders tools as "- name: description" lines in name order.
func toolList(tools map[string]string) string {
	names := make([]string, 0, len(tools))
	for n := range tools {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "- %s: %s\n", n, tools[n])
	}
	return b.String()
}
