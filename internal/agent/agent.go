// Package agent answers operator questions: it recalls related incidents,
// plans which probes to run, runs them and records the exchange.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/hostwarden/internal/logging"
	"github.com/rcliao/hostwarden/internal/model"
	"github.com/rcliao/hostwarden/internal/planner"
	"github.com/rcliao/hostwarden/internal/store"
)

// HealthCheckQuestion is the fixed question asked by the periodic health check.
const HealthCheckQuestion = "Perform comprehensive system health check"

// Outcomes recorded on query and health-check incidents.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
)

// excerptLen caps how much of each probe output goes into a narrative.
const excerptLen = 600

// Memory is the part of the incident store the agent uses.
type Memory interface {
	Search(ctx context.Context, query string, k int) ([]store.SearchHit, error)
	Append(ctx context.Context, p store.AppendParams) (*model.Incident, error)
}

// Tools runs allowed probes.
type Tools interface {
	Allowed(name string) bool
	Describe() map[string]string
	Run(ctx context.Context, name string, args map[string]string) model.ToolResult
}

// Agent runs the ask and health-check pipelines.
type Agent struct {
	memory  Memory
	planner planner.Planner
	tools   Tools
	k       int
	log     *slog.Logger
}

// New creates an Agent. k is how many past incidents to recall as context.
func New(memory Memory, p planner.Planner, tools Tools, k int) *Agent {
	return &Agent{
		memory:  memory,
		planner: p,
		tools:   tools,
		k:       k,
		log:     logging.Component("agent"),
	}
}

// Answer is the result of one question.
type Answer struct {
	Question string             `json:"question"`
	Plan     *model.Plan        `json:"plan"`
	Results  []model.ToolResult `json:"results"`
	Related  []store.SearchHit  `json:"related"`
	Incident *model.Incident    `json:"incident,omitempty"`
}

// Outcome is ok when every probe succeeded, partial otherwise.
func (a *Answer) Outcome() string {
	for _, r := range a.Results {
		if !r.Success {
			return OutcomePartial
		}
	}
	return OutcomeOK
}

// Ask answers an operator question and records it as a query incident.
func (a *Agent) Ask(ctx context.Context, question string) (*Answer, error) {
	return a.run(ctx, question, model.KindQuery)
}

// HealthCheck runs the comprehensive check and records it as a health_check
// incident.
func (a *Agent) HealthCheck(ctx context.Context) (*Answer, error) {
	return a.run(ctx, HealthCheckQuestion, model.KindHealthCheck)
}

// run executes the pipeline. If only recording fails, the answer is still
// returned together with the error.
func (a *Agent) run(ctx context.Context, question string, kind model.Kind) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	log := a.log.With("kind", kind)
	ans := &Answer{Question: question, Related: []store.SearchHit{}}

	related, err := a.memory.Search(ctx, question, a.k)
	if err != nil {
		log.Warn("recall failed, planning without history", "error", err)
	} else {
		ans.Related = related
	}
	history := make([]string, len(ans.Related))
	for i, h := range ans.Related {
		history[i] = h.Narrative
	}

	plan, err := a.planner.Plan(ctx, planner.Request{Question: question, Tools: a.tools.Describe(), History: history})
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if err := planner.Validate(plan, a.tools.Allowed); err != nil {
		log.Warn("plan rejected", "tools", plan.ToolNames(), "error", err)
		return nil, err
	}
	ans.Plan = plan

	for _, step := range plan.Steps {
		res := a.tools.Run(ctx, step.Tool, step.Args)
		ans.Results = append(ans.Results, res)
		log.Info("tool executed", "tool", step.Tool, "success", res.Success, "duration", res.Duration)
		if ctx.Err() != nil {
			break
		}
	}

	links := make([]store.LinkTo, len(ans.Related))
	for i, h := range ans.Related {
		links[i] = store.LinkTo{ToID: h.ID, Rel: model.RelContextFor}
	}
	inc, err := a.memory.Append(ctx, store.AppendParams{
		Kind:      kind,
		Narrative: narrative(ans),
		Payload:   ans,
		Tags:      []string{string(kind)},
		Outcome:   ans.Outcome(),
		Tools:     plan.ToolNames(),
		Links:     links,
	})
	if err != nil {
		return ans, fmt.Errorf("record %s: %w", kind, err)
	}
	ans.Incident = inc
	log.Info("question answered", "incident", inc.ID, "outcome", inc.Outcome, "related", len(links))
	return ans, nil
}

// narrative renders the question and probe results as searchable text.
func narrative(ans *Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", ans.Question)
	if ans.Plan.Goal != "" && ans.Plan.Goal != ans.Question {
		fmt.Fprintf(&b, "Goal: %s\n", ans.Plan.Goal)
	}
	fmt.Fprintf(&b, "Tools: %s\n", strings.Join(ans.Plan.ToolNames(), ", "))
	for _, r := range ans.Results {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.Error
		}
		fmt.Fprintf(&b, "\n[%s] %s\n", r.Tool, status)
		out := excerpt(strings.TrimSpace(r.Output), excerptLen)
		if out != "" {
			b.WriteString(out)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// excerpt cuts s to at most n bytes on a rune boundary, marking the cut.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
