package planner

import (
	"context"
	"strings"

	"github.com/rcliao/hostwarden/internal/model"
)

// keywordRules map question words to probes, in the order plans list them.
var keywordRules = []struct {
	tool  string
	words []string
}{
	{"disk_usage", []string{"disk", "space", "storage", "filesystem", "full", "inode"}},
	{"cpu_load", []string{"cpu", "load", "slow", "performance", "hot", "busy"}},
	{"memory_status", []string{"memory", "ram", "swap", "oom"}},
	{"process_list", []string{"process", "hog", "running", "top", "leak"}},
	{"recent_errors", []string{"error", "fail", "crash", "log", "journal", "panic"}},
}

var broadWords = []string{"health", "comprehensive", "overall", "status", "everything", "check"}

// KeywordPlanner maps questions to probes by keyword. It is deterministic
// and needs no model.
type KeywordPlanner struct{}

// Plan implements Planner.
func (KeywordPlanner) Plan(_ context.Context, req Request) (*model.Plan, error) {
	q := strings.ToLower(req.Question)
	p := &model.Plan{Goal: req.Question}

	broad := containsAny(q, broadWords)
	for _, r := range keywordRules {
		if _, ok := req.Tools[r.tool]; !ok {
			continue
		}
		if broad || containsAny(q, r.words) {
			p.Steps = append(p.Steps, model.Step{Tool: r.tool})
		}
	}
	switch {
	case broad:
		p.Reasoning = "broad question: running every available probe"
	case len(p.Steps) > 0:
		p.Reasoning = "matched question keywords to probes"
	default:
		for _, tool := range []string{"cpu_load", "memory_status"} {
			if _, ok := req.Tools[tool]; ok {
				p.Steps = append(p.Steps, model.Step{Tool: tool})
			}
		}
		p.Reasoning = "no keywords matched: checking CPU and memory"
	}
	return p, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
