package model

import "time"

// Step is a single tool invocation proposed by a planner.
type Step struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args,omitempty"`
}

// Plan is an ordered list of tool invocations for a question.
type Plan struct {
	Goal      string `json:"goal"`
	Steps     []Step `json:"steps"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ToolNames returns the tool name of each step in order.
func (p Plan) ToolNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Tool
	}
	return names
}

// ToolResult is the output of one probe execution.
type ToolResult struct {
	Tool      string        `json:"tool"`
	Success   bool          `json:"success"`
	Output    string        `json:"output"`
	Truncated bool          `json:"truncated,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}
