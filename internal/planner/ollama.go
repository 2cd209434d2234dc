package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rcliao/hostwarden/internal/model"
)

// OllamaPlanner asks a local Ollama model for a plan.
type OllamaPlanner struct {
	baseURL string
	model   string
	client  *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// rawPlan is the JSON shape the model is asked for. Steps is accepted as an
// alternative to Tools when the model wants to pass arguments.
type rawPlan struct {
	Goal      string       `json:"goal"`
	Tools     []string     `json:"tools"`
	Steps     []model.Step `json:"steps"`
	Reasoning string       `json:"reasoning"`
}

// NewOllamaPlanner creates a planner using Ollama's generate API.
func NewOllamaPlanner(baseURL, modelName string, timeout time.Duration) *OllamaPlanner {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "phi3"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaPlanner{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client:  &http.Client{Timeout: timeout},
	}
}

// Plan implements Planner.
func (p *OllamaPlanner) Plan(ctx context.Context, req Request) (*model.Plan, error) {
	body, _ := json.Marshal(generateRequest{Model: p.model, Prompt: buildPrompt(req), Format: "json"})
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	return parsePlan(gen.Response)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are a system diagnostics planner. Analyze the user query and decide which tools to use.\n\n")
	b.WriteString("Available tools:\n")
	b.WriteString(toolList(req.Tools))
	if len(req.History) > 0 {
		b.WriteString("\nRelated past incidents:\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	fmt.Fprintf(&b, "\nUser query: %s\n\n", req.Question)
	b.WriteString(`Respond with ONLY a valid JSON object (no explanation before or after) in this exact format:
{"goal": "brief description", "tools": ["tool1", "tool2"], "reasoning": "why these tools"}`)
	return b.String()
}

// parsePlan decodes the first JSON object in text. Models often wrap the
// object in prose or code fences.
func parsePlan(text string) (*model.Plan, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON object in response %q", ErrInvalidPlan, clip(text, 200))
	}
	var raw rawPlan
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if raw.Goal == "" || (raw.Tools == nil && raw.Steps == nil) {
		return nil, fmt.Errorf("%w: missing goal or tools", ErrInvalidPlan)
	}
	p := &model.Plan{Goal: raw.Goal, Reasoning: raw.Reasoning, Steps: raw.Steps}
	for _, t := range raw.Tools {
		p.Steps = append(p.Steps, model.Step{Tool: t})
	}
	return p, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
