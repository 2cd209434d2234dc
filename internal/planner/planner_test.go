package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/hostwarden/internal/config"
	"github.com/rcliao/hostwarden/internal/model"
)

var allTools = map[string]string{
	"disk_usage":    "disk",
	"cpu_load":      "cpu",
	"memory_status": "mem",
	"process_list":  "procs",
	"recent_errors": "errors",
}

func TestKeywordPlanner(t *testing.T) {
	tests := []struct {
		question string
		tools    map[string]string
		want     []string
	}{
		{"Why is my disk filling up?", allTools, []string{"disk_usage"}},
		{"Is the CPU busy and is swap in use?", allTools, []string{"cpu_load", "memory_status"}},
		{"Any recent crash in the logs?", allTools, []string{"recent_errors"}},
		{"Perform comprehensive system health check", allTools,
			[]string{"disk_usage", "cpu_load", "memory_status", "process_list", "recent_errors"}},
		{"hello there", allTools, []string{"cpu_load", "memory_status"}},
		{"Why is my disk filling up?", map[string]string{"cpu_load": ""}, []string{"cpu_load"}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			p, err := KeywordPlanner{}.Plan(context.Background(), Request{Question: tt.question, Tools: tt.tools})
			if err != nil {
				t.Fatal(err)
			}
			if got := p.ToolNames(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tools = %v, want %v", got, tt.want)
			}
			if p.Goal != tt.question || p.Reasoning == "" {
				t.Errorf("plan = %+v", p)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	allowed := func(name string) bool { _, ok := allTools[name]; return ok }

	ok := &model.Plan{Steps: []model.Step{{Tool: "disk_usage"}, {Tool: "cpu_load"}}}
	if err := Validate(ok, allowed); err != nil {
		t.Errorf("valid plan rejected: %v", err)
	}

	bad := &model.Plan{Steps: []model.Step{{Tool: "disk_usage"}, {Tool: "rm_rf"}}}
	err := Validate(bad, allowed)
	if !errors.Is(err, ErrUnknownTool) || !strings.Contains(err.Error(), "rm_rf") {
		t.Errorf("unknown tool err = %v", err)
	}

	if err := Validate(&model.Plan{}, allowed); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("empty plan err = %v", err)
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr bool
	}{
		{"bare", `{"goal":"g","tools":["disk_usage"],"reasoning":"r"}`, []string{"disk_usage"}, false},
		{"prose around", "Sure! Here it is:\n```json\n{\"goal\":\"g\",\"tools\":[\"cpu_load\",\"memory_status\"],\"reasoning\":\"r\"}\n```\nHope that helps.",
			[]string{"cpu_load", "memory_status"}, false},
		{"steps form", `{"goal":"g","steps":[{"tool":"process_list","args":{"limit":"5"}}]}`, []string{"process_list"}, false},
		{"no json", "I cannot help with that", nil, true},
		{"missing tools", `{"goal":"g"}`, nil, true},
		{"broken json", `{"goal": "g", "tools": [`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePlan(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPlan) {
					t.Errorf("err = %v, want ErrInvalidPlan", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(p.ToolNames(), tt.want) {
				t.Errorf("tools = %v, want %v", p.ToolNames(), tt.want)
			}
		})
	}
}

func TestOllamaPlanner(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(generateResponse{
			Response: `{"goal":"find disk hog","tools":["disk_usage","process_list"],"reasoning":"disk question"}`,
		})
	}))
	defer srv.Close()

	p := NewOllamaPlanner(srv.URL, "phi3", 5*time.Second)
	plan, err := p.Plan(context.Background(), Request{
		Question: "Why is my disk filling up?",
		Tools:    allTools,
		History:  []string{"Disk usage on /var was 91 percent last week."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.ToolNames(), []string{"disk_usage", "process_list"}) {
		t.Errorf("tools = %v", plan.ToolNames())
	}
	if gotReq.Model != "phi3" || gotReq.Stream {
		t.Errorf("request = %+v", gotReq)
	}
	for _, want := range []string{"- disk_usage: disk", "User query: Why is my disk filling up?", "91 percent"} {
		if !strings.Contains(gotReq.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestOllamaPlannerHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaPlanner(srv.URL, "missing", time.Second).Plan(context.Background(), Request{Question: "x", Tools: allTools})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
}

func TestNew(t *testing.T) {
	if p, err := New(config.Planner{}); err != nil || p == nil {
		t.Errorf("default planner = %v, %v", p, err)
	}
	if _, ok := mustNew(t, config.Planner{Provider: "ollama"}).(*OllamaPlanner); !ok {
		t.Error("ollama provider did not build an OllamaPlanner")
	}
	if _, err := New(config.Planner{Provider: "gpt9"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func mustNew(t *testing.T, cfg config.Planner) Planner {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
