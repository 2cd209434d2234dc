package cli

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	RootCmd.SetArgs(args)
	execErr := RootCmd.Execute()
	w.Close()
	out, _ := io.ReadAll(r)
	if execErr != nil {
		t.Fatalf("%v: %v", args, execErr)
	}
	return string(out)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStatsOnFreshStore(t *testing.T) {
	cfgPath := writeConfig(t, "memory:\n  embedding_dims: 32\n")
	out := execute(t, "--config", cfgPath, "--data-dir", t.TempDir(), "--format", "json", "stats")

	var stats struct {
		TotalIncidents int `json:"total_incidents"`
		Header         struct {
			Dims int `json:"dims"`
		} `json:"header"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if stats.TotalIncidents != 0 || stats.Header.Dims != 32 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfgPath := writeConfig(t, "thresholds:\n  cpu_threshold: 70\nremediation:\n  dry_run: false\n")
	dir := t.TempDir()
	out := execute(t, "--config", cfgPath, "--data-dir", dir, "--dry-run", "--format", "json", "config")

	if !cfg.Remediation.DryRun || cfg.Thresholds.CPU != 70 || cfg.Memory.DataDir != dir {
		t.Errorf("effective config = %+v", cfg)
	}
	if !strings.Contains(out, `"DryRun": true`) {
		t.Errorf("config output missing dry run:\n%s", out)
	}
}

func TestConfigWrite(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	execute(t, "--config", cfgPath, "--data-dir", t.TempDir(), "config", "--write")

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "cpu_threshold") {
		t.Errorf("written config:\n%s", data)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"two\nlines", 10, "two"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in, tt.n); got != tt.want {
			t.Errorf("firstLine(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
