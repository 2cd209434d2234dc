// Package config handles configuration for hostwarden.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all hostwarden configuration. It is loaded once and passed by value.
type Config struct {
	Thresholds  Thresholds  `yaml:"thresholds"`
	Remediation Remediation `yaml:"remediation"`
	Schedule    Schedule    `yaml:"schedule"`
	Memory      Memory      `yaml:"memory"`
	Tools       Tools       `yaml:"tools"`
	Planner     Planner     `yaml:"planner"`
	LogLevel    string      `yaml:"log_level"`
	LogFormat   string      `yaml:"log_format"`
}

// Thresholds are the hog detection limits in percent.
type Thresholds struct {
	CPU    float64 `yaml:"cpu_threshold"`
	Memory float64 `yaml:"memory_threshold"`
}

// Remediation configures the escalation state machine.
type Remediation struct {
	DryRun           bool          `yaml:"dry_run"`
	ReniceValue      int           `yaml:"renice_value"`
	DeprioritizeWait time.Duration `yaml:"deprioritize_wait"`
	GracePeriod      time.Duration `yaml:"grace_period"`
	KillVerifyWait   time.Duration `yaml:"kill_verify_wait"`
	ActionTimeout    time.Duration `yaml:"action_timeout"`
	SampleWindow     time.Duration `yaml:"sample_window"`
	MaxPerCycle      int           `yaml:"max_per_cycle"`
	MaxPerHour       int           `yaml:"max_per_hour"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// Schedule configures the daemon's two periodic triggers.
type Schedule struct {
	ResourceCheckInterval time.Duration `yaml:"resource_check_interval"`
	HealthCheckInterval   time.Duration `yaml:"health_check_interval"`
}

// Memory configures the incident store and its embedding provider.
type Memory struct {
	DataDir           string `yaml:"data_dir"`
	EmbeddingProvider string `yaml:"embedding_provider"` // hash | ollama | openai
	EmbeddingModel    string `yaml:"embedding_model"`
	EmbeddingURL      string `yaml:"embedding_url"`
	EmbeddingDims     int    `yaml:"embedding_dims"`
	SearchK           int    `yaml:"search_k"`
	ContextBudget     int    `yaml:"context_budget"`
}

// Tools configures the read-only probes.
type Tools struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxOutput int           `yaml:"max_output"`
	Allowed   []string      `yaml:"allowed"`
}

// Planner configures the question planner.
type Planner struct {
	Provider string        `yaml:"provider"` // keyword | ollama
	Model    string        `yaml:"model"`
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultTools is the allow-list of probes.
var DefaultTools = []string{"disk_usage", "cpu_load", "memory_status", "process_list", "recent_errors"}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		Thresholds: Thresholds{CPU: 80, Memory: 50},
		Remediation: Remediation{
			ReniceValue:      19,
			DeprioritizeWait: 10 * time.Second,
			GracePeriod:      5 * time.Second,
			KillVerifyWait:   1 * time.Second,
			ActionTimeout:    5 * time.Second,
			SampleWindow:     500 * time.Millisecond,
			MaxPerCycle:      3,
			MaxPerHour:       20,
			Cooldown:         10 * time.Minute,
		},
		Schedule: Schedule{
			ResourceCheckInterval: 5 * time.Minute,
			HealthCheckInterval:   6 * time.Hour,
		},
		Memory: Memory{
			DataDir:           defaultDataDir(),
			EmbeddingProvider: "hash",
			EmbeddingDims:     384,
			SearchK:           3,
			ContextBudget:     1000,
		},
		Tools: Tools{
			Timeout:   30 * time.Second,
			MaxOutput: 10000,
			Allowed:   append([]string(nil), DefaultTools...),
		},
		Planner: Planner{
			Provider: "keyword",
			Timeout:  60 * time.Second,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hostwarden"
	}
	return filepath.Join(home, ".hostwarden")
}

// Path resolves the config file path: explicit, $HOSTWARDEN_CONFIG, then ~/.hostwarden/config.yaml.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("HOSTWARDEN_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	if v := os.Getenv("HOSTWARDEN_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("HOSTWARDEN_DRY_RUN: %w", err))
		}
		cfg.Remediation.DryRun = b
	}
	if v := os.Getenv("HOSTWARDEN_CPU_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("HOSTWARDEN_CPU_THRESHOLD: %w", err))
		}
		cfg.Thresholds.CPU = f
	}
	if v := os.Getenv("HOSTWARDEN_MEMORY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("HOSTWARDEN_MEMORY_THRESHOLD: %w", err))
		}
		cfg.Thresholds.Memory = f
	}
	if v := os.Getenv("HOSTWARDEN_DATA_DIR"); v != "" {
		cfg.Memory.DataDir = v
	}
	if v := os.Getenv("HOSTWARDEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HOSTWARDEN_EMBED_PROVIDER"); v != "" {
		cfg.Memory.EmbeddingProvider = v
	}
	if v := os.Getenv("HOSTWARDEN_EMBED_MODEL"); v != "" {
		cfg.Memory.EmbeddingModel = v
	}
	return errors.Join(errs...)
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Thresholds.CPU <= 0 {
		errs = append(errs, fmt.Errorf("cpu_threshold must be > 0, got %v", c.Thresholds.CPU))
	}
	if c.Thresholds.Memory <= 0 || c.Thresholds.Memory > 100 {
		errs = append(errs, fmt.Errorf("memory_threshold must be in (0, 100], got %v", c.Thresholds.Memory))
	}
	r := c.Remediation
	if r.ReniceValue < -20 || r.ReniceValue > 19 {
		errs = append(errs, fmt.Errorf("renice_value must be in [-20, 19], got %d", r.ReniceValue))
	}
	if r.DeprioritizeWait <= 0 || r.GracePeriod <= 0 || r.KillVerifyWait <= 0 {
		errs = append(errs, errors.New("remediation waits must be > 0"))
	}
	if r.ActionTimeout <= 0 {
		errs = append(errs, errors.New("action_timeout must be > 0"))
	}
	if r.MaxPerCycle <= 0 {
		errs = append(errs, fmt.Errorf("max_per_cycle must be > 0, got %d", r.MaxPerCycle))
	}
	if c.Schedule.ResourceCheckInterval <= 0 {
		errs = append(errs, errors.New("resource_check_interval must be > 0"))
	}
	if c.Schedule.HealthCheckInterval <= 0 {
		errs = append(errs, errors.New("health_check_interval must be > 0"))
	}
	switch c.Memory.EmbeddingProvider {
	case "hash":
		if c.Memory.EmbeddingModel != "" {
			errs = append(errs, fmt.Errorf("embedding_model %q needs embedding_provider ollama or openai; the hash provider has no model", c.Memory.EmbeddingModel))
		}
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding_provider %q", c.Memory.EmbeddingProvider))
	}
	if c.Memory.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	switch c.Planner.Provider {
	case "keyword", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown planner provider %q", c.Planner.Provider))
	}
	if c.Tools.Timeout <= 0 || c.Tools.MaxOutput <= 0 {
		errs = append(errs, errors.New("tools timeout and max_output must be > 0"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the config as YAML.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
