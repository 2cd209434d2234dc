// Package cli implements the hostwarden commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rcliao/hostwarden/internal/config"
	"github.com/rcliao/hostwarden/internal/detect"
	"github.com/rcliao/hostwarden/internal/embedding"
	"github.com/rcliao/hostwarden/internal/logging"
	"github.com/rcliao/hostwarden/internal/store"
)

var (
	configPath string
	dataDir    string
	formatFlag string
	logLevel   string
	dryRun     bool

	// cfg is the effective configuration, loaded before every command runs.
	cfg config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "hostwarden",
	Short: "Host monitoring agent with escalating remediation and incident memory",
	Long: "hostwarden watches for processes hogging CPU or memory, remediates them by lowering\n" +
		"priority, then stopping gracefully, then forcibly, and remembers every incident so\n" +
		"operators can search past remediations, queries and health checks.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default: $HOSTWARDEN_CONFIG or ~/.hostwarden/config.yaml)")
	pf.StringVarP(&dataDir, "data-dir", "d", "", "Incident memory directory (overrides config)")
	pf.StringVarP(&formatFlag, "format", "f", "", "Output format: json or text (default: text on a terminal, json otherwise)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&dryRun, "dry-run", false, "Simulate remediation actions without touching processes")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(config.Path(configPath))
	if err != nil {
		return err
	}
	if dataDir != "" {
		c.Memory.DataDir = dataDir
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if cmd.Flags().Changed("dry-run") {
		c.Remediation.DryRun = dryRun
	}
	if err := c.Validate(); err != nil {
		return err
	}
	switch outputFormat() {
	case "json", "text":
	default:
		return fmt.Errorf("unknown output format %q", formatFlag)
	}
	logging.Setup(c.LogLevel, c.LogFormat)
	cfg = c
	return nil
}

func outputFormat() string {
	if formatFlag != "" {
		return formatFlag
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return "text"
	}
	return "json"
}

// render prints v as indented JSON, or calls text for the text format.
func render(v any, text func()) {
	if outputFormat() == "json" {
		printJSON(v)
		return
	}
	text()
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func thresholds() detect.Thresholds {
	return detect.Thresholds{CPU: cfg.Thresholds.CPU, Memory: cfg.Thresholds.Memory}
}

func openStore(ctx context.Context) (*store.Store, error) {
	emb, err := embedding.New(cfg.Memory)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, store.Options{Dir: cfg.Memory.DataDir, Embedder: emb})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
