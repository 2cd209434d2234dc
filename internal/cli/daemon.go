package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/hostwarden/internal/agent"
	"github.com/rcliao/hostwarden/internal/logging"
	"github.com/rcliao/hostwarden/internal/monitor"
	"github.com/rcliao/hostwarden/internal/planner"
	"github.com/rcliao/hostwarden/internal/probes"
	"github.com/rcliao/hostwarden/internal/procctl"
	"github.com/rcliao/hostwarden/internal/remediation"
	"github.com/rcliao/hostwarden/internal/scheduler"
	"github.com/rcliao/hostwarden/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run periodic resource and health checks",
		Long: "Run the resource check (detect and remediate hogs) and the health check on their\n" +
			"configured intervals until interrupted. SIGINT/SIGTERM let the current remediation\n" +
			"tier finish before exiting.",
		Args: cobra.NoArgs,
		Run:  runDaemon,
	}

	cmd.Flags().Bool("once", false, "Run one resource check and one health check, then exit")

	RootCmd.AddCommand(cmd)
}

func newMonitor(s *store.Store, ctl procctl.Controller) *monitor.Monitor {
	machine := remediation.New(ctl, remediation.ConfigFrom(cfg))
	breaker := remediation.NewCircuitBreaker(cfg.Remediation.MaxPerHour, cfg.Remediation.Cooldown)
	return monitor.New(procctl.NewSampler(cfg.Remediation.SampleWindow), machine, breaker, s, monitor.Options{
		Thresholds:  thresholds(),
		MaxPerCycle: cfg.Remediation.MaxPerCycle,
	})
}

func newAgent(s *store.Store) (*agent.Agent, error) {
	p, err := planner.New(cfg.Planner)
	if err != nil {
		return nil, err
	}
	return agent.New(s, p, probes.NewRegistry(cfg.Tools), cfg.Memory.SearchK), nil
}

func runDaemon(cmd *cobra.Command, args []string) {
	once, _ := cmd.Flags().GetBool("once")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mon := newMonitor(s, procctl.NewOS(cfg.Remediation.SampleWindow))
	ag, err := newAgent(s)
	if err != nil {
		exitErr("planner", err)
	}

	log := logging.Component("daemon")
	if cfg.Remediation.DryRun {
		log.Warn("[DRY RUN] remediation actions will be simulated; no process will be touched", "dry_run", true)
	}
	log.Info("daemon starting",
		"data_dir", cfg.Memory.DataDir,
		"cpu_threshold", cfg.Thresholds.CPU,
		"memory_threshold", cfg.Thresholds.Memory,
		"resource_check_interval", cfg.Schedule.ResourceCheckInterval,
		"health_check_interval", cfg.Schedule.HealthCheckInterval,
		"embedding_model", s.Header().EmbeddingModel)

	resourceCheck := func(ctx context.Context) error {
		report, err := mon.CheckResources(ctx)
		if report != nil {
			log.Info("resource check complete",
				"scanned", report.Scanned, "hogs", report.Hogs,
				"remediated", len(report.Results), "skipped", len(report.Skipped))
		}
		return err
	}
	healthCheck := func(ctx context.Context) error {
		ans, err := ag.HealthCheck(ctx)
		if ans != nil {
			log.Info("health check complete", "tools", len(ans.Results), "outcome", ans.Outcome())
		}
		return err
	}

	if once {
		if err := resourceCheck(ctx); err != nil {
			exitErr("resource check", err)
		}
		if err := healthCheck(ctx); err != nil {
			exitErr("health check", err)
		}
		return
	}

	sched := scheduler.New()
	err = sched.Run(ctx,
		scheduler.Trigger{Name: "resource_check", Interval: cfg.Schedule.ResourceCheckInterval, Immediate: true, Run: resourceCheck},
		scheduler.Trigger{Name: "health_check", Interval: cfg.Schedule.HealthCheckInterval, Run: healthCheck},
	)
	if err != nil {
		exitErr("scheduler", err)
	}
	for name, st := range sched.Stats() {
		log.Info("trigger summary", "trigger", name, "runs", st.Runs, "failures", st.Failures, "dropped", st.Dropped)
	}
}
