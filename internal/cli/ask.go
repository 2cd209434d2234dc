package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/hostwarden/internal/agent"
)

func init() {
	ask := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about this host",
		Long:  "Plan which read-only probes answer the question, run them, and record the exchange.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}
	health := &cobra.Command{
		Use:   "health",
		Short: "Run a comprehensive health check now",
		Args:  cobra.NoArgs,
		Run:   runAsk,
	}

	RootCmd.AddCommand(ask, health)
}

func runAsk(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ag, err := newAgent(s)
	if err != nil {
		exitErr("planner", err)
	}

	var ans *agent.Answer
	if cmd.Name() == "health" {
		ans, err = ag.HealthCheck(ctx)
	} else {
		ans, err = ag.Ask(ctx, strings.Join(args, " "))
	}
	if ans == nil {
		exitErr(cmd.Name(), err)
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	render(ans, func() {
		fmt.Printf("Goal: %s\n", ans.Plan.Goal)
		if ans.Plan.Reasoning != "" {
			fmt.Printf("Reasoning: %s\n", ans.Plan.Reasoning)
		}
		for _, r := range ans.Results {
			status := "ok"
			if !r.Success {
				status = "failed: " + r.Error
			}
			fmt.Printf("\n== %s (%s, %s) ==\n", r.Tool, status, r.Duration.Round(time.Millisecond))
			fmt.Print(r.Output)
			if r.Truncated {
				fmt.Print("\n[output truncated]")
			}
			fmt.Println()
		}
		if len(ans.Related) > 0 {
			fmt.Println("\nRelated incidents:")
			for _, h := range ans.Related {
				fmt.Printf("  %.3f  ", h.Score)
				printIncidentRow(h.Incident)
			}
		}
		if ans.Incident != nil {
			fmt.Printf("\nRecorded as %s\n", ans.Incident.ID)
		}
	})
}
