package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcliao/hostwarden/internal/procctl"
	"github.com/rcliao/hostwarden/internal/remediation"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remediate <pid>",
		Short: "Run the escalation sequence against one process",
		Long: "Lower the process's priority, then send SIGTERM, then SIGKILL, stopping as soon as\n" +
			"it drops below the thresholds. Use --dry-run to see what would happen.",
		Args: cobra.ExactArgs(1),
		Run:  runRemediate,
	}

	RootCmd.AddCommand(cmd)
}

func runRemediate(cmd *cobra.Command, args []string) {
	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		exitErr("remediate", fmt.Errorf("invalid pid %q", args[0]))
	}
	ctx := cmd.Context()

	ctl := procctl.NewOS(cfg.Remediation.SampleWindow)
	snap, err := ctl.Measure(ctx, pid)
	if err != nil {
		exitErr("measure", err)
	}

	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, inc, err := newMonitor(s, ctl).RemediateTarget(ctx, remediation.Target{PID: pid, Name: snap.Name})
	if res == nil {
		exitErr("remediate", err)
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	render(res, func() {
		printResult(res)
		if inc != nil {
			fmt.Printf("Recorded as %s\n", inc.ID)
		}
	})
}
