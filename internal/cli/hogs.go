package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/hostwarden/internal/detect"
	"github.com/rcliao/hostwarden/internal/procctl"
)

func init() {
	cmd := &cobra.Command{
		Use:   "hogs",
		Short: "List processes over the CPU or memory threshold",
		Long:  "Sample the process table and show detected hogs, most severe first. Nothing is remediated.",
		Args:  cobra.NoArgs,
		Run:   runHogs,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (0 = all)")

	RootCmd.AddCommand(cmd)
}

func runHogs(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	snapshot, err := procctl.NewSampler(cfg.Remediation.SampleWindow).Snapshot(cmd.Context())
	if err != nil {
		exitErr("snapshot", err)
	}
	hogs := detect.Top(detect.Detect(snapshot, thresholds()), limit)
	if hogs == nil {
		hogs = []detect.Candidate{}
	}

	render(hogs, func() {
		if len(hogs) == 0 {
			fmt.Printf("no hogs among %d processes (cpu > %.0f%%, memory > %.0f%%)\n",
				len(snapshot), cfg.Thresholds.CPU, cfg.Thresholds.Memory)
			return
		}
		fmt.Printf("%7s  %-20s %7s %7s %8s  %s\n", "PID", "NAME", "CPU%", "MEM%", "SEVERITY", "REASONS")
		for _, c := range hogs {
			s := c.Snapshot
			fmt.Printf("%7d  %-20s %7.1f %7.1f %8.2f  %s\n",
				s.PID, firstLine(s.Name, 20), s.CPUPercent, s.MemPercent, c.Severity, strings.Join(c.Reasons, ", "))
		}
	})
}
