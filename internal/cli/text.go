package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rcliao/hostwarden/internal/model"
)

// firstLine returns the first line of s, clipped to n runes.
func firstLine(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func printIncidentRow(inc model.Incident) {
	outcome := inc.Outcome
	if outcome == "" {
		outcome = "-"
	}
	fmt.Printf("%s  %-12s  %-20s  %-14s  %s\n", inc.ID, inc.Kind, outcome, ago(inc.Timestamp), firstLine(inc.Narrative, 72))
}

func printResult(res *model.RemediationResult) {
	fmt.Printf("run %s  pid %d (%s)  outcome: %s\n", res.RunID, res.PID, res.ProcessName, res.FinalOutcome)
	for i, a := range res.Attempts {
		status := "still over threshold"
		if a.VerifiedResolved {
			status = "resolved"
		}
		flags := ""
		if a.Simulated {
			flags += " [simulated]"
		}
		if a.Skipped {
			flags += " [skipped]"
		}
		if a.Error != "" {
			flags += " error: " + a.Error
		}
		fmt.Printf("  %d. %-14s waited %.1fs, %s%s\n", i+1, a.Tier, a.WaitSeconds, status, flags)
	}
	fmt.Println(res.Narrative())
}
