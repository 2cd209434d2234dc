package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show incident memory statistics",
		Args:  cobra.NoArgs,
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	render(stats, func() {
		fmt.Printf("database:   %s (%s)\n", stats.DBPath, humanize.Bytes(uint64(stats.DBSizeBytes)))
		fmt.Printf("journal:    %s\n", stats.JournalPath)
		fmt.Printf("embedding:  %s, %d dims, %s\n", stats.Header.EmbeddingModel, stats.Header.Dims, stats.Header.Metric)
		fmt.Printf("incidents:  %s (%s vectors, %s links)\n",
			humanize.Comma(int64(stats.TotalIncidents)), humanize.Comma(int64(stats.Vectors)), humanize.Comma(int64(stats.Links)))
		if stats.First != nil {
			fmt.Printf("span:       %s to %s\n", ago(*stats.First), ago(*stats.Last))
		}
		for _, kind := range []string{"remediation", "health_check", "query"} {
			if t, ok := stats.LastByKind[kind]; ok {
				fmt.Printf("last %-13s %s\n", kind+":", ago(t))
			}
		}
		printHistogram("by kind", stats.ByKind)
		printHistogram("outcomes", stats.Outcomes)
		printHistogram("tool usage", stats.ToolUsage)
	})
}

func printHistogram(title string, h map[string]int) {
	if len(h) == 0 {
		return
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if h[keys[i]] != h[keys[j]] {
			return h[keys[i]] > h[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Printf("\n%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-22s %s\n", k, humanize.Comma(int64(h[k])))
	}
}
