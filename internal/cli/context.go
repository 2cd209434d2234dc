package cli

import (
	"fmt"
	"strings"

	"github.com/rcliao/hostwarden/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [description]",
		Short: "Assemble relevant past incidents for a situation",
		Long:  "Search and score incidents by similarity, recency and severity, then greedily pack them into a token budget.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().IntP("k", "k", 20, "Candidates to consider")
	cmd.Flags().IntP("budget", "b", 0, "Max tokens in output (default: context_budget from config)")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	k, _ := cmd.Flags().GetInt("k")
	budget, _ := cmd.Flags().GetInt("budget")
	if budget <= 0 {
		budget = cfg.Memory.ContextBudget
	}
	query := strings.Join(args, " ")

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	result, err := s.Context(cmd.Context(), store.ContextParams{
		Query:  query,
		K:      k,
		Budget: budget,
	})
	if err != nil {
		exitErr("context", err)
	}

	render(result, func() {
		fmt.Printf("%d incidents, ~%d of %d tokens\n", len(result.Incidents), result.Used, result.Budget)
		for _, ci := range result.Incidents {
			fmt.Printf("\n--- %s  %s  %s  score %.2f (similarity %.3f)\n", ci.ID, ci.Kind, ago(ci.Timestamp), ci.Score, ci.Similarity)
			fmt.Println(ci.Narrative)
		}
	})
}
