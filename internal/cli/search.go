package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search incidents by meaning",
		Long:  "Embed the query and return the most similar past incidents by cosine similarity.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("k", "k", 0, "Max results (default: search_k from config)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	k, _ := cmd.Flags().GetInt("k")
	if !cmd.Flags().Changed("k") {
		k = cfg.Memory.SearchK
	}
	query := strings.Join(args, " ")

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	hits, err := s.Search(cmd.Context(), query, k)
	if err != nil {
		exitErr("search", err)
	}

	render(hits, func() {
		if len(hits) == 0 {
			fmt.Println("no incidents")
			return
		}
		for _, h := range hits {
			fmt.Printf("%.3f  ", h.Score)
			printIncidentRow(h.Incident)
		}
	})
}
