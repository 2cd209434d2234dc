package cli

import (
	"fmt"
	"time"

	"github.com/rcliao/hostwarden/internal/model"
	"github.com/rcliao/hostwarden/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List incidents, newest first",
		Args:  cobra.NoArgs,
		Run:   runList,
	}

	cmd.Flags().String("kind", "", "Filter by kind: query, remediation, health_check")
	cmd.Flags().StringP("tag", "t", "", "Filter by tag (e.g. process:java, dry-run)")
	cmd.Flags().StringP("outcome", "o", "", "Filter by outcome")
	cmd.Flags().Duration("since", 0, "Only incidents newer than this (e.g. 24h)")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	tag, _ := cmd.Flags().GetString("tag")
	outcome, _ := cmd.Flags().GetString("outcome")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	if kind != "" && !model.ValidKinds[model.Kind(kind)] {
		exitErr("list", fmt.Errorf("invalid kind %q", kind))
	}
	p := store.ListParams{Kind: model.Kind(kind), Tag: tag, Outcome: outcome, Limit: limit}
	if since > 0 {
		p.Since = time.Now().Add(-since)
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	incidents, err := s.List(cmd.Context(), p)
	if err != nil {
		exitErr("list", err)
	}
	if incidents == nil {
		incidents = []model.Incident{}
	}

	render(incidents, func() {
		for _, inc := range incidents {
			printIncidentRow(inc)
		}
	})
}
