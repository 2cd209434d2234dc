package cli

import (
	"fmt"
	"strings"

	"github.com/rcliao/hostwarden/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one incident and its links",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().Bool("embedding", false, "Include the embedding vector in JSON output")

	RootCmd.AddCommand(cmd)
}

type incidentDetail struct {
	*model.Incident
	Links []model.Link `json:"links"`
}

func runGet(cmd *cobra.Command, args []string) {
	withEmbedding, _ := cmd.Flags().GetBool("embedding")

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	inc, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	links, err := s.Links(cmd.Context(), inc.ID)
	if err != nil {
		exitErr("links", err)
	}
	if !withEmbedding {
		inc.Embedding = nil
	}

	render(incidentDetail{Incident: inc, Links: links}, func() {
		fmt.Printf("id:        %s (seq %d)\n", inc.ID, inc.Seq)
		fmt.Printf("kind:      %s\n", inc.Kind)
		fmt.Printf("time:      %s (%s)\n", inc.Timestamp.Local().Format("2006-01-02 15:04:05"), ago(inc.Timestamp))
		if inc.Outcome != "" {
			fmt.Printf("outcome:   %s\n", inc.Outcome)
		}
		if len(inc.Tags) > 0 {
			fmt.Printf("tags:      %s\n", strings.Join(inc.Tags, ", "))
		}
		if len(inc.Tools) > 0 {
			fmt.Printf("tools:     %s\n", strings.Join(inc.Tools, ", "))
		}
		fmt.Printf("\n%s\n", inc.Narrative)
		printLinks(inc.ID, links)
	})
}
