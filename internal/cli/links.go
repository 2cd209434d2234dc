package cli

import (
	"fmt"

	"github.com/rcliao/hostwarden/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "links <id>",
		Short: "Show relations of an incident",
		Long:  "Show context_for and recurrence_of relations touching an incident, in either direction.",
		Args:  cobra.ExactArgs(1),
		Run:   runLinks,
	}

	RootCmd.AddCommand(cmd)
}

func runLinks(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if _, err := s.Get(cmd.Context(), args[0]); err != nil {
		exitErr("get", err)
	}
	links, err := s.Links(cmd.Context(), args[0])
	if err != nil {
		exitErr("links", err)
	}

	render(links, func() { printLinks(args[0], links) })
}

func printLinks(id string, links []model.Link) {
	if len(links) == 0 {
		return
	}
	fmt.Println("\nlinks:")
	for _, l := range links {
		if l.FromID == id {
			fmt.Printf("  -> %s %s\n", l.Rel, l.ToID)
		} else {
			fmt.Printf("  <- %s %s\n", l.Rel, l.FromID)
		}
	}
}
