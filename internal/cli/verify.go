package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hostwarden/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check incident memory integrity",
		Long: "Open the incident memory, which checks the index header and that the incident and\n" +
			"vector tables hold the same ids, then recompute the journal hash chain.",
		Args: cobra.NoArgs,
		Run:  runVerify,
	}

	RootCmd.AddCommand(cmd)
}

type verifyReport struct {
	Header  store.Header        `json:"header"`
	Journal *store.VerifyReport `json:"journal"`
	OK      bool                `json:"ok"`
}

func runVerify(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rep, err := s.VerifyJournal()
	if err != nil {
		exitErr("verify journal", err)
	}

	render(verifyReport{Header: s.Header(), Journal: rep, OK: true}, func() {
		fmt.Printf("index:   ok (%s, %d dims)\n", s.Header().EmbeddingModel, s.Header().Dims)
		fmt.Printf("journal: ok, %d records, last seq %d\n", rep.Records, rep.LastSeq)
	})
}
