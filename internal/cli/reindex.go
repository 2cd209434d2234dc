package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/hostwarden/internal/embedding"
	"github.com/rcliao/hostwarden/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed every incident with the configured embedding model",
		Long: "Rebuild the vector index after changing embedding_provider, embedding_model or\n" +
			"embedding_dims. The store refuses to open with a different model until this runs.",
		Args: cobra.NoArgs,
		Run:  runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	emb, err := embedding.New(cfg.Memory)
	if err != nil {
		exitErr("embedder", err)
	}
	s, err := store.Open(ctx, store.Options{Dir: cfg.Memory.DataDir, Embedder: emb, AllowModelChange: true})
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	before := s.Header()
	n, err := s.Reindex(ctx, emb)
	if err != nil {
		exitErr("reindex", err)
	}

	result := map[string]any{"incidents": n, "from": before, "to": s.Header()}
	render(result, func() {
		fmt.Printf("reindexed %d incidents: %s (%d dims) -> %s (%d dims)\n",
			n, before.EmbeddingModel, before.Dims, s.Header().EmbeddingModel, s.Header().Dims)
	})
}
