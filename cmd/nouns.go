package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"askdb/internal/nouns"
)

var (
	nounsSearch string
	nounsK      int
)

var nounsCmd = &cobra.Command{
	Use:   "nouns [database]",
	Short: "List or search the proper nouns of a database",
	Long: `List the proper nouns the agent can look up: distinct values of text
columns that start with a letter and are not purely numeric.

With --search, embed them and print the closest matches to an approximate
spelling, as the search_proper_nouns tool would.

Examples:
  askdb nouns chinook.db
  askdb nouns chinook.db --search "Alis in Chains"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, err := openDatabase(ctx, args[0])
		if err != nil {
			HandleError(err, "Failed to open database")
		}
		defer h.Close()

		if nounsSearch == "" {
			printJSON(nouns.Collect(ctx, h, cfg.Nouns.StripNumbers, logger))
			return
		}

		embedder, err := newEmbedder()
		if err != nil {
			HandleError(err, "Failed to initialize embeddings")
		}
		ix := nouns.NewIndex(embedder,
			nouns.WithBatchSize(cfg.Nouns.BatchSize),
			nouns.WithConcurrency(cfg.Nouns.Concurrency),
			nouns.WithLogger(logger))

		var matches []string
		err = runWithSpinner(ctx, "Indexing proper nouns...", func(ctx context.Context) error {
			if _, err := ix.Rebuild(ctx, h, cfg.Nouns.StripNumbers); err != nil {
				return err
			}
			found, err := ix.Search(ctx, nounsSearch, nounsK)
			matches = found
			return err
		})
		if err != nil {
			HandleError(err, "Failed to search proper nouns")
		}
		printJSON(matches)
	},
}

func init() {
	nounsCmd.Flags().StringVarP(&nounsSearch, "search", "s", "", "Approximate spelling to look up")
	nounsCmd.Flags().IntVarP(&nounsK, "k", "k", nouns.DefaultK, "Number of matches to return")
	rootCmd.AddCommand(nounsCmd)
}
