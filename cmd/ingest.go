package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [source]",
	Short: "Convert a file or URL into a queryable database",
	Long: `Ingest a SQLite or DuckDB file, a CSV, TSV or Parquet file, a zip archive
holding one of those, or an http(s) URL to any of them.

Tabular files are converted into a DuckDB database with a single table named
"data" inside the data directory. The resulting path is printed as JSON and can
be passed to the other commands.

Examples:
  askdb ingest sales.csv
  askdb ingest https://example.com/exports/orders.parquet`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h, err := openDatabase(context.Background(), args[0])
		if err != nil {
			HandleError(err, "Failed to ingest")
		}
		defer h.Close()

		printJSON(map[string]interface{}{
			"path":    h.Path(),
			"dialect": h.Dialect(),
			"tables":  h.TableNames(),
		})
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables [database]",
	Short: "List the tables of a database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		h, err := openDatabase(context.Background(), args[0])
		if err != nil {
			HandleError(err, "Failed to open database")
		}
		defer h.Close()

		printJSON(h.TableNames())
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(tablesCmd)
}
