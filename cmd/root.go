package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"askdb/internal/config"
)

var (
	configPath string
	dataDir    string

	cfg    *config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "askdb",
		Short: "askdb - Ask questions about a database in plain English",
		Long: `askdb answers natural-language questions about a SQLite or DuckDB
database, or a CSV, TSV or Parquet file converted to DuckDB on the fly.

Questions that ask for a chart are answered with a rendered chart; all
others with a text answer. Use "serve" to expose the same over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd.Name() == "serve")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Directory for converted databases and logs (overrides config)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
