package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queryString string
	queryBars   bool
)

var queryCmd = &cobra.Command{
	Use:   "query [database]",
	Short: "Run a read-only SQL query against a database",
	Long: `Execute the requested read-only QUERY against a database and print the
rows as JSON. Statements that could modify the database are rejected.

Examples:
  askdb query chinook.db --sql "SELECT * FROM Artist LIMIT 5"
  askdb query sales.csv --sql "SELECT region, SUM(units) FROM data GROUP BY region" --bars`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if queryString == "" {
			HandleError(fmt.Errorf("query is required"), "Missing query parameter")
		}
		ctx := context.Background()

		h, err := openDatabase(ctx, args[0])
		if err != nil {
			HandleError(err, "Failed to open database")
		}
		defer h.Close()

		rows, err := h.Query(ctx, queryString)
		if err != nil {
			HandleError(err, "Failed to execute query")
		}

		if queryBars {
			chart, err := renderBars(rows, 40)
			if err != nil {
				HandleError(err, "Failed to chart results")
			}
			fmt.Print(chart)
			return
		}

		results := make([]map[string]string, 0, len(rows.Values))
		for _, row := range rows.Values {
			m := make(map[string]string, len(rows.Columns))
			for i, col := range rows.Columns {
				if i < len(row) {
					m[col] = row[i]
				}
			}
			results = append(results, m)
		}

		printJSON(map[string]interface{}{
			"columns":   rows.Columns,
			"rows":      results,
			"truncated": rows.Truncated,
		})
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryString, "sql", "q", "", "SQL query to execute (required)")
	queryCmd.Flags().BoolVar(&queryBars, "bars", false, "Draw the result as a terminal bar chart")
	_ = queryCmd.MarkFlagRequired("sql")
	rootCmd.AddCommand(queryCmd)
}
