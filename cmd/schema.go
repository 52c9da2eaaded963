package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"askdb/internal/database"
)

// SchemaOutput represents the schema information for a table
type SchemaOutput struct {
	TableName   string       `json:"table_name"`
	ColumnCount int          `json:"column_count"`
	Columns     []ColumnInfo `json:"columns"`
}

// ColumnInfo represents information about a single column
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

var schemaDDL bool

var schemaCmd = &cobra.Command{
	Use:   "schema [database] [tables...]",
	Short: "Retrieve a summary of a database schema",
	Long: `Retrieve the columns of every table, or of the named tables, as JSON.

With --ddl, print what the agent sees instead: the CREATE statement of each
table followed by three sample rows.

Examples:
  askdb schema chinook.db
  askdb schema chinook.db Track Genre --ddl`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		h, err := openDatabase(ctx, args[0])
		if err != nil {
			HandleError(err, "Failed to open database")
		}
		defer h.Close()

		tables := args[1:]
		if schemaDDL {
			info, err := h.TableInfo(ctx, tables)
			if err != nil {
				HandleError(err, "Failed to describe tables")
			}
			fmt.Println(info)
			return
		}

		if len(tables) == 0 {
			tables = h.TableNames()
		}
		schemas := make([]SchemaOutput, 0, len(tables))
		for _, tableName := range tables {
			schema, err := getTableSchema(ctx, h, tableName)
			if err != nil {
				HandleError(err, "Failed to read schema")
			}
			schemas = append(schemas, schema)
		}
		printJSON(schemas)
	},
}

// getTableSchema retrieves schema information for a specific table
func getTableSchema(ctx context.Context, h *database.Handle, tableName string) (SchemaOutput, error) {
	if !h.HasTable(tableName) {
		return SchemaOutput{}, fmt.Errorf("%w: %s", database.ErrTableNotFound, tableName)
	}
	cols, err := h.Columns(ctx, tableName)
	if err != nil {
		return SchemaOutput{}, fmt.Errorf("failed to get schema for table %s: %w", tableName, err)
	}

	schema := SchemaOutput{
		TableName: tableName,
		Columns:   make([]ColumnInfo, 0, len(cols)),
	}
	for _, c := range cols {
		schema.Columns = append(schema.Columns, ColumnInfo{Name: c.Name, Type: c.Type})
	}
	schema.ColumnCount = len(schema.Columns)

	return schema, nil
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaDDL, "ddl", false, "Print CREATE statements with sample rows")
	rootCmd.AddCommand(schemaCmd)
}
