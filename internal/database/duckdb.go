package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tmc/langchaingo/tools/sqldatabase"
)

func init() {
	sqldatabase.RegisterEngine(DialectDuckDB, NewDuckDB)
}

var _ sqldatabase.Engine = (*DuckDB)(nil)

// DuckDB is a sqldatabase engine backed by a DuckDB file. It is used for
// databases converted from tabular files and for uploaded .duckdb files.
type DuckDB struct {
	db *sql.DB
}

// NewDuckDB opens a DuckDB engine. The dsn is a file path with optional
// configuration parameters, e.g. "data.duckdb?access_mode=READ_ONLY".
func NewDuckDB(dsn string) (sqldatabase.Engine, error) {
	db, err := sql.Open(DialectDuckDB, dsn)
	if err != nil {
		return nil, err
	}
	return &DuckDB{db: db}, nil
}

func (d *DuckDB) Dialect() string {
	return DialectDuckDB
}

func (d *DuckDB) Query(ctx context.Context, query string, args ...any) ([]string, [][]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	result, err := readRows(rows, 0, scanAny)
	if err != nil {
		return nil, nil, err
	}
	return result.Columns, result.Values, nil
}

// QueryRows is Query with a row cap. Rows past limit are not converted.
func (d *DuckDB) QueryRows(ctx context.Context, query string, limit int) (*Rows, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return readRows(rows, limit, scanAny)
}

func scanAny(rows *sql.Rows, width int) ([]string, error) {
	values := make([]any, width)
	ptrs := make([]any, width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make([]string, width)
	for i, v := range values {
		row[i] = formatValue(v)
	}
	return row, nil
}

// formatValue renders a scanned DuckDB value the way the sqlite3 engine
// renders NULLable text: NULL becomes the empty string.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.DateTime)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func (d *DuckDB) TableNames(ctx context.Context) ([]string, error) {
	_, result, err := d.Query(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_type = 'BASE TABLE' ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result))
	for _, row := range result {
		names = append(names, row[0])
	}
	return names, nil
}

func (d *DuckDB) TableInfo(ctx context.Context, table string) (string, error) {
	_, result, err := d.Query(ctx,
		"SELECT sql FROM duckdb_tables() WHERE schema_name = 'main' AND table_name = ?", table)
	if err != nil {
		return "", err
	}
	if len(result) == 0 {
		return "", sqldatabase.ErrTableNotFound
	}
	if len(result[0]) < 1 {
		return "", sqldatabase.ErrInvalidResult
	}
	return result[0][0], nil
}

func (d *DuckDB) Close() error {
	return d.db.Close()
}
