package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/tools/sqldatabase"
	_ "github.com/tmc/langchaingo/tools/sqldatabase/sqlite3" // registers the sqlite3 engine
)

const (
	DialectSQLite = "sqlite3"
	DialectDuckDB = "duckdb"

	defaultMaxRows    = 200
	defaultSampleRows = 3
)

var (
	// ErrTableNotFound is returned when a requested table does not exist.
	ErrTableNotFound = sqldatabase.ErrTableNotFound
	// ErrUnknownFormat is returned when a file is neither a SQLite nor a DuckDB database.
	ErrUnknownFormat = errors.New("unrecognized database file")
)

var (
	sqliteMagic = []byte("SQLite format 3\x00")
	duckdbMagic = []byte("DUCK")
)

// internalTables are engine bookkeeping tables hidden from the agent.
var internalTables = map[string]struct{}{
	"sqlite_sequence": {},
	"sqlite_stat1":    {},
	"sqlite_stat4":    {},
}

// Handle is a read-only connection to one uploaded or converted database file.
type Handle struct {
	path    string
	dialect string
	sqldb   *sqldatabase.SQLDatabase
	stream  rowStreamer
	maxRows int
	logger  *slog.Logger
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithMaxRows caps the number of rows Query returns.
func WithMaxRows(n int) HandleOption {
	return func(h *Handle) {
		if n > 0 {
			h.maxRows = n
		}
	}
}

// WithLogger sets the logger used for skipped introspection and query errors.
func WithLogger(logger *slog.Logger) HandleOption {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Open opens the database file at path read-only. The engine is chosen from the
// file header, not the extension.
func Open(path string, opts ...HandleOption) (*Handle, error) {
	dialect, err := DetectDialect(path)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		path:    path,
		dialect: dialect,
		maxRows: defaultMaxRows,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	var dsn string
	switch dialect {
	case DialectSQLite:
		dsn = "file:" + path + "?mode=ro"
	case DialectDuckDB:
		dsn = path + "?access_mode=READ_ONLY"
	}

	sqldb, err := sqldatabase.NewSQLDatabaseWithDSN(dialect, dsn, internalTables)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database %s: %w", dialect, path, err)
	}
	sqldb.SampleRowsNumber = defaultSampleRows
	h.sqldb = sqldb

	switch engine := sqldb.Engine.(type) {
	case rowStreamer:
		h.stream = engine
	default:
		stream, err := openSQLiteStream(dsn)
		if err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("failed to open %s database %s: %w", dialect, path, err)
		}
		h.stream = stream
	}

	return h, nil
}

// DetectDialect sniffs the file header of path.
func DetectDialect(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open database file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 16)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, sqliteMagic):
		return DialectSQLite, nil
	case len(header) >= 12 && bytes.Equal(header[8:12], duckdbMagic):
		return DialectDuckDB, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

func (h *Handle) Path() string    { return h.path }
func (h *Handle) Dialect() string { return h.dialect }

// TableNames returns the user-visible tables, sorted.
func (h *Handle) TableNames() []string {
	names := append([]string(nil), h.sqldb.TableNames()...)
	sort.Strings(names)
	return names
}

// ListTables returns the table names as a comma-separated list.
func (h *Handle) ListTables() string {
	return strings.Join(h.TableNames(), ", ")
}

// HasTable reports whether name is a known table.
func (h *Handle) HasTable(name string) bool {
	_, ok := h.resolveTable(name)
	return ok
}

// resolveTable maps name onto the stored table name, ignoring case.
func (h *Handle) resolveTable(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, t := range h.sqldb.TableNames() {
		if t == name {
			return t, true
		}
	}
	for _, t := range h.sqldb.TableNames() {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	return "", false
}

// TableInfo returns the CREATE statement and sample rows for each named table.
// Every name must exist; an empty list describes all tables.
func (h *Handle) TableInfo(ctx context.Context, tables []string) (string, error) {
	resolved := make([]string, 0, len(tables))
	for _, t := range tables {
		name, ok := h.resolveTable(t)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrTableNotFound, t)
		}
		resolved = append(resolved, name)
	}
	if len(resolved) == 0 {
		resolved = h.TableNames()
	}
	info, err := h.sqldb.TableInfo(ctx, resolved)
	if err != nil {
		return "", fmt.Errorf("failed to describe tables: %w", err)
	}
	return strings.TrimSpace(info), nil
}

// Rows is the result of a read-only query.
type Rows struct {
	Columns   []string   `json:"columns"`
	Values    [][]string `json:"values"`
	Truncated bool       `json:"truncated,omitempty"`
}

// String renders the rows tab-separated with a header line.
func (r *Rows) String() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, "\t"))
	b.WriteString("\n")
	for _, row := range r.Values {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteString("\n")
	}
	if r.Truncated {
		b.WriteString("(results truncated)\n")
	}
	return b.String()
}

// Query runs a read-only statement and keeps at most maxRows rows. Statements
// that could modify the database are rejected before they reach the engine.
func (h *Handle) Query(ctx context.Context, query string) (*Rows, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := h.stream.QueryRows(ctx, query, h.maxRows)
	if err != nil {
		h.logger.Debug("Query failed", "error", err, "dialect", h.dialect)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

// Column describes one column from PRAGMA table_info.
type Column struct {
	Name string
	Type string
}

// Columns returns the declared columns of table.
func (h *Handle) Columns(ctx context.Context, table string) ([]Column, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteLiteral(table))
	cols, values, err := h.sqldb.Engine.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	nameIdx, typeIdx := -1, -1
	for i, c := range cols {
		switch strings.ToLower(c) {
		case "name":
			nameIdx = i
		case "type":
			typeIdx = i
		}
	}
	if nameIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("unexpected table_info layout for %s: %v", table, cols)
	}

	columns := make([]Column, 0, len(values))
	for _, row := range values {
		columns = append(columns, Column{Name: row[nameIdx], Type: row[typeIdx]})
	}
	return columns, nil
}

// Distinct returns the distinct non-NULL values of one column, rendered as text.
func (h *Handle) Distinct(ctx context.Context, table, column string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL",
		quoteIdent(column), quoteIdent(table), quoteIdent(column))
	_, values, err := h.sqldb.Engine.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read distinct values of %s.%s: %w", table, column, err)
	}
	out := make([]string, 0, len(values))
	for _, row := range values {
		if len(row) > 0 {
			out = append(out, row[0])
		}
	}
	return out, nil
}

func (h *Handle) Close() error {
	err := h.sqldb.Close()
	if s, ok := h.stream.(*sqliteStream); ok {
		err = errors.Join(err, s.Close())
	}
	return err
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
