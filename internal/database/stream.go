package database

import (
	"context"
	"database/sql"
)

// rowStreamer runs a query and stops reading once limit rows are kept, so a
// large result is never held in memory.
type rowStreamer interface {
	QueryRows(ctx context.Context, query string, limit int) (*Rows, error)
}

type rowScanner func(rows *sql.Rows, width int) ([]string, error)

// readRows keeps at most limit rows and marks the result truncated when more
// were available. Rows past the cap are never scanned.
func readRows(rows *sql.Rows, limit int, scan rowScanner) (*Rows, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &Rows{Columns: cols, Values: make([][]string, 0)}
	for rows.Next() {
		if limit > 0 && len(out.Values) >= limit {
			out.Truncated = true
			break
		}
		row, err := scan(rows, len(cols))
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanText reads a row the way the sqlite3 engine does: NULL becomes the
// empty string.
func scanText(rows *sql.Rows, width int) ([]string, error) {
	values := make([]sql.NullString, width)
	ptrs := make([]any, width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make([]string, width)
	for i, v := range values {
		row[i] = v.String
	}
	return row, nil
}

// sqliteStream reads query results from a SQLite file on its own read-only
// connection. The sqlite3 engine keeps its connection private and always
// reads whole results.
type sqliteStream struct {
	db *sql.DB
}

func openSQLiteStream(dsn string) (*sqliteStream, error) {
	db, err := sql.Open(DialectSQLite, dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStream{db: db}, nil
}

func (s *sqliteStream) QueryRows(ctx context.Context, query string, limit int) (*Rows, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return readRows(rows, limit, scanText)
}

func (s *sqliteStream) Close() error {
	return s.db.Close()
}
