package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr error
	}{
		{name: "simple select", query: "SELECT * FROM Track"},
		{name: "lowercase select with semicolon", query: "select count(*) from album;"},
		{name: "cte", query: "WITH t AS (SELECT 1) SELECT * FROM t"},
		{name: "pragma read", query: "PRAGMA table_info('Track')"},
		{name: "explain", query: "EXPLAIN SELECT 1"},
		{name: "replace function", query: "SELECT REPLACE(Name, 'a', 'b') FROM Artist"},
		{name: "keyword inside literal", query: "SELECT * FROM Album WHERE Title = 'DROP TABLE'"},
		{name: "keyword inside identifier", query: `SELECT "delete" FROM t`},
		{name: "keyword inside comment", query: "SELECT 1 -- delete everything\n"},
		{name: "keyword inside block comment", query: "SELECT /* update */ 1"},
		{name: "escaped quote", query: "SELECT * FROM Artist WHERE Name = 'Guns N'' Roses'"},
		{name: "export as column", query: "SELECT Export, Import FROM data WHERE Load > 3"},
		{name: "copy and merge as columns", query: "SELECT copy, merge, \"set\" FROM data ORDER BY copy"},
		{name: "set as alias", query: "SELECT Name AS set FROM Genre"},
		{name: "explain analyze select", query: "EXPLAIN ANALYZE SELECT * FROM Track"},
		{name: "delete", query: "DELETE FROM Track", wantErr: ErrNotReadOnly},
		{name: "insert", query: "insert into Genre values (9, 'x')", wantErr: ErrNotReadOnly},
		{name: "drop", query: "DROP TABLE Track", wantErr: ErrNotReadOnly},
		{name: "attach", query: "ATTACH 'other.db' AS o", wantErr: ErrNotReadOnly},
		{name: "cte wrapping delete", query: "WITH x AS (SELECT 1) DELETE FROM Track", wantErr: ErrNotReadOnly},
		{name: "copy statement", query: "COPY Track TO 'out.csv'", wantErr: ErrNotReadOnly},
		{name: "explain analyze copy", query: "EXPLAIN ANALYZE COPY Track TO 'out.csv'", wantErr: ErrNotReadOnly},
		{name: "explain install", query: "EXPLAIN INSTALL httpfs", wantErr: ErrNotReadOnly},
		{name: "cte wrapping merge", query: "WITH s AS (SELECT 1 AS id) MERGE INTO Track USING s ON (Track.TrackId = s.id) WHEN MATCHED THEN DELETE", wantErr: ErrNotReadOnly},
		{name: "cte wrapping merge into", query: "WITH s AS (SELECT 1 AS id) MERGE INTO Genre USING s ON (Genre.GenreId = s.id) WHEN NOT MATCHED THEN DO NOTHING", wantErr: ErrNotReadOnly},
		{name: "pragma assignment", query: "PRAGMA journal_mode = WAL", wantErr: ErrNotReadOnly},
		{name: "stacked statements", query: "SELECT 1; DROP TABLE Track", wantErr: ErrMultipleStatements},
		{name: "empty", query: "  ;  ", wantErr: ErrNotReadOnly},
		{name: "unterminated literal", query: "SELECT 'abc", wantErr: ErrNotReadOnly},
		{name: "unterminated comment", query: "SELECT /* abc", wantErr: ErrNotReadOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
