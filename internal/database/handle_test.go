package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdb/internal/testutil"
)

func openChinook(t *testing.T, opts ...HandleOption) *Handle {
	t.Helper()
	h, err := Open(testutil.ChinookDB(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestDetectDialect(t *testing.T) {
	dir := t.TempDir()

	t.Run("sqlite", func(t *testing.T) {
		dialect, err := DetectDialect(testutil.ChinookDB(t))
		require.NoError(t, err)
		assert.Equal(t, DialectSQLite, dialect)
	})

	t.Run("text file", func(t *testing.T) {
		path := filepath.Join(dir, "notes.db")
		require.NoError(t, os.WriteFile(path, []byte("definitely not a database file"), 0644))
		_, err := DetectDialect(path)
		assert.ErrorIs(t, err, ErrUnknownFormat)
	})

	t.Run("short file", func(t *testing.T) {
		path := filepath.Join(dir, "short.db")
		require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))
		_, err := DetectDialect(path)
		assert.ErrorIs(t, err, ErrUnknownFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := DetectDialect(filepath.Join(dir, "missing.db"))
		assert.Error(t, err)
	})
}

func TestHandleTables(t *testing.T) {
	h := openChinook(t)

	assert.Equal(t, DialectSQLite, h.Dialect())
	assert.Equal(t, []string{"Album", "Artist", "Genre", "Track"}, h.TableNames())
	assert.Equal(t, "Album, Artist, Genre, Track", h.ListTables())
	assert.True(t, h.HasTable("Track"))
	assert.True(t, h.HasTable("track"))
	assert.False(t, h.HasTable("Invoice"))
}

func TestHandleTableInfo(t *testing.T) {
	h := openChinook(t)
	ctx := context.Background()

	info, err := h.TableInfo(ctx, []string{"genre", "Track"})
	require.NoError(t, err)
	assert.Contains(t, info, "CREATE TABLE Genre")
	assert.Contains(t, info, "CREATE TABLE Track")
	assert.Contains(t, info, "3 rows from Track table:")

	_, err = h.TableInfo(ctx, []string{"Track", "Invoice"})
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestHandleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("count", func(t *testing.T) {
		h := openChinook(t)
		rows, err := h.Query(ctx, `SELECT COUNT(*) AS n FROM Album a JOIN Artist r ON a.ArtistId = r.ArtistId WHERE r.Name = 'Alice In Chains'`)
		require.NoError(t, err)
		assert.Equal(t, []string{"n"}, rows.Columns)
		assert.Equal(t, [][]string{{"1"}}, rows.Values)
		assert.Equal(t, "n\n1\n", rows.String())
	})

	t.Run("rejects writes", func(t *testing.T) {
		h := openChinook(t)
		_, err := h.Query(ctx, "DELETE FROM Track")
		assert.ErrorIs(t, err, ErrNotReadOnly)

		rows, err := h.Query(ctx, "SELECT COUNT(*) FROM Track")
		require.NoError(t, err)
		assert.Equal(t, "10", rows.Values[0][0])
	})

	t.Run("engine error", func(t *testing.T) {
		h := openChinook(t)
		_, err := h.Query(ctx, "SELECT nope FROM Track")
		assert.Error(t, err)
	})

	t.Run("truncates", func(t *testing.T) {
		h := openChinook(t, WithMaxRows(3))
		rows, err := h.Query(ctx, "SELECT TrackId FROM Track ORDER BY TrackId")
		require.NoError(t, err)
		assert.Len(t, rows.Values, 3)
		assert.True(t, rows.Truncated)
		assert.Contains(t, rows.String(), "(results truncated)")
	})

	t.Run("stops reading at the cap", func(t *testing.T) {
		h := openChinook(t, WithMaxRows(5))
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		// unbounded: only returns if rows past the cap are never read
		rows, err := h.Query(ctx, "WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM n) SELECT x FROM n")
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}, rows.Values)
		assert.True(t, rows.Truncated)
	})

	t.Run("exact fit is not truncated", func(t *testing.T) {
		h := openChinook(t, WithMaxRows(4))
		rows, err := h.Query(ctx, "SELECT Name FROM Genre ORDER BY GenreId")
		require.NoError(t, err)
		assert.Len(t, rows.Values, 4)
		assert.False(t, rows.Truncated)
	})

	t.Run("null renders empty", func(t *testing.T) {
		h := openChinook(t)
		rows, err := h.Query(ctx, "SELECT NULL AS missing, 'x' AS present")
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"", "x"}}, rows.Values)
	})
}

func TestHandleColumnsAndDistinct(t *testing.T) {
	h := openChinook(t)
	ctx := context.Background()

	cols, err := h.Columns(ctx, "Artist")
	require.NoError(t, err)
	assert.Equal(t, []Column{
		{Name: "ArtistId", Type: "INTEGER"},
		{Name: "Name", Type: "NVARCHAR(120)"},
	}, cols)

	values, err := h.Distinct(ctx, "Genre", "Name")
	require.NoError(t, err)
	assert.ElementsMatch(t, testutil.Genres, values)
}
