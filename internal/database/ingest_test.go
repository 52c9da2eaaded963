package database

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdb/internal/testutil"
)

const salesCSV = "region,product,units\nNorth,Widget,10\nSouth,Gadget,7\nEast,Widget,3\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIngestCSVRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := writeFile(t, dir, "sales.csv", salesCSV)

	h, err := IngestFile(ctx, src, filepath.Join(dir, "data"), nil)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, DialectDuckDB, h.Dialect())
	assert.Equal(t, []string{ConvertedTable}, h.TableNames())

	cols, err := h.Columns(ctx, ConvertedTable)
	require.NoError(t, err)
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"region", "product", "units"}, names)

	rows, err := h.Query(ctx, "SELECT SUM(units) FROM data WHERE product = 'Widget'")
	require.NoError(t, err)
	assert.Equal(t, "13", rows.Values[0][0])

	_, err = h.Query(ctx, "DROP TABLE data")
	assert.ErrorIs(t, err, ErrNotReadOnly)
}

func TestIngestQueryCap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := writeFile(t, dir, "trade.csv", "Country,Export,Import\nChile,40,12\nPeru,25,30\nBolivia,9,14\n")

	h, err := IngestFile(ctx, src, filepath.Join(dir, "data"), nil, WithMaxRows(2))
	require.NoError(t, err)
	defer h.Close()

	rows, err := h.Query(ctx, "SELECT Country, Export FROM data WHERE Export > Import ORDER BY Export DESC")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Chile", "40"}}, rows.Values)
	assert.False(t, rows.Truncated)

	rows, err = h.Query(ctx, "SELECT * FROM data")
	require.NoError(t, err)
	assert.Len(t, rows.Values, 2)
	assert.True(t, rows.Truncated)

	rows, err = h.Query(ctx, "SELECT i FROM range(1000000) t(i)")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0"}, {"1"}}, rows.Values)
	assert.True(t, rows.Truncated)
}

func TestIngestTSV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := writeFile(t, dir, "people.tsv", "name\tage\nAda\t36\nGrace\t45\n")

	h, err := IngestFile(ctx, src, dir, nil)
	require.NoError(t, err)
	defer h.Close()

	rows, err := h.Query(ctx, "SELECT name FROM data ORDER BY age DESC")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Grace"}, {"Ada"}}, rows.Values)
}

func TestIngestDatabasePassthrough(t *testing.T) {
	src := testutil.ChinookDB(t)
	path, err := Ingest(context.Background(), src, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, src, path)
}

func TestIngestZip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	archive := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{"README.md": "ignore me", "sales.csv": salesCSV} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	h, err := IngestFile(ctx, archive, filepath.Join(dir, "out"), nil)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, []string{ConvertedTable}, h.TableNames())
}

func TestIngestURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exports/sales.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(salesCSV))
	}))
	defer srv.Close()

	ctx := context.Background()
	dir := t.TempDir()

	path, err := Ingest(ctx, srv.URL+"/exports/sales.csv", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sales.duckdb"), path)

	_, err = Ingest(ctx, srv.URL+"/exports/missing.csv", dir, nil)
	assert.Error(t, err)
}

func TestIngestRejects(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Ingest(ctx, writeFile(t, dir, "deck.pptx", "x"), dir, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Ingest(ctx, writeFile(t, dir, "fake.sqlite", "not sqlite at all"), dir, nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Ingest(ctx, filepath.Join(dir, "missing.csv"), dir, nil)
	assert.Error(t, err)
}
