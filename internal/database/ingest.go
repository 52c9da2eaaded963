package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConvertedTable is the name of the single table a tabular file is converted into.
const ConvertedTable = "data"

// ErrUnsupportedFormat is returned for files that are neither databases nor
// convertible tabular files.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Ingest makes src available as a database file inside dataDir and returns its
// path. Database files are used as-is; tabular files are converted into a
// DuckDB file holding one table named "data". src may be a local path, a .zip
// archive or an http(s) URL.
func Ingest(ctx context.Context, src, dataDir string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	if isURL(src) {
		downloaded, err := Download(ctx, src, dataDir)
		if err != nil {
			return "", fmt.Errorf("failed to download %s: %w", src, err)
		}
		logger.Info("Downloaded source file", "url", src, "path", downloaded)
		src = downloaded
	}

	if strings.EqualFold(filepath.Ext(src), ".zip") {
		extracted, err := UnzipSingle(src, dataDir)
		if err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", src, err)
		}
		src = extracted
	}

	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}

	switch ext := strings.ToLower(filepath.Ext(src)); ext {
	case ".db", ".sqlite", ".sqlite3", ".duckdb":
		if _, err := DetectDialect(src); err != nil {
			return "", err
		}
		return src, nil
	case ".csv", ".tsv", ".txt", ".parquet":
		start := time.Now()
		out, err := convertTabular(ctx, src, dataDir)
		if err != nil {
			logger.Error("Tabular conversion failed", "error", err, "source", src)
			return "", err
		}
		logger.Info("Converted tabular file", "source", src, "path", out, "elapsed", time.Since(start))
		return out, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// IngestFile opens the result of Ingest.
func IngestFile(ctx context.Context, src, dataDir string, logger *slog.Logger, opts ...HandleOption) (*Handle, error) {
	path, err := Ingest(ctx, src, dataDir, logger)
	if err != nil {
		return nil, err
	}
	return Open(path, append([]HandleOption{WithLogger(logger)}, opts...)...)
}

// convertTabular copies a tabular file column-for-column into a new DuckDB
// file. Column types are inferred by DuckDB's readers.
func convertTabular(ctx context.Context, src, dataDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(dataDir, base+".duckdb")
	for _, p := range []string{out, out + ".wal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to replace %s: %w", p, err)
		}
	}

	db, err := sql.Open(DialectDuckDB, out)
	if err != nil {
		return "", fmt.Errorf("failed to create duckdb file: %w", err)
	}
	defer db.Close()

	var reader string
	switch strings.ToLower(filepath.Ext(src)) {
	case ".parquet":
		reader = fmt.Sprintf("read_parquet(%s)", quoteLiteral(src))
	case ".tsv":
		reader = fmt.Sprintf("read_csv_auto(%s, header=true, delim='\\t')", quoteLiteral(src))
	default:
		reader = fmt.Sprintf("read_csv_auto(%s, header=true)", quoteLiteral(src))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", quoteIdent(ConvertedTable), reader)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", filepath.Base(src), err)
	}
	if _, err := db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return "", fmt.Errorf("failed to checkpoint %s: %w", out, err)
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
