package database

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var downloadClient = &http.Client{Timeout: 5 * time.Minute}

// supportedExts lists the file types Ingest accepts after download/extraction.
var supportedExts = map[string]bool{
	".db": true, ".sqlite": true, ".sqlite3": true, ".duckdb": true,
	".csv": true, ".tsv": true, ".txt": true, ".parquet": true,
}

// Download fetches rawURL into dir, keeping the file name from the URL path.
func Download(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("url %s has no file name", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	dst := filepath.Join(dir, filepath.Base(name))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", err
	}
	return dst, nil
}

// UnzipSingle extracts the one supported file contained in the archive at src
// into dest. Archives with zero or several candidates are rejected.
func UnzipSingle(src, dest string) (string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return "", err
	}
	defer r.Close()

	var candidate *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !supportedExts[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		if strings.HasPrefix(filepath.Base(f.Name), "._") {
			continue
		}
		if candidate != nil {
			return "", fmt.Errorf("archive contains more than one data file (%s, %s)", candidate.Name, f.Name)
		}
		candidate = f
	}
	if candidate == nil {
		return "", fmt.Errorf("%w: archive has no supported data file", ErrUnsupportedFormat)
	}

	fpath := filepath.Join(dest, filepath.Base(candidate.Name))
	rc, err := candidate.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	outFile, err := os.Create(fpath)
	if err != nil {
		return "", err
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, rc); err != nil {
		return "", err
	}
	return fpath, nil
}
