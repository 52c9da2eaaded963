package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// Remote posts code to a sandbox service.
//
// Request:  {"code": "..."}
// Response: {"result": "...", "stdout": "...", "stderr": "...", "error": "..."}
//
// result wins over stdout when both are set.
type Remote struct {
	url    string
	client *http.Client
	opts   options
}

type remoteRequest struct {
	Code string `json:"code"`
}

type remoteResponse struct {
	Result string `json:"result"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Error  string `json:"error"`
}

// NewRemote returns an executor for the service at url.
func NewRemote(url string, opts ...Option) (*Remote, error) {
	if url == "" {
		return nil, errors.New("remote sandbox url is required")
	}
	o := applyOptions(opts)
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: o.timeout},
		opts:   o,
	}, nil
}

func (r *Remote) Execute(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(remoteRequest{Code: code})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &ExecError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.maxOutput+1))
	if err != nil {
		return "", &ExecError{Err: err}
	}
	if int64(len(raw)) > r.opts.maxOutput {
		return "", ErrOutputTooLarge
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ExecError{Err: fmt.Errorf("sandbox returned %s", resp.Status), Stderr: strings.TrimSpace(string(raw))}
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &ExecError{Err: fmt.Errorf("invalid sandbox response: %w", err)}
	}
	if out.Error != "" {
		return "", &ExecError{Err: errors.New(out.Error), Stderr: out.Stderr}
	}
	if out.Result != "" {
		return out.Result, nil
	}
	return out.Stdout, nil
}
