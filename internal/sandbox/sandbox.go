// Package sandbox runs model-generated chart code outside the server process.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxOutput = 20 << 20
)

type options struct {
	timeout   time.Duration
	maxOutput int64
}

// Option configures an executor.
type Option func(*options)

// WithTimeout bounds one run. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxOutput caps the bytes read from the program's output. Zero keeps the default.
func WithMaxOutput(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOutput = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{timeout: defaultTimeout, maxOutput: defaultMaxOutput}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const (
	KindSubprocess = "subprocess"
	KindRemote     = "remote"
)

// ErrOutputTooLarge is returned when the code prints more than the output cap.
var ErrOutputTooLarge = errors.New("sandbox output exceeds limit")

// Executor runs code and returns what it printed to standard output.
type Executor interface {
	Execute(ctx context.Context, code string) (string, error)
}

// ExecError carries the diagnostics of a failed run.
type ExecError struct {
	Err    error
	Stderr string
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("execution failed: %v", e.Err)
	}
	return fmt.Sprintf("execution failed: %v: %s", e.Err, e.Stderr)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Config selects and configures an executor.
type Config struct {
	Kind        string
	Interpreter string
	URL         string
	Timeout     time.Duration
	MaxOutput   int64
}

// New builds the executor named by cfg.Kind.
func New(cfg Config) (Executor, error) {
	switch cfg.Kind {
	case KindSubprocess, "":
		return NewSubprocess(cfg.Interpreter, WithTimeout(cfg.Timeout), WithMaxOutput(cfg.MaxOutput))
	case KindRemote:
		r, err := NewRemote(cfg.URL, WithTimeout(cfg.Timeout), WithMaxOutput(cfg.MaxOutput))
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown sandbox kind %q", cfg.Kind)
	}
}
