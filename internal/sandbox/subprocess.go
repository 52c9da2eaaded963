package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultInterpreter = "python3"

// Subprocess runs code with a local interpreter in a fresh temp directory.
type Subprocess struct {
	interpreter string
	opts        options
}

// NewSubprocess returns a Subprocess executor. An empty interpreter means python3.
func NewSubprocess(interpreter string, opts ...Option) (*Subprocess, error) {
	if interpreter == "" {
		interpreter = defaultInterpreter
	}
	return &Subprocess{interpreter: interpreter, opts: applyOptions(opts)}, nil
}

func (s *Subprocess) Execute(ctx context.Context, code string) (string, error) {
	dir, err := os.MkdirTemp("", "askdb-sandbox-*")
	if err != nil {
		return "", fmt.Errorf("failed to create sandbox dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "main.py")
	if err := os.WriteFile(script, []byte(code), 0600); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.interpreter, script)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), "HOME="+dir, "MPLCONFIGDIR="+dir)

	stdout := &limitedBuffer{max: s.opts.maxOutput}
	stderr := &limitedBuffer{max: 64 << 10}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	errText := strings.TrimSpace(stderr.buf.String())
	if stdout.overflow {
		return "", ErrOutputTooLarge
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return "", &ExecError{Err: fmt.Errorf("timed out after %s: %w", s.opts.timeout, ctx.Err()), Stderr: errText}
		}
		return "", &ExecError{Err: runErr, Stderr: errText}
	}
	return stdout.buf.String(), nil
}

// limitedBuffer keeps at most max bytes and records whether more arrived.
// Excess output is drained and dropped so the child never blocks on a full pipe.
type limitedBuffer struct {
	buf      bytes.Buffer
	max      int64
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(b.buf.Len())
	if int64(len(p)) > room {
		b.overflow = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}
