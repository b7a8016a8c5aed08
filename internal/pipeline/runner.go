package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// CommandRunner runs an external tool and returns its stdout
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is a non-zero exit from an external tool
type CommandError struct {
	Name   string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s failed: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Name, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// maxStderr bounds the stderr text carried into job error messages
const maxStderr = 600

// ExecRunner runs commands with os/exec. Commands are killed when ctx is done.
type ExecRunner struct {
	logger arbor.ILogger
}

// NewExecRunner creates a runner for real processes
func NewExecRunner(logger arbor.ILogger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if err != nil {
		// A killed process reports the signal; surface the context reason instead
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%s timed out after %s: %w", name, time.Since(start).Round(time.Second), ctxErr)
			}
			return nil, fmt.Errorf("%s interrupted: %w", name, ctxErr)
		}

		r.logger.Debug().
			Err(err).
			Str("command", name).
			Dur("duration", time.Since(start)).
			Msg("Command failed")

		return nil, &CommandError{
			Name:   name,
			Stderr: lastLines(stderr.String(), maxStderr),
			Err:    err,
		}
	}

	r.logger.Debug().
		Str("command", name).
		Int("args", len(args)).
		Dur("duration", time.Since(start)).
		Msg("Command completed")

	return stdout.Bytes(), nil
}

// lastLines keeps the tail of s, where tools print the actual error
func lastLines(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	s = s[len(s)-limit:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	return s
}
