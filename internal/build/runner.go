// Package build invokes the external build tool: synchronous one-shot
// builds with a timeout, and the long-lived dev watch process.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// launchFailureExitCode is the synthetic exit code reported when the build
// command never produced a process exit status (binary missing, permission
// denied, killed before exec).
const launchFailureExitCode = -1

// Outcome captures the result of one synchronous build invocation.
// It is created fresh per invocation and never mutated afterwards.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Succeeded reports whether the build finished in time with exit code zero.
func (o Outcome) Succeeded() bool {
	return !o.TimedOut && o.ExitCode == 0
}

// StderrExcerpt returns the last few lines of captured stderr for log
// messages, or the stdout tail when stderr is empty.
func (o Outcome) StderrExcerpt() string {
	text := strings.TrimSpace(o.Stderr)
	if text == "" {
		text = strings.TrimSpace(o.Stdout)
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}

	return strings.Join(lines, "\n")
}

// Run executes argv synchronously in dir, waiting at most timeout.
//
// Timeout expiry is reported via Outcome.TimedOut with whatever output was
// captured up to that point; it is not an error. A command that could not be
// launched at all yields a synthetic exit code with the launch error appended
// to the captured stderr. Run never retries.
func Run(ctx context.Context, dir string, timeout time.Duration, argv []string) Outcome {
	if len(argv) == 0 {
		return Outcome{
			ExitCode: launchFailureExitCode,
			Stderr:   "empty build command",
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec // Build command comes from config
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	out := Outcome{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError

	switch {
	case err == nil:
		out.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.TimedOut = true
		out.ExitCode = launchFailureExitCode
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		// The command never ran: surface the launch error on stderr.
		out.ExitCode = launchFailureExitCode
		if out.Stderr != "" && !strings.HasSuffix(out.Stderr, "\n") {
			out.Stderr += "\n"
		}

		out.Stderr += fmt.Sprintf("launching %s: %v", argv[0], err)
	}

	return out
}
