package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// State classifies one artifact's deployment state.
type State string

const (
	// StateInSync means the deployed copy matches the built artifact.
	StateInSync State = "in sync"

	// StateStale means the deployed copy differs from the built artifact.
	StateStale State = "stale"

	// StateNotDeployed means the artifact is built but absent from the vault.
	StateNotDeployed State = "not deployed"

	// StateNotBuilt means the artifact does not exist in the project.
	StateNotBuilt State = "not built"
)

// FileStatus describes one artifact's built-versus-deployed comparison.
type FileStatus struct {
	Name  string
	State State

	// Diff holds a unified diff (deployed → built) for drifted text files.
	// Populated only when requested.
	Diff string
}

// Status compares the built artifacts in srcDir against the deployed copies
// in destDir, in the fixed artifact order.
func Status(names []string, srcDir, destDir string, withDiff bool) ([]FileStatus, error) {
	statuses := make([]FileStatus, 0, len(names))

	for _, name := range names {
		st, err := fileStatus(name, srcDir, destDir, withDiff)
		if err != nil {
			return nil, err
		}

		statuses = append(statuses, st)
	}

	return statuses, nil
}

func fileStatus(name, srcDir, destDir string, withDiff bool) (FileStatus, error) {
	st := FileStatus{Name: name}

	built, builtErr := os.ReadFile(filepath.Join(srcDir, name))   //nolint:gosec // Fixed artifact names
	deployed, depErr := os.ReadFile(filepath.Join(destDir, name)) //nolint:gosec // Fixed artifact names

	if builtErr != nil && !errors.Is(builtErr, fs.ErrNotExist) {
		return st, fmt.Errorf("reading built %s: %w", name, builtErr)
	}

	if depErr != nil && !errors.Is(depErr, fs.ErrNotExist) {
		return st, fmt.Errorf("reading deployed %s: %w", name, depErr)
	}

	switch {
	case builtErr != nil:
		st.State = StateNotBuilt
	case depErr != nil:
		st.State = StateNotDeployed
	case bytes.Equal(built, deployed):
		st.State = StateInSync
	default:
		st.State = StateStale

		if withDiff && isText(built) && isText(deployed) {
			diff, err := unifiedDiff(string(deployed), string(built))
			if err != nil {
				return st, fmt.Errorf("diffing %s: %w", name, err)
			}

			st.Diff = diff
		}
	}

	return st, nil
}

// unifiedDiff renders a deployed → built unified diff.
func unifiedDiff(deployed, built string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        splitLines(deployed),
		B:        splitLines(built),
		FromFile: "deployed",
		ToFile:   "built",
		Context:  3,
	}

	unified, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("computing diff: %w", err)
	}

	return unified, nil
}

// isText reports whether data looks like text (no NUL byte in the first 8 KiB).
func isText(data []byte) bool {
	if len(data) > 8192 {
		data = data[:8192]
	}

	return bytes.IndexByte(data, 0) < 0
}

// WriteDiff writes a formatted diff to the given writer with optional ANSI colors.
func WriteDiff(w io.Writer, unified string, color bool) {
	for _, line := range strings.Split(unified, "\n") {
		if color {
			writeColorLine(w, line)
		} else {
			_, _ = fmt.Fprintln(w, line)
		}
	}
}

// writeColorLine writes a single diff line with ANSI color codes.
func writeColorLine(w io.Writer, line string) {
	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		bold  = "\033[1m"
		reset = "\033[0m"
	)

	switch {
	case strings.HasPrefix(line, "---"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", bold, line, reset)
	case strings.HasPrefix(line, "+++"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", bold, line, reset)
	case strings.HasPrefix(line, "@@"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", cyan, line, reset)
	case strings.HasPrefix(line, "-"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", red, line, reset)
	case strings.HasPrefix(line, "+"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", green, line, reset)
	default:
		_, _ = fmt.Fprintln(w, line)
	}
}

// splitLines splits a string into lines for diff processing.
// Each element keeps its trailing newline for difflib compatibility.
func splitLines(s string) []string {
	if s == "" {
		return []string{""}
	}

	return strings.SplitAfter(s, "\n")
}
