package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/obsidianware/pluginwatch/internal/logging"
)

// Copy copies the named files from srcDir into destDir, creating destDir and
// any parents first. The caller is expected to have verified the build
// already; Copy does not re-check it.
//
// A file missing from srcDir or failing to copy is logged as a warning and
// skipped; the remaining files are still copied. The returned slice holds
// the names actually copied, in order — callers treat an empty slice as an
// overall copy failure.
func Copy(ctx context.Context, names []string, srcDir, destDir string) ([]string, error) {
	logger := logging.FromContext(ctx)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination %s: %w", destDir, err)
	}

	copied := make([]string, 0, len(names))

	for _, name := range names {
		src := filepath.Join(srcDir, name)

		if _, err := os.Stat(src); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("artifact missing, skipping", slog.String("file", name))
			} else {
				logger.Warn("artifact not readable, skipping",
					slog.String("file", name), slog.String("error", err.Error()))
			}

			continue
		}

		if err := copyFile(src, filepath.Join(destDir, name)); err != nil {
			logger.Warn("artifact copy failed",
				slog.String("file", name), slog.String("error", err.Error()))

			continue
		}

		copied = append(copied, name)
	}

	return copied, nil
}

// copyFile copies src to dst (overwriting dst) and preserves the source
// modification time on the destination.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src) //nolint:gosec // Paths are derived from the artifact set
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst) //nolint:gosec // Destination inside the vault plugin dir
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
