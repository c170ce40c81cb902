// Package release publishes plugin versions: it bumps the version files,
// rebuilds, creates a GitHub release with the plugin artifacts attached,
// and commits the bumped files back to the repository.
package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/obsidianware/pluginwatch/internal/artifact"
	"github.com/obsidianware/pluginwatch/internal/build"
	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/manifest"
)

const (
	preflightTimeout = 5 * time.Second
	ghTimeout        = 60 * time.Second
)

// Sentinel errors returned by Run before anything is published.
var (
	ErrGHUnavailable = errors.New("github cli (gh) is not installed or not authenticated")
	ErrDirtyWorktree = errors.New("repository has uncommitted changes")
)

// Options configures a release run.
type Options struct {
	// Dir is the plugin project root and git repository.
	Dir string

	// Increment selects which version component to bump.
	Increment Increment

	// BuildCommand rebuilds the plugin before uploading.
	BuildCommand []string

	// BuildTimeout bounds the build step.
	BuildTimeout time.Duration

	// Notes overrides the generated release notes.
	Notes string

	// SkipPush commits the version files but leaves pushing to the caller.
	SkipPush bool

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing progress messages.
	Out io.Writer
}

// DefaultOptions returns sensible default release options.
func DefaultOptions() Options {
	return Options{
		Dir:          ".",
		Increment:    IncrementMinor,
		BuildCommand: config.DefaultBuildCommand(),
		BuildTimeout: config.DefaultBuildTimeout,
		Logger:       slog.Default(),
		Out:          os.Stderr,
	}
}

// Run publishes a release. The preflight checks, version bump, build,
// and release creation are fatal when they fail; asset uploads and the
// version-file commit are warnings, since by then the release exists.
func Run(ctx context.Context, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if err := checkGH(ctx, opts.Dir); err != nil {
		return err
	}

	clean, err := IsClean(opts.Dir)
	if err != nil {
		return fmt.Errorf("checking repository status: %w", err)
	}

	if !clean {
		return ErrDirtyWorktree
	}

	res, err := Bump(opts.Dir, opts.Increment)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(opts.Out, "bumped version %s → %s (%s)\n", res.Previous, res.Version, opts.Increment)

	outcome := build.Run(ctx, opts.Dir, opts.BuildTimeout, opts.BuildCommand)
	if !outcome.Succeeded() {
		return fmt.Errorf("build failed (exit %d): %s", outcome.ExitCode, outcome.StderrExcerpt())
	}

	_, _ = fmt.Fprintln(opts.Out, "build completed")

	var missing []string

	for _, name := range artifact.Files() {
		if _, statErr := os.Stat(filepath.Join(opts.Dir, name)); statErr != nil {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing release artifacts: %s", strings.Join(missing, ", "))
	}

	// Obsidian release tags are the bare version, no v prefix.
	tag := res.Version

	if err := createRelease(ctx, opts, tag); err != nil {
		return err
	}

	uploadAssets(ctx, opts, tag)
	commitAndPush(ctx, opts, res.Version)

	if remote := RemoteURL(opts.Dir); remote != "" {
		_, _ = fmt.Fprintf(opts.Out, "release %s published: %s/releases/tag/%s\n", tag, remote, tag)
	} else {
		_, _ = fmt.Fprintf(opts.Out, "release %s published\n", tag)
	}

	return nil
}

// checkGH verifies the GitHub CLI is present and authenticated.
func checkGH(ctx context.Context, dir string) error {
	if out := build.Run(ctx, dir, preflightTimeout, []string{"gh", "--version"}); !out.Succeeded() {
		return ErrGHUnavailable
	}

	if out := build.Run(ctx, dir, preflightTimeout, []string{"gh", "auth", "status"}); !out.Succeeded() {
		return ErrGHUnavailable
	}

	return nil
}

// createRelease creates the GitHub release, tolerating one that already
// exists so its assets can still be refreshed.
func createRelease(ctx context.Context, opts Options, tag string) error {
	notes := opts.Notes
	if notes == "" {
		notes = "Release " + tag
	}

	out := build.Run(ctx, opts.Dir, ghTimeout,
		[]string{"gh", "release", "create", tag, "--notes", notes})
	if out.Succeeded() {
		_, _ = fmt.Fprintf(opts.Out, "created release %s\n", tag)
		return nil
	}

	if strings.Contains(strings.ToLower(out.Stderr), "already exists") {
		_, _ = fmt.Fprintf(opts.Out, "release %s already exists, refreshing assets\n", tag)
		return nil
	}

	return fmt.Errorf("creating release %s: %s", tag, out.StderrExcerpt())
}

// uploadAssets uploads the artifact set; individual failures are warnings.
func uploadAssets(ctx context.Context, opts Options, tag string) {
	for _, name := range artifact.Files() {
		out := build.Run(ctx, opts.Dir, ghTimeout,
			[]string{"gh", "release", "upload", tag, filepath.Join(opts.Dir, name), "--clobber"})
		if !out.Succeeded() {
			opts.Logger.Warn("asset upload failed",
				slog.String("file", name), slog.String("stderr", out.StderrExcerpt()))

			continue
		}

		_, _ = fmt.Fprintf(opts.Out, "uploaded %s\n", name)
	}
}

// commitAndPush records the bumped version files. Failures never fail
// the release; the artifacts are already published.
func commitAndPush(ctx context.Context, opts Options, version string) {
	files := []string{manifest.FileName, packageFile, versionsFile}

	if err := CommitFiles(opts.Dir, "chore: release "+version, files); err != nil {
		opts.Logger.Warn("committing version files", slog.String("error", err.Error()))
		return
	}

	_, _ = fmt.Fprintln(opts.Out, "committed version files")

	if opts.SkipPush {
		return
	}

	if err := Push(ctx, opts.Dir); err != nil {
		opts.Logger.Warn("pushing release commit", slog.String("error", err.Error()))
		return
	}

	_, _ = fmt.Fprintln(opts.Out, "pushed to origin")
}
