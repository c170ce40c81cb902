package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/obsidianware/pluginwatch/internal/artifact"
	"github.com/obsidianware/pluginwatch/internal/build"
	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/logging"
	"github.com/obsidianware/pluginwatch/internal/manifest"
)

// Options configures a development session.
type Options struct {
	// PluginDir is the plugin project root; builds run with this as their
	// working directory.
	PluginDir string

	// VaultRoot is the Obsidian vault the plugin deploys into.
	VaultRoot string

	// Pipeline carries build commands, timings, and filter tuning.
	Pipeline config.Pipeline

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default session options.
func DefaultOptions() Options {
	return Options{
		PluginDir: ".",
		Logger:    slog.Default(),
		Out:       os.Stderr,
	}
}

// Session owns the state of one development run: the loaded plugin
// descriptor, the debounce gates, the rebuild-in-progress flag, and the
// background dev process handle.
type Session struct {
	opts    Options
	timings *config.Timings

	desc    *manifest.Descriptor
	destDir string

	filter      *Filter
	changeGate  *Gate
	rebuildGate *Gate

	// building guards against overlapping rebuilds: events arriving while
	// a rebuild is in flight are dropped without touching the gates.
	building atomic.Bool

	// triggers hands accepted events to the rebuild worker. The single
	// slot means at most one rebuild can ever be queued behind the one in
	// flight.
	triggers chan string

	dev *build.DevProcess
}

// NewSession loads the plugin descriptor and prepares a session. A
// missing or malformed manifest is fatal here, before any watching or
// building starts.
func NewSession(opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if opts.PluginDir == "" {
		opts.PluginDir = "."
	}

	root, err := filepath.Abs(opts.PluginDir)
	if err != nil {
		return nil, fmt.Errorf("resolving plugin directory: %w", err)
	}

	opts.PluginDir = root

	timings, err := opts.Pipeline.Resolve()
	if err != nil {
		return nil, err
	}

	desc, err := manifest.Load(filepath.Join(root, manifest.FileName), opts.VaultRoot)
	if err != nil {
		return nil, err
	}

	return &Session{
		opts:    opts,
		timings: timings,
		desc:    desc,
		destDir: desc.DestDir,
		filter: NewFilter(root, opts.Pipeline.EffectiveSourceDir(),
			opts.Pipeline.ExtraExtensions, opts.Pipeline.ExtraRootFiles),
		changeGate:  NewGate(timings.ChangeCooldown),
		rebuildGate: NewGate(timings.RebuildCooldown),
		triggers:    make(chan string, 1),
	}, nil
}

// Descriptor returns the loaded plugin descriptor.
func (s *Session) Descriptor() *manifest.Descriptor {
	return s.desc
}

// DestDir returns the resolved deployment directory inside the vault.
func (s *Session) DestDir() string {
	return s.destDir
}

// Run starts the background dev process and the file watcher and blocks
// until the context is cancelled or a SIGINT/SIGTERM signal arrives.
// Rebuild failures are logged and the session keeps watching; only
// startup failures are returned.
func (s *Session) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.destDir, 0o755); err != nil {
		return fmt.Errorf("creating plugin directory %s: %w", s.destDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, s.opts.PluginDir); err != nil {
		return fmt.Errorf("watching plugin directory: %w", err)
	}

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(s.opts.Out, "plugin %s (id=%s) → %s\n", s.desc.Name, s.desc.ID, s.destDir)

	dev, err := build.StartDev(s.opts.PluginDir, s.opts.Pipeline.EffectiveDevCommand())
	if err != nil {
		return fmt.Errorf("starting dev process: %w", err)
	}

	s.dev = dev

	defer s.stopDev()

	_, _ = fmt.Fprintf(s.opts.Out, "dev process started (pid %d), waiting %s for the initial build\n",
		dev.PID(), s.timings.StartupGrace)

	if !sleepCtx(sigCtx, s.timings.StartupGrace) {
		return nil
	}

	// The initial pass is lenient: the developer may still be mid-edit, so
	// a missing or empty artifact is only a warning.
	if !s.syncArtifacts(sigCtx, true) {
		_, _ = fmt.Fprintln(s.opts.Out, "initial copy incomplete; the plugin may have build issues")
	}

	workerCtx, stopWorker := context.WithCancel(sigCtx)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		s.rebuildLoop(workerCtx)
	}()

	// An in-flight rebuild runs to completion before the dev process is
	// stopped and the watcher closed.
	defer func() {
		stopWorker()
		wg.Wait()
	}()

	_, _ = fmt.Fprintf(s.opts.Out, "watching %s for changes\n", s.opts.PluginDir)

	for {
		select {
		case <-sigCtx.Done():
			_, _ = fmt.Fprintln(s.opts.Out, "\nshutting down")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			s.handleEvent(watcher, event)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// handleEvent filters a raw watcher event and, when it survives the
// gates, converts it into a rebuild trigger.
func (s *Session) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !acceptedOp(event) {
		return
	}

	// New directories join the watch; directory events never trigger
	// rebuilds themselves.
	if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
		if event.Has(fsnotify.Create) {
			_ = addRecursive(watcher, event.Name)
		}

		return
	}

	if !s.filter.Relevant(event.Name) {
		return
	}

	if s.building.Load() {
		s.opts.Logger.Debug("rebuild in progress, ignoring change",
			slog.String("path", event.Name))
		return
	}

	if !s.changeGate.Accept() || !s.rebuildGate.Accept() {
		s.opts.Logger.Debug("change debounced", slog.String("path", event.Name))
		return
	}

	_, _ = fmt.Fprintf(s.opts.Out, "[%s] change detected: %s\n",
		time.Now().Format("15:04:05"), filepath.Base(event.Name))

	select {
	case s.triggers <- event.Name:
	default:
	}
}

// rebuildLoop is the rebuild worker. It drains triggers one at a time
// until the context is cancelled; an in-flight rebuild always runs to
// completion.
func (s *Session) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-s.triggers:
			s.rebuild(ctx, path)
		}
	}
}

// rebuild runs one settle-build-verify-copy cycle for a trigger.
func (s *Session) rebuild(ctx context.Context, path string) {
	s.building.Store(true)
	defer s.building.Store(false)

	// Let the editor finish writing before invoking the build.
	if !sleepCtx(ctx, s.timings.SettleDelay) {
		return
	}

	logger := s.opts.Logger.With(
		slog.String("job", uuid.NewString()),
		slog.String("trigger", filepath.Base(path)))

	logger.Debug("rebuild started")

	// The build is never cancelled mid-flight: it runs to completion or
	// to its timeout, even when the session is shutting down.
	outcome := build.Run(context.WithoutCancel(ctx), s.opts.PluginDir,
		s.timings.RebuildTimeout, s.opts.Pipeline.EffectiveBuildCommand())

	if !outcome.Succeeded() {
		s.reportBuildFailure(logger, outcome, s.timings.RebuildTimeout)
		return
	}

	if !s.syncArtifacts(ctx, false) {
		return
	}

	_, _ = fmt.Fprintf(s.opts.Out, "[%s] %s updated\n",
		time.Now().Format("15:04:05"), s.desc.Name)
}

// reportBuildFailure logs a failed or timed-out build with enough of the
// build tool's own output to diagnose it.
func (s *Session) reportBuildFailure(logger *slog.Logger, outcome build.Outcome, timeout time.Duration) {
	now := time.Now().Format("15:04:05")

	if outcome.TimedOut {
		_, _ = fmt.Fprintf(s.opts.Out, "[%s] build timed out after %s\n", now, timeout)
		logger.Warn("build timed out", slog.Duration("timeout", timeout))

		return
	}

	excerpt := outcome.StderrExcerpt()
	_, _ = fmt.Fprintf(s.opts.Out, "[%s] build failed (exit %d): %s\n", now, outcome.ExitCode, excerpt)
	logger.Warn("build failed",
		slog.Int("exit_code", outcome.ExitCode),
		slog.String("stderr", excerpt))
}

// syncArtifacts verifies the primary output and copies the artifact set
// into the vault. It reports whether anything landed; failures are
// logged, never returned.
func (s *Session) syncArtifacts(ctx context.Context, initial bool) bool {
	v := artifact.Verify(filepath.Join(s.opts.PluginDir, artifact.PrimaryOutput),
		initial, s.timings.RecencyWindow)
	if !v.OK {
		if initial {
			s.opts.Logger.Warn("no usable build output yet",
				slog.String("artifact", artifact.PrimaryOutput))
		} else {
			s.opts.Logger.Warn("build output is stale or missing, skipping copy",
				slog.String("artifact", artifact.PrimaryOutput),
				slog.Time("mtime", v.ModTime))
		}

		return false
	}

	copied, err := artifact.Copy(logging.NewContext(ctx, s.opts.Logger),
		artifact.Files(), s.opts.PluginDir, s.destDir)
	if err != nil {
		s.opts.Logger.Warn("copy failed", slog.String("error", err.Error()))
		return false
	}

	if len(copied) == 0 {
		s.opts.Logger.Warn("no artifacts found to copy")
		return false
	}

	_, _ = fmt.Fprintf(s.opts.Out, "[%s] copied %s\n",
		time.Now().Format("15:04:05"), strings.Join(copied, ", "))

	return true
}

// stopDev terminates the background dev process, escalating to a forced
// kill when it ignores the grace period.
func (s *Session) stopDev() {
	if s.dev == nil {
		return
	}

	killed, err := s.dev.Stop(s.timings.ShutdownGrace)

	switch {
	case err != nil:
		s.opts.Logger.Warn("stopping dev process", slog.String("error", err.Error()))
	case killed:
		_, _ = fmt.Fprintln(s.opts.Out, "dev process force-killed")
	default:
		_, _ = fmt.Fprintln(s.opts.Out, "dev process stopped")
	}
}

// RunOnce builds the plugin once, verifies the output, and copies the
// artifact set into the vault. Unlike Run, every failure is returned:
// the outcome of the one-shot build is the outcome of the session.
func (s *Session) RunOnce(ctx context.Context) error {
	if err := os.MkdirAll(s.destDir, 0o755); err != nil {
		return fmt.Errorf("creating plugin directory %s: %w", s.destDir, err)
	}

	_, _ = fmt.Fprintf(s.opts.Out, "building %s (id=%s)\n", s.desc.Name, s.desc.ID)

	outcome := build.Run(ctx, s.opts.PluginDir, s.timings.BuildTimeout,
		s.opts.Pipeline.EffectiveBuildCommand())

	if outcome.TimedOut {
		return fmt.Errorf("build timed out after %s", s.timings.BuildTimeout)
	}

	if !outcome.Succeeded() {
		return fmt.Errorf("build failed (exit %d): %s", outcome.ExitCode, outcome.StderrExcerpt())
	}

	if !s.syncArtifacts(ctx, true) {
		return errors.New("build produced no deployable artifacts")
	}

	_, _ = fmt.Fprintf(s.opts.Out, "deployed to %s\n", s.destDir)

	return nil
}

// sleepCtx sleeps for d or until ctx is cancelled; it reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Skip hidden directories (e.g. .git, .obsidian) and dependency caches.
			if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
				return filepath.SkipDir
			}

			return watcher.Add(path)
		}

		return nil
	})
}
