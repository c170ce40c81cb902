// Package pluginwatch provides a public Go API for the Obsidian plugin
// development pipeline: build the plugin, verify the output, and deploy
// the artifacts into a vault — once, or continuously on file changes.
//
// This package exposes the same pipeline the CLI drives, allowing
// programmatic use without the binary.
//
// Basic usage (one build-and-deploy pass):
//
//	result, err := pluginwatch.Run(ctx, "path/to/plugin",
//	    pluginwatch.WithVaultPath("/home/me/vault"),
//	    pluginwatch.WithMode(pluginwatch.ModeBuild),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("deployed to", result.DestDir)
//
// Watch mode blocks until the context is cancelled:
//
//	_, err := pluginwatch.Run(ctx, "path/to/plugin",
//	    pluginwatch.WithVaultPath("/home/me/vault"),
//	)
package pluginwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/watch"
)

// Mode selects how Run drives the pipeline.
type Mode string

const (
	// ModeWatch rebuilds and redeploys on every relevant source change
	// until the context is cancelled.
	ModeWatch Mode = "watch"

	// ModeBuild performs a single build-verify-deploy pass.
	ModeBuild Mode = "build"
)

// ParseMode converts a mode name into a Mode. An empty name selects
// ModeWatch.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case "":
		return ModeWatch, nil
	case ModeWatch, ModeBuild:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected %q or %q)", name, ModeWatch, ModeBuild)
	}
}

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures the pipeline.
// Use the With* functions to create Options.
type Option func(*options)

// options holds the internal configuration for the pipeline.
type options struct {
	vaultPath    string
	mode         Mode
	configFile   string
	devCommand   []string
	buildCommand []string
	logger       *slog.Logger
	out          io.Writer
}

// --- Deployment target ---

// WithVaultPath sets the Obsidian vault root the plugin deploys into.
// When unset, the OBSIDIAN_VAULT_PATH environment variable is used.
func WithVaultPath(path string) Option { return func(o *options) { o.vaultPath = path } }

// --- Pipeline behavior ---

// WithMode selects watch or one-shot build mode (default: ModeWatch).
func WithMode(m Mode) Option { return func(o *options) { o.mode = m } }

// WithConfigFile loads the pipeline section (commands, timeouts,
// cooldowns, filter tuning) from a .pluginwatch.yaml file.
func WithConfigFile(path string) Option { return func(o *options) { o.configFile = path } }

// WithDevCommand overrides the long-lived watch build command
// (default: "pnpm run dev").
func WithDevCommand(argv ...string) Option { return func(o *options) { o.devCommand = argv } }

// WithBuildCommand overrides the one-shot build command
// (default: "pnpm run build").
func WithBuildCommand(argv ...string) Option { return func(o *options) { o.buildCommand = argv } }

// --- Output ---

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithOutput sets the writer for user-facing progress messages
// (default: discard).
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// Result describes a completed pipeline run.
type Result struct {
	// PluginID is the plugin identifier from the manifest.
	PluginID string

	// PluginName is the display name from the manifest.
	PluginName string

	// DestDir is the vault directory artifacts were deployed into.
	DestDir string
}

// Run executes the pipeline for the plugin project at pluginDir.
//
// In ModeBuild it returns after one build-and-deploy pass. In ModeWatch
// it blocks, rebuilding on changes, until ctx is cancelled or the
// process receives SIGINT/SIGTERM; a clean shutdown returns a nil error.
func Run(ctx context.Context, pluginDir string, opts ...Option) (*Result, error) {
	if pluginDir == "" {
		return nil, errors.New("plugin directory must not be empty")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	o.applyDefaults()

	if o.vaultPath == "" {
		return nil, errors.New("vault path not set: use WithVaultPath or OBSIDIAN_VAULT_PATH")
	}

	var pipeline config.Pipeline

	if o.configFile != "" {
		loaded, err := config.LoadPipeline(o.configFile)
		if err != nil {
			return nil, err
		}

		pipeline = *loaded
	}

	if len(o.devCommand) > 0 {
		pipeline.DevCommand = o.devCommand
	}

	if len(o.buildCommand) > 0 {
		pipeline.BuildCommand = o.buildCommand
	}

	session, err := watch.NewSession(watch.Options{
		PluginDir: pluginDir,
		VaultRoot: o.vaultPath,
		Pipeline:  pipeline,
		Logger:    o.logger,
		Out:       o.out,
	})
	if err != nil {
		return nil, err
	}

	switch o.mode {
	case ModeBuild:
		err = session.RunOnce(ctx)
	case ModeWatch:
		err = session.Run(ctx)
	default:
		return nil, fmt.Errorf("unknown mode %q", o.mode)
	}

	if err != nil {
		return nil, err
	}

	desc := session.Descriptor()

	return &Result{
		PluginID:   desc.ID,
		PluginName: desc.Name,
		DestDir:    session.DestDir(),
	}, nil
}

// applyDefaults sets zero-value fields to sensible defaults.
func (o *options) applyDefaults() {
	if o.mode == "" {
		o.mode = ModeWatch
	}

	if o.vaultPath == "" {
		o.vaultPath = os.Getenv("OBSIDIAN_VAULT_PATH")
	}

	if o.logger == nil {
		o.logger = discardLogger()
	}

	if o.out == nil {
		o.out = io.Discard
	}
}
