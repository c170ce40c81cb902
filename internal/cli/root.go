// Package cli implements the cobra command tree for pluginwatch.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/obsidianware/pluginwatch/internal/artifact"
	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/logging"
	"github.com/obsidianware/pluginwatch/internal/manifest"
	"github.com/obsidianware/pluginwatch/internal/watch"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return 1
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached. The root command itself runs the development
// pipeline: watch mode by default, a single build-and-deploy pass with
// --mode build.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "pluginwatch",
		Short: "Build and deploy an Obsidian plugin into a vault as you edit",
		Long: `pluginwatch automates the local development loop for an Obsidian
plugin: it starts the plugin's dev build, watches the source tree,
rebuilds on changes (debounced), verifies the build output is fresh,
and copies main.js, styles.css, and manifest.json into
<vault>/.obsidian/plugins/<id>.

The vault root comes from --vault-path or the OBSIDIAN_VAULT_PATH
environment variable. Run with --mode build for a single
build-and-deploy pass instead of watching.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("mode", cfg.Mode),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd)
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .pluginwatch.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	pf.String("vault-path", "", "Obsidian vault root (default: $OBSIDIAN_VAULT_PATH)")
	pf.String("plugin-dir", ".", "plugin project root containing manifest.json")

	// Root-only flags.
	cmd.Flags().String("mode", config.ModeWatch, "pipeline mode: watch (continuous) or build (one-shot)")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	// Register subcommands.
	cmd.AddCommand(
		newVersionCommand(),
		newBumpCommand(),
		newReleaseCommand(),
		newStatusCommand(),
		newCompletionCommand(),
	)

	return cmd
}

// runPipeline drives the watch or one-shot build pipeline from the
// resolved configuration.
func runPipeline(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	if cfg.VaultPath == "" {
		return errors.New("vault path not set: use --vault-path or OBSIDIAN_VAULT_PATH")
	}

	pipeline, err := config.LoadPipeline(cfg.ConfigFile)
	if err != nil {
		return err
	}

	session, err := watch.NewSession(watch.Options{
		PluginDir: cfg.PluginDir,
		VaultRoot: cfg.VaultPath,
		Pipeline:  *pipeline,
		Logger:    logger,
		Out:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	if cfg.Mode == config.ModeBuild {
		if err := session.RunOnce(ctx); err != nil {
			return err
		}

		printBuildSummary(cmd.ErrOrStderr(), session.Descriptor(), session.DestDir())

		return nil
	}

	return session.Run(ctx)
}

// printBuildSummary prints a human-readable summary of a one-shot build.
func printBuildSummary(w io.Writer, desc *manifest.Descriptor, destDir string) {
	_, _ = fmt.Fprintf(w, "\n--- Build Summary ---\n")
	_, _ = fmt.Fprintf(w, "Plugin: %s (id=%s)\n", desc.Name, desc.ID)
	_, _ = fmt.Fprintf(w, "Target: %s\n", destDir)

	for _, name := range artifact.Files() {
		info, err := os.Stat(filepath.Join(destDir, name))
		if err != nil {
			continue
		}

		_, _ = fmt.Fprintf(w, "  %-14s %d bytes\n", name, info.Size())
	}

	_, _ = fmt.Fprintf(w, "---------------------\n")
}
