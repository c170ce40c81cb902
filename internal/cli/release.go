package cli

import (
	"github.com/spf13/cobra"

	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/logging"
	"github.com/obsidianware/pluginwatch/internal/release"
)

type releaseOptions struct {
	notes    string
	skipPush bool
}

func newReleaseCommand() *cobra.Command {
	opts := &releaseOptions{}

	cmd := &cobra.Command{
		Use:   "release [major|minor|patch]",
		Short: "Bump, build, and publish a GitHub release",
		Long: `Release runs the full publish workflow: verify the GitHub CLI is
installed and authenticated, refuse to run on a dirty worktree, bump
the version files (default: minor), rebuild the plugin, create a
GitHub release tagged with the bare version, upload main.js,
styles.css, and manifest.json as assets, and commit the bumped
version files back.

Failed asset uploads and a failed commit or push only warn: by that
point the release already exists.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"major", "minor", "patch"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelease(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.notes, "notes", "", "release notes (default: \"Release <version>\")")
	f.BoolVar(&opts.skipPush, "skip-push", false, "commit the version files but do not push")

	return cmd
}

func runRelease(cmd *cobra.Command, args []string, opts *releaseOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	inc, err := release.ParseIncrement(name)
	if err != nil {
		return err
	}

	pipeline, err := config.LoadPipeline(cfg.ConfigFile)
	if err != nil {
		return err
	}

	timings, err := pipeline.Resolve()
	if err != nil {
		return err
	}

	return release.Run(ctx, release.Options{
		Dir:          cfg.PluginDir,
		Increment:    inc,
		BuildCommand: pipeline.EffectiveBuildCommand(),
		BuildTimeout: timings.BuildTimeout,
		Notes:        opts.notes,
		SkipPush:     opts.skipPush,
		Logger:       logging.FromContext(ctx),
		Out:          cmd.ErrOrStderr(),
	})
}
