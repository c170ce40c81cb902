package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/release"
)

func newBumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bump [major|minor|patch]",
		Short: "Bump the plugin version across its version files",
		Long: `Bump increments the plugin version in manifest.json, package.json,
and versions.json together, keeping the three files consistent.

The current version is read from manifest.json and incremented by the
given component (default: minor). versions.json gains an entry mapping
the new version to the manifest's minAppVersion. All three files must
exist; nothing is written unless all of them parse.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"major", "minor", "patch"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBump(cmd, args)
		},
	}

	return cmd
}

func runBump(cmd *cobra.Command, args []string) error {
	cfg := config.FromContext(cmd.Context())

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	inc, err := release.ParseIncrement(name)
	if err != nil {
		return err
	}

	res, err := release.Bump(cfg.PluginDir, inc)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "bumped version %s → %s (%s)\n", res.Previous, res.Version, inc)

	return nil
}
