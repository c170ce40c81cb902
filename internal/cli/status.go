package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/obsidianware/pluginwatch/internal/artifact"
	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/manifest"
)

type statusOptions struct {
	withDiff bool
}

func newStatusCommand() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Compare built artifacts against the deployed copies",
		Long: `Status reports, for each deployable artifact (main.js, styles.css,
manifest.json), whether the copy inside the vault matches the build
output in the project: in sync, stale, not deployed, or not built.

With --diff, drifted text files additionally print a unified diff of
deployed versus built content.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.withDiff, "diff", false, "show unified diffs for stale files")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *statusOptions) error {
	cfg := config.FromContext(cmd.Context())

	if cfg.VaultPath == "" {
		return errors.New("vault path not set: use --vault-path or OBSIDIAN_VAULT_PATH")
	}

	desc, err := manifest.Load(filepath.Join(cfg.PluginDir, manifest.FileName), cfg.VaultPath)
	if err != nil {
		return err
	}

	statuses, err := artifact.Status(artifact.Files(), cfg.PluginDir, desc.DestDir, opts.withDiff)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(w, "--- Deploy Status ---\n")
	_, _ = fmt.Fprintf(w, "Plugin: %s (id=%s)\n", desc.Name, desc.ID)
	_, _ = fmt.Fprintf(w, "Target: %s\n", desc.DestDir)

	for _, st := range statuses {
		_, _ = fmt.Fprintf(w, "  %-14s %s\n", st.Name, st.State)
	}

	_, _ = fmt.Fprintf(w, "---------------------\n")

	if !opts.withDiff {
		return nil
	}

	for _, st := range statuses {
		if st.Diff == "" {
			continue
		}

		_, _ = fmt.Fprintf(w, "\n%s:\n", st.Name)
		artifact.WriteDiff(w, st.Diff, !cfg.NoColor)
	}

	return nil
}
