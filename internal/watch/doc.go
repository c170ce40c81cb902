// Package watch drives pluginwatch's live-reload development workflow.
// It monitors the plugin project for source changes, debounces rapid
// events, rebuilds through the configured build tool, and copies fresh
// artifacts into the Obsidian vault.
package watch
