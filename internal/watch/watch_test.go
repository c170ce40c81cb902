package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianware/pluginwatch/internal/config"
	"github.com/obsidianware/pluginwatch/internal/manifest"
)

func writePluginManifest(t *testing.T, dir, id string) {
	t.Helper()

	data := fmt.Sprintf(`{"id": %q, "name": "Test Plugin", "version": "1.0.0"}`, id)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(data), 0o644))
}

// testPipeline returns pipeline settings short enough for tests.
func testPipeline() config.Pipeline {
	return config.Pipeline{
		DevCommand:      []string{"sleep", "60"},
		BuildCommand:    []string{"sh", "-c", "echo built > main.js"},
		StartupGrace:    "50ms",
		SettleDelay:     "25ms",
		ChangeCooldown:  "50ms",
		RebuildCooldown: "25ms",
		ShutdownGrace:   "500ms",
	}
}

// ---------------------------------------------------------------------------
// Gate
// ---------------------------------------------------------------------------

func TestGate_FirstEventAccepted(t *testing.T) {
	g := NewGate(2 * time.Second)
	assert.True(t, g.acceptAt(time.Now()))
}

func TestGate_RejectsWithinCooldown(t *testing.T) {
	g := NewGate(2 * time.Second)
	base := time.Now()

	require.True(t, g.acceptAt(base))
	assert.False(t, g.acceptAt(base.Add(500*time.Millisecond)))
	assert.False(t, g.acceptAt(base.Add(2*time.Second)), "exactly the cooldown is still too soon")
}

func TestGate_AcceptsAfterCooldown(t *testing.T) {
	g := NewGate(2 * time.Second)
	base := time.Now()

	require.True(t, g.acceptAt(base))
	assert.True(t, g.acceptAt(base.Add(2*time.Second+time.Millisecond)))
}

func TestGate_RejectionDoesNotExtendCooldown(t *testing.T) {
	g := NewGate(2 * time.Second)
	base := time.Now()

	require.True(t, g.acceptAt(base))
	require.False(t, g.acceptAt(base.Add(1900*time.Millisecond)))

	// Had the rejection advanced the gate, this would still be blocked.
	assert.True(t, g.acceptAt(base.Add(2100*time.Millisecond)))
}

func TestGate_BurstCollapsesToOne(t *testing.T) {
	g := NewGate(2 * time.Second)
	base := time.Now()

	accepted := 0

	for i := 0; i < 10; i++ {
		if g.acceptAt(base.Add(time.Duration(i) * 100 * time.Millisecond)) {
			accepted++
		}
	}

	assert.Equal(t, 1, accepted)
}

// ---------------------------------------------------------------------------
// Filter
// ---------------------------------------------------------------------------

func TestFilter_Relevant(t *testing.T) {
	f := NewFilter("/plugin", "src", nil, nil)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"source file", "/plugin/src/main.ts", true},
		{"nested source file", "/plugin/src/ui/modal.tsx", true},
		{"source stylesheet", "/plugin/src/styles.css", true},
		{"build output", "/plugin/main.js", false},
		{"build output inside source tree", "/plugin/src/main.js", false},
		{"hidden file", "/plugin/src/.main.ts.swp", false},
		{"dependency cache", "/plugin/node_modules/obsidian/index.js", false},
		{"markdown outside allow-list", "/plugin/src/notes.md", false},
		{"package manifest", "/plugin/package.json", true},
		{"typescript config", "/plugin/tsconfig.json", true},
		{"esbuild config", "/plugin/esbuild.config.mjs", true},
		{"root stylesheet outside source tree", "/plugin/styles.css", false},
		{"unrelated json at root", "/plugin/data.json", false},
		{"nested package manifest", "/plugin/tools/package.json", true},
		{"source-like file outside scope", "/plugin/scratch/try.ts", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Relevant(tt.path))
		})
	}
}

func TestFilter_ExtraAllowances(t *testing.T) {
	f := NewFilter("/plugin", "src", []string{"svelte"}, []string{"version-bump.mjs"})

	assert.True(t, f.Relevant("/plugin/src/App.svelte"), "extra extension accepted (dot added)")
	assert.True(t, f.Relevant("/plugin/version-bump.mjs"), "extra root file accepted")
	assert.False(t, f.Relevant("/plugin/App.svelte"), "extra extension still bound to the source tree")
}

func TestFilter_CustomSourceDir(t *testing.T) {
	f := NewFilter("/plugin", "lib", nil, nil)

	assert.True(t, f.Relevant("/plugin/lib/main.ts"))
	assert.False(t, f.Relevant("/plugin/src/main.ts"))
}

func TestAcceptedOp(t *testing.T) {
	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"write", fsnotify.Write, true},
		{"create", fsnotify.Create, true},
		{"remove", fsnotify.Remove, true},
		{"rename", fsnotify.Rename, true},
		{"chmod only", fsnotify.Chmod, false},
		{"zero op", 0, false},
		{"write and chmod", fsnotify.Write | fsnotify.Chmod, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptedOp(fsnotify.Event{Name: "src/main.ts", Op: tt.op}))
		})
	}
}

// ---------------------------------------------------------------------------
// addRecursive
// ---------------------------------------------------------------------------

func TestAddRecursive_SkipsHiddenAndNodeModules(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "ui"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "obsidian"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addRecursive(watcher, dir))

	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir], "root should be watched")
	assert.True(t, watched[filepath.Join(dir, "src")], "src should be watched")
	assert.True(t, watched[filepath.Join(dir, "src", "ui")], "src/ui should be watched")
	assert.False(t, watched[filepath.Join(dir, "node_modules")], "node_modules should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, "node_modules", "obsidian")], "node_modules/obsidian should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, ".git")], ".git should NOT be watched")
}

func TestAddRecursive_NonExistentDir(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	assert.Error(t, addRecursive(watcher, "/nonexistent/dir/12345"))
}

// ---------------------------------------------------------------------------
// NewSession
// ---------------------------------------------------------------------------

func TestNewSession_LoadsDescriptor(t *testing.T) {
	plugin := t.TempDir()
	vault := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = vault
	opts.Out = io.Discard

	s, err := NewSession(opts)
	require.NoError(t, err)

	assert.Equal(t, "my-plugin", s.Descriptor().ID)
	assert.Equal(t, "Test Plugin", s.Descriptor().Name)
	assert.Equal(t, filepath.Join(vault, ".obsidian", "plugins", "my-plugin"), s.DestDir())
}

func TestNewSession_MissingManifest(t *testing.T) {
	opts := DefaultOptions()
	opts.PluginDir = t.TempDir()
	opts.VaultRoot = t.TempDir()
	opts.Out = io.Discard

	_, err := NewSession(opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrMissing)
}

func TestNewSession_InvalidTimings(t *testing.T) {
	plugin := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = t.TempDir()
	opts.Out = io.Discard
	opts.Pipeline.ChangeCooldown = "soon"

	_, err := NewSession(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "change_cooldown")
}

// ---------------------------------------------------------------------------
// RunOnce
// ---------------------------------------------------------------------------

func TestRunOnce_BuildAndDeploy(t *testing.T) {
	plugin := t.TempDir()
	vault := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = vault
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()
	opts.Pipeline.BuildCommand = []string{"sh", "-c",
		"printf 'console.log(1);' > main.js && printf 'body {}' > styles.css"}

	s, err := NewSession(opts)
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))

	dest := filepath.Join(vault, ".obsidian", "plugins", "my-plugin")

	mainJS, err := os.ReadFile(filepath.Join(dest, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1);", string(mainJS))

	_, err = os.Stat(filepath.Join(dest, "styles.css"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dest, "manifest.json"))
	assert.NoError(t, err)
}

func TestRunOnce_BuildFailure(t *testing.T) {
	plugin := t.TempDir()
	vault := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = vault
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()
	opts.Pipeline.BuildCommand = []string{"sh", "-c", "echo 'Parse error' >&2; exit 1"}

	s, err := NewSession(opts)
	require.NoError(t, err)

	err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Parse error")
	assert.Contains(t, err.Error(), "exit 1")

	_, statErr := os.Stat(filepath.Join(vault, ".obsidian", "plugins", "my-plugin", "main.js"))
	assert.Error(t, statErr, "nothing should be copied after a failed build")
}

func TestRunOnce_NoOutputProduced(t *testing.T) {
	plugin := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = t.TempDir()
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()
	opts.Pipeline.BuildCommand = []string{"true"}

	s, err := NewSession(opts)
	require.NoError(t, err)

	err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no deployable artifacts")
}

func TestRunOnce_Timeout(t *testing.T) {
	plugin := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = t.TempDir()
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()
	opts.Pipeline.BuildCommand = []string{"sleep", "5"}
	opts.Pipeline.BuildTimeout = "100ms"

	s, err := NewSession(opts)
	require.NoError(t, err)

	start := time.Now()
	err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunOnce_Idempotent(t *testing.T) {
	plugin := t.TempDir()
	vault := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = vault
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()

	s, err := NewSession(opts)
	require.NoError(t, err)

	destMain := filepath.Join(vault, ".obsidian", "plugins", "my-plugin", "main.js")

	require.NoError(t, s.RunOnce(context.Background()))
	first, err := os.ReadFile(destMain)
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	second, err := os.ReadFile(destMain)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// ---------------------------------------------------------------------------
// Run (integration)
// ---------------------------------------------------------------------------

func TestRun_GracefulShutdown(t *testing.T) {
	plugin := t.TempDir()
	vault := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")
	require.NoError(t, os.MkdirAll(filepath.Join(plugin, "src"), 0o755))

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = vault
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()

	s, err := NewSession(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	// Let startup and the initial pass complete.
	time.Sleep(300 * time.Millisecond)

	info, statErr := os.Stat(filepath.Join(vault, ".obsidian", "plugins", "my-plugin"))
	require.NoError(t, statErr, "deployment directory should be created during startup")
	assert.True(t, info.IsDir())

	cancel()

	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not shut down in time")
	}
}

func TestRun_FileChangeTriggersRebuild(t *testing.T) {
	plugin := t.TempDir()
	vault := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")
	require.NoError(t, os.MkdirAll(filepath.Join(plugin, "src"), 0o755))

	srcFile := filepath.Join(plugin, "src", "main.ts")
	require.NoError(t, os.WriteFile(srcFile, []byte("export {};"), 0o644))

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = vault
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()
	opts.Pipeline.BuildCommand = []string{"sh", "-c", "echo run >> builds.log && echo fresh > main.js"}

	s, err := NewSession(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	// Allow the watcher and the initial pass to settle.
	time.Sleep(300 * time.Millisecond)

	// Modify a source file → settle, rebuild, copy.
	require.NoError(t, os.WriteFile(srcFile, []byte("export default 1;"), 0o644))

	destMain := filepath.Join(vault, ".obsidian", "plugins", "my-plugin", "main.js")
	require.Eventually(t, func() bool {
		data, readErr := os.ReadFile(destMain)
		return readErr == nil && string(data) == "fresh\n"
	}, 3*time.Second, 50*time.Millisecond, "rebuild should copy a fresh artifact")

	_, err = os.Stat(filepath.Join(plugin, "builds.log"))
	assert.NoError(t, err, "build command should have run")

	cancel()

	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not shut down in time")
	}
}

func TestRun_IrrelevantChangeIgnored(t *testing.T) {
	plugin := t.TempDir()
	vault := t.TempDir()
	writePluginManifest(t, plugin, "my-plugin")
	require.NoError(t, os.MkdirAll(filepath.Join(plugin, "src"), 0o755))

	opts := DefaultOptions()
	opts.PluginDir = plugin
	opts.VaultRoot = vault
	opts.Out = io.Discard
	opts.Pipeline = testPipeline()
	opts.Pipeline.BuildCommand = []string{"sh", "-c", "echo run >> builds.log && echo fresh > main.js"}

	s, err := NewSession(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(300 * time.Millisecond)

	// A markdown file at the plugin root is noise.
	require.NoError(t, os.WriteFile(filepath.Join(plugin, "notes.md"), []byte("# notes"), 0o644))

	time.Sleep(500 * time.Millisecond)

	_, err = os.Stat(filepath.Join(plugin, "builds.log"))
	assert.Error(t, err, "no rebuild should run for an irrelevant file")

	cancel()

	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not shut down in time")
	}
}

// ---------------------------------------------------------------------------
// DefaultOptions
// ---------------------------------------------------------------------------

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, ".", opts.PluginDir)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}
