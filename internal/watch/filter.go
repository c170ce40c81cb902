package watch

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/obsidianware/pluginwatch/internal/artifact"
)

// defaultExtensions lists the source and config file extensions that may
// trigger a rebuild.
var defaultExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".json", ".css"}

// defaultRootFiles lists config files watched outside the source subtree.
var defaultRootFiles = []string{"package.json", "tsconfig.json", "esbuild.config.mjs"}

// Filter classifies file change paths as rebuild triggers or noise.
type Filter struct {
	sourceDir string
	exts      map[string]struct{}
	rootFiles map[string]struct{}
}

// NewFilter builds a filter rooted at the plugin directory. sourceDir is
// relative to root; extraExts and extraRootFiles widen the built-in
// allow-lists.
func NewFilter(root, sourceDir string, extraExts, extraRootFiles []string) *Filter {
	f := &Filter{
		sourceDir: filepath.Join(root, sourceDir),
		exts:      make(map[string]struct{}, len(defaultExtensions)+len(extraExts)),
		rootFiles: make(map[string]struct{}, len(defaultRootFiles)+len(extraRootFiles)),
	}

	for _, ext := range defaultExtensions {
		f.exts[ext] = struct{}{}
	}

	for _, ext := range extraExts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		f.exts[ext] = struct{}{}
	}

	for _, name := range defaultRootFiles {
		f.rootFiles[name] = struct{}{}
	}

	for _, name := range extraRootFiles {
		f.rootFiles[name] = struct{}{}
	}

	return f
}

// Relevant reports whether a change to path should trigger a rebuild.
// The build's own output is rejected first: copying or rebuilding touches
// it, and reacting to that would loop forever. Hidden files, dependency
// caches, and unknown extensions are noise; what remains must live in the
// source subtree or be one of the known config files.
func (f *Filter) Relevant(path string) bool {
	name := filepath.Base(path)

	if name == artifact.PrimaryOutput {
		return false
	}

	if strings.HasPrefix(name, ".") {
		return false
	}

	if underNodeModules(path) {
		return false
	}

	if _, ok := f.exts[filepath.Ext(name)]; !ok {
		return false
	}

	if underDir(path, f.sourceDir) {
		return true
	}

	_, ok := f.rootFiles[name]

	return ok
}

// acceptedOp reports whether the event carries an op worth reacting to.
// Chmod-only events are metadata noise.
func acceptedOp(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// underNodeModules reports whether any segment of path is a dependency cache.
func underNodeModules(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "node_modules" {
			return true
		}
	}

	return false
}

// underDir reports whether path lies inside dir.
func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
