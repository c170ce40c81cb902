package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline defaults. The zero value of every Pipeline field falls back to
// the matching default here.
const (
	DefaultBuildTimeout    = 60 * time.Second
	DefaultRebuildTimeout  = 30 * time.Second
	DefaultChangeCooldown  = 2 * time.Second
	DefaultRebuildCooldown = 1 * time.Second
	DefaultSettleDelay     = 1 * time.Second
	DefaultStartupGrace    = 3 * time.Second
	DefaultShutdownGrace   = 5 * time.Second
	DefaultRecencyWindow   = 30 * time.Second

	// DefaultSourceDir is the subtree whose files trigger rebuilds.
	DefaultSourceDir = "src"
)

// DefaultDevCommand returns the command used for the long-lived watch build.
func DefaultDevCommand() []string { return []string{"pnpm", "run", "dev"} }

// DefaultBuildCommand returns the command used for one-shot builds.
func DefaultBuildCommand() []string { return []string{"pnpm", "run", "build"} }

// Pipeline holds the pipeline section of the config file. Durations are
// expressed as Go duration strings ("2s", "1500ms"); empty values fall back
// to the package defaults.
type Pipeline struct {
	// DevCommand replaces the default long-lived watch build command.
	DevCommand []string `yaml:"dev_command"`

	// BuildCommand replaces the default one-shot build command.
	BuildCommand []string `yaml:"build_command"`

	BuildTimeout    string `yaml:"build_timeout"`
	RebuildTimeout  string `yaml:"rebuild_timeout"`
	ChangeCooldown  string `yaml:"change_cooldown"`
	RebuildCooldown string `yaml:"rebuild_cooldown"`
	SettleDelay     string `yaml:"settle_delay"`
	StartupGrace    string `yaml:"startup_grace"`
	ShutdownGrace   string `yaml:"shutdown_grace"`
	RecencyWindow   string `yaml:"recency_window"`

	// SourceDir replaces the default watched source subtree.
	SourceDir string `yaml:"source_dir"`

	// ExtraExtensions are additional file extensions (with leading dot)
	// accepted by the change filter.
	ExtraExtensions []string `yaml:"extra_extensions"`

	// ExtraRootFiles are additional root-level file names accepted by the
	// change filter outside the source subtree.
	ExtraRootFiles []string `yaml:"extra_root_files"`
}

// Timings holds the resolved duration values of a Pipeline.
type Timings struct {
	BuildTimeout    time.Duration
	RebuildTimeout  time.Duration
	ChangeCooldown  time.Duration
	RebuildCooldown time.Duration
	SettleDelay     time.Duration
	StartupGrace    time.Duration
	ShutdownGrace   time.Duration
	RecencyWindow   time.Duration
}

// fileSection mirrors the top-level shape of the config file; only the
// pipeline key matters here, everything else belongs to viper.
type fileSection struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// LoadPipeline reads the pipeline section from the config file at path.
// An empty path yields a zero Pipeline, which resolves to all defaults.
func LoadPipeline(path string) (*Pipeline, error) {
	if path == "" {
		return &Pipeline{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // User-specified config file
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var section fileSection
	if err := yaml.Unmarshal(data, &section); err != nil {
		return nil, fmt.Errorf("parsing pipeline config in %q: %w", path, err)
	}

	return &section.Pipeline, nil
}

// EffectiveDevCommand returns the dev command, falling back to the default.
func (p *Pipeline) EffectiveDevCommand() []string {
	if len(p.DevCommand) > 0 {
		return p.DevCommand
	}

	return DefaultDevCommand()
}

// EffectiveBuildCommand returns the build command, falling back to the default.
func (p *Pipeline) EffectiveBuildCommand() []string {
	if len(p.BuildCommand) > 0 {
		return p.BuildCommand
	}

	return DefaultBuildCommand()
}

// EffectiveSourceDir returns the watched source subtree, falling back to the
// default.
func (p *Pipeline) EffectiveSourceDir() string {
	if p.SourceDir != "" {
		return p.SourceDir
	}

	return DefaultSourceDir
}

// Resolve parses all duration fields, substituting defaults for empty values.
// Malformed or non-positive durations are rejected.
func (p *Pipeline) Resolve() (*Timings, error) {
	t := &Timings{}

	fields := []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"build_timeout", p.BuildTimeout, DefaultBuildTimeout, &t.BuildTimeout},
		{"rebuild_timeout", p.RebuildTimeout, DefaultRebuildTimeout, &t.RebuildTimeout},
		{"change_cooldown", p.ChangeCooldown, DefaultChangeCooldown, &t.ChangeCooldown},
		{"rebuild_cooldown", p.RebuildCooldown, DefaultRebuildCooldown, &t.RebuildCooldown},
		{"settle_delay", p.SettleDelay, DefaultSettleDelay, &t.SettleDelay},
		{"startup_grace", p.StartupGrace, DefaultStartupGrace, &t.StartupGrace},
		{"shutdown_grace", p.ShutdownGrace, DefaultShutdownGrace, &t.ShutdownGrace},
		{"recency_window", p.RecencyWindow, DefaultRecencyWindow, &t.RecencyWindow},
	}

	for _, f := range fields {
		d, err := parseDuration(f.name, f.raw, f.def)
		if err != nil {
			return nil, err
		}

		*f.dst = d
	}

	return t, nil
}

// parseDuration parses raw as a duration, returning def when raw is empty.
func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, raw)
	}

	return d, nil
}
