package release

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/obsidianware/pluginwatch/internal/manifest"
)

// Version files updated by a bump, next to the plugin manifest.
const (
	packageFile  = "package.json"
	versionsFile = "versions.json"
)

// Sentinel errors returned by Bump.
var (
	ErrNoVersion       = errors.New("manifest has no version")
	ErrNoMinAppVersion = errors.New("manifest has no minAppVersion")
)

// Increment selects which semver component a bump raises.
type Increment string

const (
	IncrementMajor Increment = "major"
	IncrementMinor Increment = "minor"
	IncrementPatch Increment = "patch"
)

// ParseIncrement validates a bump type; empty defaults to minor.
func ParseIncrement(s string) (Increment, error) {
	switch Increment(s) {
	case "":
		return IncrementMinor, nil
	case IncrementMajor, IncrementMinor, IncrementPatch:
		return Increment(s), nil
	default:
		return "", fmt.Errorf("invalid bump type %q: must be major, minor, or patch", s)
	}
}

// BumpResult reports what a bump changed.
type BumpResult struct {
	Previous      string
	Version       string
	MinAppVersion string
}

// Bump raises the plugin version in manifest.json and package.json and
// records the new release's minimum app version in versions.json. All
// three files must already exist; nothing is written until all of them
// parsed.
func Bump(dir string, inc Increment) (*BumpResult, error) {
	manifestPath := filepath.Join(dir, manifest.FileName)
	packagePath := filepath.Join(dir, packageFile)
	versionsPath := filepath.Join(dir, versionsFile)

	manifestDoc, err := readJSONFile(manifestPath)
	if err != nil {
		return nil, err
	}

	packageDoc, err := readJSONFile(packagePath)
	if err != nil {
		return nil, err
	}

	versionsDoc, err := readJSONFile(versionsPath)
	if err != nil {
		return nil, err
	}

	current, _ := manifestDoc["version"].(string)
	if current == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoVersion, manifestPath)
	}

	minApp, _ := manifestDoc["minAppVersion"].(string)
	if minApp == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoMinAppVersion, manifestPath)
	}

	next, err := nextVersion(current, inc)
	if err != nil {
		return nil, err
	}

	manifestDoc["version"] = next
	packageDoc["version"] = next
	versionsDoc[next] = minApp

	if err := writeJSONFile(manifestPath, manifestDoc); err != nil {
		return nil, err
	}

	if err := writeJSONFile(packagePath, packageDoc); err != nil {
		return nil, err
	}

	if err := writeJSONFile(versionsPath, versionsDoc); err != nil {
		return nil, err
	}

	return &BumpResult{Previous: current, Version: next, MinAppVersion: minApp}, nil
}

// nextVersion applies a semver increment to a strict X.Y.Z version.
func nextVersion(current string, inc Increment) (string, error) {
	v, err := semver.StrictNewVersion(current)
	if err != nil {
		return "", fmt.Errorf("invalid version %q: %w", current, err)
	}

	var next semver.Version

	switch inc {
	case IncrementMajor:
		next = v.IncMajor()
	case IncrementMinor:
		next = v.IncMinor()
	case IncrementPatch:
		next = v.IncPatch()
	default:
		return "", fmt.Errorf("invalid bump type %q", inc)
	}

	return next.String(), nil
}

func readJSONFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Fixed file names under the plugin root
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	doc := make(map[string]any)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	return doc, nil
}

// writeJSONFile writes doc tab-indented with a trailing newline. Keys
// come out alphabetized.
func writeJSONFile(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // Plugin metadata is world-readable
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}

	return nil
}
