package release

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeVersionFixture lays down manifest.json, package.json, and
// versions.json at version 1.2.3.
func writeVersionFixture(t *testing.T, dir string) {
	t.Helper()

	files := map[string]string{
		"manifest.json": `{"id": "my-plugin", "name": "My Plugin", "version": "1.2.3", "minAppVersion": "0.15.0"}`,
		"package.json":  `{"name": "my-plugin", "version": "1.2.3"}`,
		"versions.json": `{"1.0.0": "0.15.0"}`,
	}

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func readVersionField(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	doc := make(map[string]any)
	require.NoError(t, json.Unmarshal(data, &doc))

	version, _ := doc["version"].(string)

	return version
}

func TestBump(t *testing.T) {
	tests := []struct {
		name string
		inc  Increment
		want string
	}{
		{"major", IncrementMajor, "2.0.0"},
		{"minor", IncrementMinor, "1.3.0"},
		{"patch", IncrementPatch, "1.2.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeVersionFixture(t, dir)

			res, err := Bump(dir, tt.inc)
			require.NoError(t, err)

			assert.Equal(t, "1.2.3", res.Previous)
			assert.Equal(t, tt.want, res.Version)
			assert.Equal(t, "0.15.0", res.MinAppVersion)

			assert.Equal(t, tt.want, readVersionField(t, filepath.Join(dir, "manifest.json")))
			assert.Equal(t, tt.want, readVersionField(t, filepath.Join(dir, "package.json")))
		})
	}
}

func TestBump_RecordsMinAppVersion(t *testing.T) {
	dir := t.TempDir()
	writeVersionFixture(t, dir)

	_, err := Bump(dir, IncrementMinor)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "versions.json"))
	require.NoError(t, err)

	versions := make(map[string]string)
	require.NoError(t, json.Unmarshal(data, &versions))

	assert.Equal(t, "0.15.0", versions["1.3.0"])
	assert.Equal(t, "0.15.0", versions["1.0.0"], "existing entries are preserved")
}

func TestBump_Formatting(t *testing.T) {
	dir := t.TempDir()
	writeVersionFixture(t, dir)

	_, err := Bump(dir, IncrementMinor)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)

	raw := string(data)
	assert.True(t, strings.HasSuffix(raw, "\n"), "file should end with a newline")
	assert.Contains(t, raw, "\n\t\"version\": \"1.3.0\"", "fields should be tab-indented")
}

func TestBump_MissingVersionsFile(t *testing.T) {
	dir := t.TempDir()
	writeVersionFixture(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "versions.json")))

	_, err := Bump(dir, IncrementMinor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "versions.json")
}

func TestBump_NoVersion(t *testing.T) {
	dir := t.TempDir()
	writeVersionFixture(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"),
		[]byte(`{"id": "my-plugin", "minAppVersion": "0.15.0"}`), 0o644))

	_, err := Bump(dir, IncrementMinor)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoVersion)
}

func TestBump_NoMinAppVersion(t *testing.T) {
	dir := t.TempDir()
	writeVersionFixture(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"),
		[]byte(`{"id": "my-plugin", "version": "1.2.3"}`), 0o644))

	_, err := Bump(dir, IncrementMinor)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMinAppVersion)
}

func TestBump_InvalidVersion(t *testing.T) {
	dir := t.TempDir()
	writeVersionFixture(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"),
		[]byte(`{"id": "my-plugin", "version": "1.2", "minAppVersion": "0.15.0"}`), 0o644))

	_, err := Bump(dir, IncrementMinor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version")
}

func TestBump_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeVersionFixture(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{nope"), 0o644))

	_, err := Bump(dir, IncrementMinor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package.json")
}

func TestParseIncrement(t *testing.T) {
	tests := []struct {
		input   string
		want    Increment
		wantErr bool
	}{
		{"", IncrementMinor, false},
		{"major", IncrementMajor, false},
		{"minor", IncrementMinor, false},
		{"patch", IncrementPatch, false},
		{"huge", "", true},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			got, err := ParseIncrement(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
