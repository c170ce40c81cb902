// Package artifact verifies the build's output files and deploys them into
// the vault's plugin directory.
package artifact

import (
	"os"
	"time"
)

// PrimaryOutput is the build's main output file. Its freshness decides
// whether a build actually produced something.
const PrimaryOutput = "main.js"

// Files returns the ordered artifact set deployed into the vault.
func Files() []string {
	return []string{"main.js", "styles.css", "manifest.json"}
}

// Verification is the result of one primary-output check.
type Verification struct {
	OK      bool
	Size    int64
	ModTime time.Time
}

// Verify checks whether the primary output at path represents a successful
// build.
//
// The initial policy (first build of a session) accepts any non-empty file
// regardless of age. The incremental policy requires the modification time
// to fall within window of now, guarding against a stale artifact left over
// from an earlier build when the current one silently produced nothing.
// A missing artifact fails the check; Verify never returns an error.
func Verify(path string, initial bool, window time.Duration) Verification {
	return verifyAt(path, initial, window, time.Now())
}

// verifyAt is Verify with an injectable clock.
func verifyAt(path string, initial bool, window time.Duration, now time.Time) Verification {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Verification{}
	}

	v := Verification{
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	if initial {
		v.OK = v.Size > 0
		return v
	}

	v.OK = now.Sub(v.ModTime) < window

	return v
}
