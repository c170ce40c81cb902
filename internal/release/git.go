package release

import (
	"context"
	"errors"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// IsClean reports whether the repository at dir has no uncommitted or
// untracked changes.
func IsClean(dir string) (bool, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return false, fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("reading worktree status: %w", err)
	}

	return status.IsClean(), nil
}

// CommitFiles stages the given files and commits them with message. The
// author comes from the repository (or global) git configuration.
func CommitFiles(dir, message string, files []string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return fmt.Errorf("staging %s: %w", f, err)
		}
	}

	if _, err := wt.Commit(message, &git.CommitOptions{}); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

// Push pushes the current branch to origin. An already-up-to-date remote
// is not an error.
func Push(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	if err := repo.PushContext(ctx, &git.PushOptions{}); err != nil &&
		!errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing: %w", err)
	}

	return nil
}

// RemoteURL returns the origin remote URL normalized to a browsable
// https form, or "" when dir is not a repository with an origin.
func RemoteURL(dir string) string {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ""
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}

	return normalizeRemote(remote.Config().URLs[0])
}

// normalizeRemote rewrites SSH-style GitHub remotes to https and strips
// the .git suffix.
func normalizeRemote(url string) string {
	url = strings.TrimSuffix(url, ".git")

	if strings.HasPrefix(url, "git@github.com:") {
		return "https://github.com/" + strings.TrimPrefix(url, "git@github.com:")
	}

	return url
}
