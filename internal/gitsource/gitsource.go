// Package gitsource keeps local checkouts of git-hosted decks up to date.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/memorium/internal/domain"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// IsRemote reports whether a module path names a git repository rather than
// a local directory.
func IsRemote(path string) bool {
	return strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://")
}

// LocalPath maps a repository URL to its checkout directory under baseDir,
// e.g. https://github.com/a/b.git becomes baseDir/github.com/a/b. URLs with
// ".." segments, or that would resolve outside baseDir, are rejected.
func LocalPath(baseDir, repoURL string) (string, error) {
	host, repoPath, ok := splitURL(repoURL)
	if !ok {
		return "", fmt.Errorf("could not parse git URL %s: %w", repoURL, domain.ErrInvalidSource)
	}
	for _, seg := range strings.FieldsFunc(host+"/"+repoPath, isSeparator) {
		if seg == ".." {
			return "", fmt.Errorf("git URL %s escapes the repos directory: %w", repoURL, domain.ErrInvalidSource)
		}
	}

	p := filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git"))
	rel, err := filepath.Rel(baseDir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("git URL %s escapes the repos directory: %w", repoURL, domain.ErrInvalidSource)
	}
	return p, nil
}

func splitURL(repoURL string) (host, repoPath string, ok bool) {
	u, err := url.Parse(repoURL)
	if err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != "" {
		return u.Host, u.Path, true
	}

	// scp-like syntax: git@host:owner/repo.git
	userHost, repoPath, ok := strings.Cut(repoURL, ":")
	if ok {
		if _, host, ok := strings.Cut(userHost, "@"); ok && host != "" && repoPath != "" {
			return host, repoPath, true
		}
	}
	return "", "", false
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// Sync clones repoURL into localPath, or pulls the latest changes when a
// checkout already exists there.
func Sync(ctx context.Context, repoURL, localPath string, logger *zap.Logger) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Cloning repository", zap.String("url", repoURL), zap.String("path", localPath))
		if _, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: repoURL}); err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to check path %s: %w", localPath, err)
	}

	logger.Info("Pulling repository", zap.String("path", localPath))
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}
	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	return nil
}
