// Package sourceurl constructs permalinks of the form
// https://<git remote host>/<org>/<repo>/blob/<commit>/<relpath>#L<start>-L<end>
//
// necessist shells out to the system git binary rather than embedding a
// git implementation, via os/exec, the same way it shells out to run tests.
package sourceurl

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/warning"
)

// Base holds the git-derived pieces needed to build a permalink for any
// file in the repository.
type Base struct {
	Host   string
	Org    string
	Repo   string
	Commit string
	Dirty  bool
}

// Resolve inspects root's git remote and HEAD commit, warning (rather
// than failing) via collector when there is no remote or the tree is
// dirty, per spec §6/§7.
func Resolve(root model.Path, collector *warning.Collector) (Base, error) {
	commit, dirty, err := headCommit(string(root))
	if err != nil {
		return Base{}, fmt.Errorf("resolve HEAD commit: %w", err)
	}

	if dirty {
		if err := collector.Report(warning.New(warning.DirtySourceURL,
			"working tree is dirty; permalinks point at HEAD commit %s", commit)); err != nil {
			return Base{}, err
		}
	}

	remote, err := remoteURL(string(root))
	if err != nil || remote == "" {
		if err := collector.Report(warning.New(warning.NoGitRemote,
			"no git remote found; source URLs will be omitted")); err != nil {
			return Base{}, err
		}

		return Base{Commit: commit, Dirty: dirty}, nil
	}

	host, org, repo, err := parseRemote(remote)
	if err != nil {
		if err := collector.Report(warning.New(warning.NoGitRemote, "unparseable git remote %q: %v", remote, err)); err != nil {
			return Base{}, err
		}

		return Base{Commit: commit, Dirty: dirty}, nil
	}

	return Base{Host: host, Org: org, Repo: repo, Commit: commit, Dirty: dirty}, nil
}

// URL builds the permalink for one span, or "" if no remote was resolved.
func (b Base) URL(relPath string, startLine, endLine int) string {
	if b.Host == "" {
		return ""
	}

	return fmt.Sprintf("https://%s/%s/%s/blob/%s/%s#L%d-L%d",
		b.Host, b.Org, b.Repo, b.Commit, relPath, startLine, endLine)
}

func headCommit(root string) (commit string, dirty bool, err error) {
	out, err := runGit(root, "rev-parse", "HEAD")
	if err != nil {
		return "", false, err
	}

	commit = strings.TrimSpace(out)

	status, err := runGit(root, "status", "--porcelain")
	if err != nil {
		return commit, false, err
	}

	return commit, strings.TrimSpace(status) != "", nil
}

func remoteURL(root string) (string, error) {
	out, err := runGit(root, "remote", "get-url", "origin")
	if err != nil {
		return "", nil // no remote configured; not fatal
	}

	return strings.TrimSpace(out), nil
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return string(out), nil
}

// parseRemote accepts both SSH (git@host:org/repo.git) and HTTPS
// (https://host/org/repo.git) remote forms.
func parseRemote(remote string) (host, org, repo string, err error) {
	remote = strings.TrimSuffix(remote, ".git")

	if strings.HasPrefix(remote, "git@") {
		rest := strings.TrimPrefix(remote, "git@")

		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return "", "", "", fmt.Errorf("malformed scp-like remote %q", remote)
		}

		host = parts[0]

		orgRepo := strings.SplitN(parts[1], "/", 2)
		if len(orgRepo) != 2 {
			return "", "", "", fmt.Errorf("malformed remote path %q", parts[1])
		}

		return host, orgRepo[0], orgRepo[1], nil
	}

	u, err := url.Parse(remote)
	if err != nil {
		return "", "", "", fmt.Errorf("parse remote URL: %w", err)
	}

	trimmed := strings.Trim(u.Path, "/")

	orgRepo := strings.SplitN(trimmed, "/", 2)
	if len(orgRepo) != 2 {
		return "", "", "", fmt.Errorf("malformed remote path %q", u.Path)
	}

	return u.Host, orgRepo[0], orgRepo[1], nil
}
