// Package audit implements C2, the audit backend: a versioned append-only
// store of semantic-artifact changes backed by git, grounded on the shell-out
// git invocation style of steveyegge-beads' cmd/bd/doctor/git.go and retried
// with github.com/cenkalti/backoff/v4 the way the teacher's conflict
// backfill and audit races are retried.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable is returned when git cannot be initialized and no
// audit-disabling override is configured (§4.2).
var ErrUnavailable = errors.New("audit: backend unavailable")

const maxRetries = 15

// Backend is the C2 contract (§4.2).
type Backend interface {
	Initialize(ctx context.Context) error
	AddArtifact(ctx context.Context, path, body, message string) error
	UpdateArtifact(ctx context.Context, path, body, message string) error
	PurgeArtifact(ctx context.Context, path string) error
	CommitTransaction(ctx context.Context, message string) error
	GetHeadHash(ctx context.Context) (string, error)
	GetHistory(ctx context.Context, path string) ([]Commit, error)
	ResetToHead(ctx context.Context, hash string) error
}

// Commit is one entry of an artifact's history (§4.2).
type Commit struct {
	Hash    string
	Message string
	When    time.Time
}

// GitBackend shells out to the system git binary rooted at Dir, staging one
// commit per artifact write as the teacher's bd doctor git checks assume a
// normal working tree.
type GitBackend struct {
	dir        string
	authorName string
	authorEmail string
	logger     *slog.Logger

	staged []string // paths staged since the last CommitTransaction
}

// New constructs a GitBackend rooted at dir. Initialize must be called
// before use.
func New(dir, authorName, authorEmail string, logger *slog.Logger) *GitBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitBackend{dir: dir, authorName: authorName, authorEmail: authorEmail, logger: logger}
}

// Initialize creates the git repository if one does not already exist.
// Returns ErrUnavailable wrapping the underlying cause when git itself is
// not available on PATH.
func (g *GitBackend) Initialize(ctx context.Context) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if g.isRepo(ctx) {
		return nil
	}
	if _, err := g.run(ctx, "init"); err != nil {
		return fmt.Errorf("%w: git init: %v", ErrUnavailable, err)
	}
	return nil
}

func (g *GitBackend) isRepo(ctx context.Context) bool {
	_, err := g.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// AddArtifact stages a newly created artifact file for the next commit.
func (g *GitBackend) AddArtifact(ctx context.Context, path, body, message string) error {
	return g.stage(ctx, path)
}

// UpdateArtifact stages a modified artifact file for the next commit.
func (g *GitBackend) UpdateArtifact(ctx context.Context, path, body, message string) error {
	return g.stage(ctx, path)
}

// PurgeArtifact stages a deletion for the next commit.
func (g *GitBackend) PurgeArtifact(ctx context.Context, path string) error {
	return g.stage(ctx, path)
}

func (g *GitBackend) stage(ctx context.Context, path string) error {
	err := g.retrying(ctx, func() error {
		_, err := g.run(ctx, "add", "-A", "--", path)
		return err
	})
	if err == nil {
		g.staged = append(g.staged, path)
	}
	return err
}

// CommitTransaction commits all staged artifact changes as one commit.
// "Nothing to commit" is treated as success (§4.2).
func (g *GitBackend) CommitTransaction(ctx context.Context, message string) error {
	err := g.retrying(ctx, func() error {
		out, err := g.run(ctx, "commit", "-m", message, "--author", g.authorSpec())
		if err != nil && (strings.Contains(err.Error(), "nothing to commit") || strings.Contains(out, "nothing to commit")) {
			return nil
		}
		return err
	})
	if err == nil {
		g.staged = nil
	}
	return err
}

// GetHeadHash returns the current HEAD commit hash, or "" if the repository
// has no commits yet.
func (g *GitBackend) GetHeadHash(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		if strings.Contains(err.Error(), "unknown revision") || strings.Contains(err.Error(), "ambiguous argument") {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GetHistory returns the commit history touching path, most recent first.
func (g *GitBackend) GetHistory(ctx context.Context, path string) ([]Commit, error) {
	out, err := g.run(ctx, "log", "--follow", "--format=%H\x1f%s\x1f%cI", "--", path)
	if err != nil {
		return nil, err
	}
	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\x1f", 3)
		if len(parts) != 3 {
			continue
		}
		when, _ := time.Parse(time.RFC3339, parts[2])
		commits = append(commits, Commit{Hash: parts[0], Message: parts[1], When: when})
	}
	return commits, nil
}

// ResetToHead hard-resets the working tree to hash; an empty hash is a
// no-op. The transaction manager (C6) does not call it: its Rollback
// restores backed-up files only and leaves the audit repository as it is.
func (g *GitBackend) ResetToHead(ctx context.Context, hash string) error {
	if hash == "" {
		return nil
	}
	_, err := g.run(ctx, "reset", "--hard", hash)
	return err
}

func (g *GitBackend) authorSpec() string {
	return fmt.Sprintf("%s <%s>", g.authorName, g.authorEmail)
}

// retrying retries fn with exponential backoff up to maxRetries times
// (maxRetries+1 attempts in all) when the error looks like contention on index.lock or another racing
// process, per §4.2/§7.3.
func (g *GitBackend) retrying(ctx context.Context, fn func() error) error {
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if isLockContention(err) {
			g.logger.Debug("audit: retrying after lock contention", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func isLockContention(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "index.lock") || strings.Contains(msg, "another process")
}

func (g *GitBackend) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// NoopBackend is used when the audit backend is explicitly disabled; it
// satisfies Backend without ever touching disk (§4.2: "no-op backend when
// the VCS is unavailable").
type NoopBackend struct{}

func (NoopBackend) Initialize(context.Context) error                          { return nil }
func (NoopBackend) AddArtifact(context.Context, string, string, string) error    { return nil }
func (NoopBackend) UpdateArtifact(context.Context, string, string, string) error { return nil }
func (NoopBackend) PurgeArtifact(context.Context, string) error               { return nil }
func (NoopBackend) CommitTransaction(context.Context, string) error           { return nil }
func (NoopBackend) GetHeadHash(context.Context) (string, error)               { return "", nil }
func (NoopBackend) GetHistory(context.Context, string) ([]Commit, error)      { return nil, nil }
func (NoopBackend) ResetToHead(context.Context, string) error                 { return nil }
