// Package gitrepo provides typed access to the git CLI for the activity
// repository. All commands target the configured working tree via the
// -C flag, which every Repository method injects automatically.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Startup errors. Both are fatal: farmd cannot do anything useful
// without git and a working tree to commit into.
var (
	// ErrGitMissing is returned when no git binary is found in PATH.
	ErrGitMissing = errors.New("git not found in PATH")

	// ErrNotAWorkTree is returned when the repo path has no .git directory.
	ErrNotAWorkTree = errors.New("not a git repository (missing .git)")
)

// Outcome classifies the result of a commit attempt.
type Outcome int

const (
	// Committed means a new commit was created.
	Committed Outcome = iota

	// NothingToCommit means the working tree had no staged changes.
	NothingToCommit

	// Failed means git rejected the commit for another reason.
	Failed
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case NothingToCommit:
		return "nothing to commit"
	default:
		return "failed"
	}
}

// Repository represents a git working tree at a specific directory.
// There is no default directory: callers always say which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// EnsureAvailable verifies that the git binary and the working tree
// both exist. Called once at startup before any scheduling happens.
func (r *Repository) EnsureAvailable() error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrGitMissing
	}
	if _, err := r.Run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return fmt.Errorf("%w: %s", ErrNotAWorkTree, r.dir)
	}
	return nil
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// EnsureIdentity sets the repo-level user.name and user.email, but only
// when the repository has none configured. Both values must be non-empty
// for anything to happen; failures are ignored since an identity from
// the global config is just as good.
func (r *Repository) EnsureIdentity(ctx context.Context, name, email string) {
	if name == "" || email == "" {
		return
	}
	if current, err := r.Run(ctx, "config", "--get", "user.name"); err != nil || strings.TrimSpace(current) == "" {
		_, _ = r.Run(ctx, "config", "user.name", name)
	}
	if current, err := r.Run(ctx, "config", "--get", "user.email"); err != nil || strings.TrimSpace(current) == "" {
		_, _ = r.Run(ctx, "config", "user.email", email)
	}
}

// Commit stages file and commits it with the template message plus the
// commit instant. A clean working tree yields NothingToCommit and a nil
// error; any other git failure yields Failed and the underlying error.
func (r *Repository) Commit(ctx context.Context, file, messageTemplate string, now time.Time) (Outcome, error) {
	if _, err := r.Run(ctx, "add", filepath.ToSlash(file)); err != nil {
		return Failed, err
	}

	message := fmt.Sprintf("%s (%s)", messageTemplate, now.Format("2006-01-02T15:04:05"))
	fullArgs := []string{"-C", r.dir, "commit", "-m", message}
	command := exec.CommandContext(ctx, "git", fullArgs...)
	output, err := command.CombinedOutput()
	if err != nil {
		if strings.Contains(strings.ToLower(string(output)), "nothing to commit") {
			return NothingToCommit, nil
		}
		return Failed, fmt.Errorf("git commit in %s: %w (output: %s)",
			r.dir, err, strings.TrimSpace(string(output)))
	}
	return Committed, nil
}

// Push pushes the current branch to its upstream.
func (r *Repository) Push(ctx context.Context) error {
	_, err := r.Run(ctx, "push")
	return err
}
