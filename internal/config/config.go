// Package config builds the immutable farmd configuration from the
// process environment. A .env file in the working directory is loaded
// first, so deployments can keep their settings next to the binary.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/commitfarm/farmd/internal/schedule"
)

// Default values for optional settings.
const (
	DefaultCommitFile     = "farm_activity.md"
	DefaultCommitTemplate = "chore: update activity log"
	DefaultStateFile      = "state.json"
	DefaultWorkStartHour  = 10
	DefaultWorkEndHour    = 22
	DefaultMinCommits     = 5
	DefaultMaxCommits     = 12
)

// Validation errors reported at startup. All of them are fatal: farmd
// refuses to run with a broken configuration.
var (
	ErrBadInteger      = errors.New("not a valid integer")
	ErrRepoPathUnset   = errors.New("REPO_PATH is not set; set it in .env or the environment")
	ErrRepoPathMissing = errors.New("REPO_PATH does not exist or is not a directory")
	ErrHourRange       = errors.New("work hours must be between 0 and 23 inclusive")
	ErrWindowOrder     = errors.New("WORK_END_HOUR must be greater than WORK_START_HOUR")
	ErrCommitBounds    = errors.New("MIN_COMMITS and MAX_COMMITS must be positive")
	ErrCommitOrder     = errors.New("MIN_COMMITS cannot be greater than MAX_COMMITS")
)

// Config holds every runtime setting of farmd. It is constructed once
// at startup and passed by value into the components that need it.
type Config struct {
	// RepoPath is the git working tree that receives activity commits.
	RepoPath string

	// WorkStartHour and WorkEndHour bound the daily commit window.
	WorkStartHour int
	WorkEndHour   int

	// MinCommits and MaxCommits bound the number of commits per day.
	MinCommits int
	MaxCommits int

	// CommitFile is the activity log path, relative to RepoPath.
	CommitFile string

	// CommitMessageTemplate is the base commit message; the commit time
	// is appended in parentheses.
	CommitMessageTemplate string

	// GitPush controls whether each commit is pushed to the remote.
	GitPush bool

	// GitUserName and GitUserEmail optionally bootstrap the repo-level
	// git identity when none is configured.
	GitUserName  string
	GitUserEmail string

	// StateFile is where the daily schedule state blob is persisted.
	StateFile string

	// LogFile optionally mirrors all log output into a file.
	LogFile string
}

// FromEnv loads .env (if present), reads the environment and validates
// the result. Any validation failure is fatal to the caller.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		RepoPath:              envString("REPO_PATH", ""),
		CommitFile:            envString("COMMIT_FILE", DefaultCommitFile),
		CommitMessageTemplate: envString("COMMIT_MESSAGE_TEMPLATE", DefaultCommitTemplate),
		GitPush:               envBool("GIT_PUSH", true),
		GitUserName:           envString("USER_NAME", ""),
		GitUserEmail:          envString("USER_EMAIL", ""),
		StateFile:             envString("STATE_FILE", DefaultStateFile),
		LogFile:               envString("LOG_FILE", ""),
	}

	var err error
	if cfg.WorkStartHour, err = envInt("WORK_START_HOUR", DefaultWorkStartHour); err != nil {
		return Config{}, err
	}
	if cfg.WorkEndHour, err = envInt("WORK_END_HOUR", DefaultWorkEndHour); err != nil {
		return Config{}, err
	}
	if cfg.MinCommits, err = envInt("MIN_COMMITS", DefaultMinCommits); err != nil {
		return Config{}, err
	}
	if cfg.MaxCommits, err = envInt("MAX_COMMITS", DefaultMaxCommits); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants. Returns the first
// violation found.
func (c Config) Validate() error {
	if c.RepoPath == "" {
		return ErrRepoPathUnset
	}
	info, err := os.Stat(c.RepoPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRepoPathMissing, c.RepoPath)
	}
	for _, hour := range []int{c.WorkStartHour, c.WorkEndHour} {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("%w: got %d", ErrHourRange, hour)
		}
	}
	if c.WorkEndHour <= c.WorkStartHour {
		return ErrWindowOrder
	}
	if c.MinCommits < 1 || c.MaxCommits < 1 {
		return ErrCommitBounds
	}
	if c.MinCommits > c.MaxCommits {
		return ErrCommitOrder
	}
	return nil
}

// Window returns the schedule window described by this configuration.
func (c Config) Window() schedule.Window {
	return schedule.Window{
		StartHour: c.WorkStartHour,
		EndHour:   c.WorkEndHour,
		MinEvents: c.MinCommits,
		MaxEvents: c.MaxCommits,
	}
}
