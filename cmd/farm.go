package cmd

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/commitfarm/farmd/internal/activity"
	"github.com/commitfarm/farmd/internal/config"
	"github.com/commitfarm/farmd/internal/daemon"
	"github.com/commitfarm/farmd/internal/gitrepo"
	"github.com/commitfarm/farmd/internal/state"
	"github.com/commitfarm/farmd/pkg/logger"
)

var (
	runNow bool

	farmFlags = []cli.Flag{
		cli.BoolFlag{
			Name:        "now, n",
			Usage:       "perform one immediate commit cycle and exit",
			Destination: &runNow,
		},
	}
)

// farm is the root action: it validates the configuration and the
// repository, then either performs one immediate commit cycle (--now)
// or runs the scheduling daemon until terminated.
func farm(ctx *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	repo := gitrepo.NewRepository(cfg.RepoPath)
	if err := repo.EnsureAvailable(); err != nil {
		return err
	}
	repo.EnsureIdentity(context.Background(), cfg.GitUserName, cfg.GitUserEmail)

	l, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	fs := afero.NewOsFs()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fire := newFireFunc(cfg, repo, fs, rng, l)

	if runNow {
		return runImmediate(context.Background(), fire, l)
	}

	shutCtx, cancel := setupShutdownHandler()
	defer cancel()

	runner := daemon.New(&daemon.Config{
		Window: cfg.Window(),
		Store:  state.NewStore(fs, cfg.StateFile, l),
		Fire:   fire,
		Log:    l,
	}, &daemon.Dependencies{Rand: rng})
	return runner.Run(shutCtx)
}

// runImmediate performs one commit cycle and exits cleanly either way.
// A failed side effect is logged as a warning, exactly as the loop
// treats it; only configuration problems make farmd exit non-zero.
func runImmediate(ctx context.Context, fire daemon.FireFunc, l logger.Logger) error {
	if err := fire(ctx); err != nil {
		l.Warning("commit cycle failed: %v", err)
		return nil
	}
	l.Info("Immediate commit completed.")
	return nil
}

// newFireFunc builds the side-effect callback: append one activity
// line, commit it and optionally push. A clean tree is a logged no-op.
func newFireFunc(cfg config.Config, repo *gitrepo.Repository, fs afero.Fs, rng *rand.Rand, l logger.Logger) daemon.FireFunc {
	return func(ctx context.Context) error {
		now := time.Now()
		if err := activity.Append(fs, cfg.RepoPath, cfg.CommitFile, now, rng); err != nil {
			return err
		}
		outcome, err := repo.Commit(ctx, cfg.CommitFile, cfg.CommitMessageTemplate, now)
		switch outcome {
		case gitrepo.NothingToCommit:
			l.Info("No changes to commit; skipping.")
			return nil
		case gitrepo.Failed:
			return err
		}
		l.Info("Commit created.")

		if cfg.GitPush {
			if err := repo.Push(ctx); err != nil {
				l.Warning("git push failed: %v", err)
			} else {
				l.Info("Pushed to remote.")
			}
		}
		return nil
	}
}

// buildLogger returns the console logger, fanned out to the LOG_FILE
// sink when one is configured.
func buildLogger(cfg config.Config) (logger.Logger, error) {
	console := logger.NewStandardLogger(log.Default())
	if cfg.LogFile == "" {
		return console, nil
	}
	file, err := logger.NewFileLogger(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	return logger.NewMultiLogger(console, file), nil
}
