package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/commitfarm/farmd/internal/config"
	"github.com/commitfarm/farmd/internal/schedule"
	"github.com/commitfarm/farmd/internal/state"
	"github.com/commitfarm/farmd/pkg/logger"
)

// status prints the persisted schedule without touching the repository
// or the loop.
func status(ctx *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	store := state.NewStore(afero.NewOsFs(), cfg.StateFile, logger.NewNopLogger())
	st := store.Load()
	if st.Empty() {
		fmt.Println("No schedule persisted yet.")
		return nil
	}

	now := time.Now()
	remaining := st.PurgePast(now)
	fmt.Printf("Schedule date: %s\n", st.Date)
	fmt.Printf("Commits remaining: %d\n", len(remaining.Pending))
	if next, ok := schedule.NextDue(remaining.Pending, now); ok {
		fmt.Printf("Next commit at: %s\n", next.Format("15:04:05"))
	}
	if st.Date != schedule.Day(now) {
		fmt.Println("Schedule is stale; the daemon will regenerate it on its next check.")
	}
	return nil
}
