// Package daemon implements the farmd scheduling loop: it keeps the
// daily schedule fresh across day rollovers, sleeps in bounded chunks
// until the next event is due, fires the commit side effect and
// persists the consumed state after every step.
package daemon

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"github.com/commitfarm/farmd/internal/schedule"
	"github.com/commitfarm/farmd/internal/state"
	"github.com/commitfarm/farmd/pkg/logger"
)

// Sleep pacing. Chunked sleeping is the sole suspension mechanism, so
// the caps bound how long a termination request can go unnoticed.
const (
	// idleSleepCap bounds each sleep chunk while waiting for the next window.
	idleSleepCap = 60 * time.Second

	// eventSleepCap bounds each sleep chunk before an event fires.
	eventSleepCap = 30 * time.Second

	// idleSleepFloor is the minimum idle sleep, guarding against
	// busy-looping on clock edge cases around the window boundary.
	idleSleepFloor = 30 * time.Second

	// postFireDelay is the pause after a fired event before the next
	// loop iteration.
	postFireDelay = 2 * time.Second
)

// FireFunc performs the externally visible side effect of one event:
// append an activity line, commit and optionally push.
type FireFunc func(ctx context.Context) error

// Config holds the runner configuration.
type Config struct {
	// Window is the daily scheduling window.
	Window schedule.Window

	// Store persists the schedule state across restarts.
	Store *state.Store

	// Fire is invoked once per due event. Errors are logged and never
	// abort the loop.
	Fire FireFunc

	// Log receives loop progress and warnings.
	Log logger.Logger
}

// Dependencies holds injectable time and randomness sources.
// This enables deterministic testing of the loop's date and sleep
// decisions.
type Dependencies struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Sleep pauses for d or until ctx is cancelled, returning ctx's
	// error in that case. Defaults to a timer-based implementation.
	Sleep func(ctx context.Context, d time.Duration) error

	// Rand is the source for schedule generation. Defaults to a source
	// seeded from the wall clock.
	Rand *rand.Rand
}

// applyDependencyDefaults returns Dependencies with defaults applied.
func applyDependencyDefaults(deps *Dependencies) *Dependencies {
	if deps == nil {
		deps = &Dependencies{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return deps
}

// sleepContext pauses for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Runner drives the daily commit schedule. Create one with New and run
// it with Run; the loop exits when the context is cancelled.
type Runner struct {
	config *Config
	deps   *Dependencies
}

// New creates a runner with the given configuration and dependencies.
// If deps is nil, real time and seeded randomness are used.
func New(config *Config, deps *Dependencies) *Runner {
	return &Runner{
		config: config,
		deps:   applyDependencyDefaults(deps),
	}
}

// Run executes the scheduling loop until ctx is cancelled. Cancellation
// is observed at every sleep chunk and before each fire, so the worst
// case shutdown latency is one chunk. A panic inside the loop is
// recovered and returned as an error so the process can exit non-zero
// and recover the remaining schedule on the next start.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.config.Log.Error("scheduling loop panicked: %v\n%s", rec, debug.Stack())
			err = fmt.Errorf("scheduling loop panicked: %v", rec)
		}
	}()

	st := r.config.Store.Load()
	now := r.deps.Now()
	if st.Date != schedule.Day(now) {
		st = r.reschedule(now)
	} else {
		st = r.resume(st, now)
	}

	for {
		if ctx.Err() != nil {
			r.config.Log.Info("Shutting down.")
			return nil
		}

		now = r.deps.Now()
		if schedule.Day(now) != st.Date {
			st = r.reschedule(now)
		}

		next, ok := schedule.NextDue(st.Pending, now)
		if !ok {
			target := schedule.NextWindowStart(r.config.Window.StartHour, now)
			r.config.Log.Info("No commits left today. Sleeping until %s.", target.Format(time.RFC3339))
			if r.sleepUntil(ctx, target, idleSleepCap, idleSleepFloor) != nil {
				r.config.Log.Info("Shutting down.")
				return nil
			}
			continue
		}

		r.config.Log.Info("Next commit at %s (in %s).",
			next.Format("15:04:05"), next.Sub(now).Round(time.Second))
		if r.sleepUntil(ctx, next, eventSleepCap, 0) != nil || ctx.Err() != nil {
			r.config.Log.Info("Shutting down.")
			return nil
		}

		if err := r.config.Fire(ctx); err != nil {
			r.config.Log.Warning("commit cycle failed: %v", err)
		}

		// The slot is consumed whether or not the side effect succeeded;
		// the next day's schedule is the only retry mechanism.
		st.Pending = schedule.Remove(st.Pending, next)
		r.config.Store.Save(st)

		_ = r.deps.Sleep(ctx, postFireDelay)
	}
}

// reschedule replaces the state with a fresh schedule for the day of
// now and persists it.
func (r *Runner) reschedule(now time.Time) state.State {
	st := state.State{
		Date:    schedule.Day(now),
		Pending: schedule.Generate(now, r.config.Window, r.deps.Rand),
	}
	r.config.Store.Save(st)
	r.config.Log.Info("New schedule for %s: %d commits queued.", st.Date, len(st.Pending))
	return st
}

// resume keeps a same-day schedule from a previous run, dropping the
// entries that elapsed while the daemon was down.
func (r *Runner) resume(st state.State, now time.Time) state.State {
	st = st.PurgePast(now)
	r.config.Store.Save(st)
	r.config.Log.Info("Resuming schedule for %s: %d commits remaining.", st.Date, len(st.Pending))
	return st
}

// sleepUntil sleeps toward target in chunks of at most maxStep,
// re-checking cancellation between chunks. A non-zero floor extends the
// total sleep to at least that duration. Returns nil once target is
// reached, or the context error when cancelled mid-sleep.
func (r *Runner) sleepUntil(ctx context.Context, target time.Time, maxStep, floor time.Duration) error {
	deadline := target
	if floor > 0 {
		if earliest := r.deps.Now().Add(floor); deadline.Before(earliest) {
			deadline = earliest
		}
	}
	for {
		remaining := deadline.Sub(r.deps.Now())
		if remaining <= 0 {
			return nil
		}
		step := remaining
		if step > maxStep {
			step = maxStep
		}
		if err := r.deps.Sleep(ctx, step); err != nil {
			return err
		}
	}
}
