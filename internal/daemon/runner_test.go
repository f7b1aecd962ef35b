package daemon

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/commitfarm/farmd/internal/activity"
	"github.com/commitfarm/farmd/internal/schedule"
	"github.com/commitfarm/farmd/internal/state"
	"github.com/commitfarm/farmd/pkg/logger"
)

// fakeClock drives the loop's time decisions in tests. Its sleep
// implementation advances the clock instead of blocking, so a full
// scheduling day runs in microseconds.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func testWindow() schedule.Window {
	return schedule.Window{StartHour: 10, EndHour: 22, MinEvents: 1, MaxEvents: 1}
}

type harness struct {
	clock  *fakeClock
	store  *state.Store
	log    *logger.MockLogger
	cancel context.CancelFunc
	ctx    context.Context

	mu    sync.Mutex
	fired []time.Time
}

// newHarness builds a runner whose fire callback records the fake time
// of each event and cancels the context after cancelAfter fires.
func newHarness(t *testing.T, startAt time.Time, cancelAfter int) (*harness, *Runner) {
	t.Helper()
	h := &harness{
		clock: newFakeClock(startAt),
		log:   logger.NewMockLogger(),
	}
	h.store = state.NewStore(afero.NewMemMapFs(), "state.json", h.log)
	h.ctx, h.cancel = context.WithCancel(context.Background())

	fire := func(ctx context.Context) error {
		h.mu.Lock()
		h.fired = append(h.fired, h.clock.Now())
		count := len(h.fired)
		h.mu.Unlock()
		if count >= cancelAfter {
			h.cancel()
		}
		return nil
	}

	r := New(&Config{
		Window: testWindow(),
		Store:  h.store,
		Fire:   fire,
		Log:    h.log,
	}, &Dependencies{
		Now:   h.clock.Now,
		Sleep: h.clock.sleep,
		Rand:  rand.New(rand.NewSource(1)),
	})
	return h, r
}

func (h *harness) firedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fired)
}

func TestRun_DayRolloverReplacesSchedule(t *testing.T) {
	startAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	h, r := newHarness(t, startAt, 1)
	defer h.cancel()

	// A leftover schedule from yesterday must be discarded whole.
	h.store.Save(state.State{
		Date:    "2026-05-31",
		Pending: []time.Time{startAt.Add(-20 * time.Hour)},
	})

	if err := r.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.firedCount() != 1 {
		t.Fatalf("expected exactly one fire, got %d", h.firedCount())
	}
	st := h.store.Load()
	if st.Date != "2026-06-01" {
		t.Fatalf("expected fresh schedule dated 2026-06-01, got %s", st.Date)
	}
	if len(st.Pending) != 0 {
		t.Fatalf("expected consumed schedule, got %d pending", len(st.Pending))
	}
}

func TestRun_ResumePurgesStaleEntries(t *testing.T) {
	startAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	h, r := newHarness(t, startAt, 1)
	defer h.cancel()

	h.store.Save(state.State{
		Date: "2026-06-01",
		Pending: []time.Time{
			startAt.Add(-time.Hour), // elapsed while the daemon was down
			startAt.Add(2 * time.Hour),
		},
	})

	if err := r.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the future entry fires; the stale one is skipped silently.
	if h.firedCount() != 1 {
		t.Fatalf("expected one fire, got %d", h.firedCount())
	}
	h.mu.Lock()
	firedAt := h.fired[0]
	h.mu.Unlock()
	if firedAt.Before(startAt.Add(2 * time.Hour)) {
		t.Fatalf("stale entry fired at %v", firedAt)
	}
	if st := h.store.Load(); len(st.Pending) != 0 {
		t.Fatalf("expected empty pending after consumption, got %d", len(st.Pending))
	}
}

func TestRun_ConsumptionRemovesOnlyFiredSlot(t *testing.T) {
	startAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	h, r := newHarness(t, startAt, 1)
	defer h.cancel()

	first := startAt.Add(2 * time.Hour)
	second := startAt.Add(6 * time.Hour)
	h.store.Save(state.State{Date: "2026-06-01", Pending: []time.Time{first, second}})

	if err := r.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := h.store.Load()
	if len(st.Pending) != 1 {
		t.Fatalf("expected one remaining slot, got %d", len(st.Pending))
	}
	if !st.Pending[0].Equal(second) {
		t.Fatalf("wrong slot survived: %v, want %v", st.Pending[0], second)
	}
}

func TestRun_FireErrorIsNonFatal(t *testing.T) {
	startAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	h, r := newHarness(t, startAt, 2)
	defer h.cancel()

	// Replace the harness fire with one that fails on the first call.
	calls := 0
	r.config.Fire = func(ctx context.Context) error {
		calls++
		h.mu.Lock()
		h.fired = append(h.fired, h.clock.Now())
		h.mu.Unlock()
		if calls == 1 {
			return context.DeadlineExceeded
		}
		h.cancel()
		return nil
	}

	h.store.Save(state.State{
		Date: "2026-06-01",
		Pending: []time.Time{
			startAt.Add(time.Hour),
			startAt.Add(3 * time.Hour),
		},
	})

	if err := r.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.firedCount() != 2 {
		t.Fatalf("expected the loop to continue past the failure, fired %d", h.firedCount())
	}
	if st := h.store.Load(); len(st.Pending) != 0 {
		t.Fatalf("failed fire must still consume its slot, got %d pending", len(st.Pending))
	}
	found := false
	for _, w := range h.log.WarningCalls {
		if strings.Contains(w, "commit cycle failed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warning for the failed cycle, got %v", h.log.WarningCalls)
	}
}

func TestRun_IdleWhenWindowElapsed(t *testing.T) {
	startAt := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
	h, _ := newHarness(t, startAt, 1)

	// Cancel on the first idle sleep chunk instead of waiting for a fire.
	sleeps := 0
	r := New(&Config{
		Window: testWindow(),
		Store:  h.store,
		Fire:   func(ctx context.Context) error { t.Fatal("nothing should fire"); return nil },
		Log:    h.log,
	}, &Dependencies{
		Now: h.clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps++
			h.cancel()
			return h.clock.sleep(ctx, d)
		},
		Rand: rand.New(rand.NewSource(1)),
	})

	if err := r.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, msg := range h.log.InfoCalls {
		if strings.Contains(msg, "No commits left today") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected idle log line, got %v", h.log.InfoCalls)
	}
}

func TestRun_CancellationLatency(t *testing.T) {
	// Real clock and real chunked sleeping: an event a full hour away
	// must not delay shutdown beyond one chunk.
	log := logger.NewMockLogger()
	store := state.NewStore(afero.NewMemMapFs(), "state.json", log)
	now := time.Now()
	store.Save(state.State{
		Date:    schedule.Day(now),
		Pending: []time.Time{now.Add(time.Hour)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	r := New(&Config{
		Window: testWindow(),
		Store:  store,
		Fire:   func(ctx context.Context) error { t.Error("nothing should fire"); return nil },
		Log:    log,
	}, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not observe cancellation promptly")
	}
}

func TestRun_PanicIsReportedAsError(t *testing.T) {
	startAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	h, r := newHarness(t, startAt, 1)
	defer h.cancel()

	r.config.Fire = func(ctx context.Context) error {
		panic("side effect exploded")
	}
	h.store.Save(state.State{
		Date:    "2026-06-01",
		Pending: []time.Time{startAt.Add(time.Hour)},
	})

	err := r.Run(h.ctx)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic to surface as an error, got %v", err)
	}
	if len(h.log.ErrorCalls) == 0 {
		t.Fatal("expected the panic to be logged")
	}
}

func TestRun_EndToEndSingleCommitDay(t *testing.T) {
	// Window 10:00-22:00, one commit per day, daemon starts at 09:00.
	startAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(startAt)
	log := logger.NewMockLogger()
	fs := afero.NewMemMapFs()
	store := state.NewStore(fs, "state.json", log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rng := rand.New(rand.NewSource(1))
	commits := 0
	fire := func(fireCtx context.Context) error {
		if err := activity.Append(fs, "repo", "farm_activity.md", clock.Now(), rng); err != nil {
			return err
		}
		commits++
		cancel()
		return nil
	}

	r := New(&Config{
		Window: testWindow(),
		Store:  store,
		Fire:   fire,
		Log:    log,
	}, &Dependencies{Now: clock.Now, Sleep: clock.sleep, Rand: rng})

	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if commits != 1 {
		t.Fatalf("expected one commit cycle, got %d", commits)
	}
	data, err := afero.ReadFile(fs, "repo/farm_activity.md")
	if err != nil {
		t.Fatalf("activity file missing: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Activity Log\n") {
		t.Fatalf("activity file missing header: %q", content)
	}
	if strings.Count(content, "\n- ") != 1 {
		t.Fatalf("expected exactly one activity line: %q", content)
	}
	firedAt := clock.Now()
	dayStart, dayEnd := testWindow().Bounds(startAt)
	if firedAt.Before(dayStart) || firedAt.After(dayEnd) {
		t.Fatalf("commit fired outside the window: %v", firedAt)
	}
	if st := store.Load(); len(st.Pending) != 0 {
		t.Fatalf("expected empty pending after the day's single commit, got %d", len(st.Pending))
	}
}
