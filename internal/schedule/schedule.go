// Package schedule generates the randomized daily commit schedule and
// answers ordering questions about it. A schedule is a sorted list of
// future timestamps inside the configured daily window; randomness is
// injected so tests can use a seeded source.
package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/adhocore/gronx"
)

// DayFormat is the calendar-day key used in the persisted state.
const DayFormat = "2006-01-02"

// Day returns the calendar day of t in state-key form.
func Day(t time.Time) string {
	return t.Format(DayFormat)
}

// Window describes the daily scheduling window and the event count bounds.
// It is immutable for the lifetime of the process.
type Window struct {
	// StartHour and EndHour bound the window, 0 <= StartHour < EndHour <= 23.
	StartHour int
	EndHour   int

	// MinEvents and MaxEvents bound the number of events drawn per day.
	MinEvents int
	MaxEvents int
}

// Bounds returns the window start and end instants for the day of t.
func (w Window) Bounds(t time.Time) (start, end time.Time) {
	year, month, day := t.Date()
	start = time.Date(year, month, day, w.StartHour, 0, 0, 0, t.Location())
	end = time.Date(year, month, day, w.EndHour, 0, 0, 0, t.Location())
	return start, end
}

// Generate produces the commit schedule for the day of now: a sorted
// list of distinct future timestamps inside the window. If the window
// has already elapsed it returns nil. When the daemon starts mid-window
// the schedule still spans the full window, but timestamps at or before
// now are discarded.
func Generate(now time.Time, w Window, rng *rand.Rand) []time.Time {
	dayStart, dayEnd := w.Bounds(now)
	if now.After(dayEnd) {
		return nil
	}

	span := int(dayEnd.Sub(dayStart) / time.Second)
	if span <= 0 {
		return nil
	}

	count := w.MinEvents + rng.Intn(w.MaxEvents-w.MinEvents+1)
	// Cannot sample more distinct second offsets than the window holds.
	if span < count {
		count = span
		if count < 1 {
			count = 1
		}
	}

	offsets := rng.Perm(span)[:count]
	sort.Ints(offsets)

	times := make([]time.Time, 0, count)
	for _, offset := range offsets {
		at := dayStart.Add(time.Duration(offset) * time.Second)
		if !at.After(now) {
			continue
		}
		times = append(times, at)
	}
	return times
}

// NextDue returns the earliest entry strictly after now. Entries in the
// past are skipped, never fired late: after a long outage the missed
// slots for the day are simply lost.
func NextDue(times []time.Time, now time.Time) (time.Time, bool) {
	for _, t := range times {
		if t.After(now) {
			return t, true
		}
	}
	return time.Time{}, false
}

// Remove returns times without the entry equal to at. Only exact matches
// are removed; the rest of the slice keeps its order.
func Remove(times []time.Time, at time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.Equal(at) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NextWindowStart returns the next instant strictly after now at which
// a window with the given start hour opens. Backed by the cron line
// "0 <hour> * * *".
func NextWindowStart(startHour int, now time.Time) time.Time {
	expr := fmt.Sprintf("0 %d * * *", startHour)
	next, err := gronx.NextTickAfter(expr, now, false)
	if err != nil {
		// Unreachable with a validated hour; fall back to tomorrow.
		year, month, day := now.AddDate(0, 0, 1).Date()
		return time.Date(year, month, day, startHour, 0, 0, 0, now.Location())
	}
	return next
}
