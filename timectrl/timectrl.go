package timectrl

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"
)

// ErrInvalidWindow is returned when a window's end is not after its start.
var ErrInvalidWindow = errors.New("window end must be after start")

// Window is the closed simulation interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates and returns [start, end].
func NewWindow(start, end time.Time) (Window, error) {
	if !end.After(start) {
		return Window{}, fmt.Errorf("%w: [%s, %s]", ErrInvalidWindow,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Window{Start: start, End: end}, nil
}

// WindowFrom returns [start, start+d].
func WindowFrom(start time.Time, d time.Duration) (Window, error) {
	return NewWindow(start, start.Add(d))
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Clamp moves t into [Start, End].
func (w Window) Clamp(t time.Time) time.Time {
	if t.Before(w.Start) {
		return w.Start
	}
	if t.After(w.End) {
		return w.End
	}
	return t
}

// Ticks yields Start, Start+step, ... and always finishes on End. A
// non-positive step yields just Start and End.
func (w Window) Ticks(step time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if step <= 0 {
			if yield(w.Start) {
				yield(w.End)
			}
			return
		}
		for k := 0; ; k++ {
			// Multiply rather than accumulate so long windows do not drift.
			t := w.Start.Add(time.Duration(k) * step)
			if !t.Before(w.End) {
				break
			}
			if !yield(t) {
				return
			}
		}
		yield(w.End)
	}
}

// Clock abstracts wall-clock time so budgets can be tested deterministically.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                  { return time.Now() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Since returns the fake time elapsed since t.
func (c *FakeClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
