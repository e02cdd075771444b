package timectrl

import (
	"errors"
	"slices"
	"testing"
	"time"
)

var start = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestNewWindowRejectsEmpty(t *testing.T) {
	if _, err := NewWindow(start, start); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("zero-length window err = %v, want ErrInvalidWindow", err)
	}
	if _, err := NewWindow(start, start.Add(-time.Second)); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("reversed window err = %v, want ErrInvalidWindow", err)
	}
	w, err := WindowFrom(start, time.Hour)
	if err != nil || w.Duration() != time.Hour {
		t.Fatalf("WindowFrom = %+v, %v", w, err)
	}
}

func TestWindowClampAndContains(t *testing.T) {
	w, _ := WindowFrom(start, 100*time.Second)

	if got := w.Clamp(start.Add(-time.Second)); !got.Equal(w.Start) {
		t.Fatalf("Clamp(before) = %v, want Start", got)
	}
	if got := w.Clamp(start.Add(200 * time.Second)); !got.Equal(w.End) {
		t.Fatalf("Clamp(after) = %v, want End", got)
	}
	mid := start.Add(40 * time.Second)
	if got := w.Clamp(mid); !got.Equal(mid) || !w.Contains(mid) {
		t.Fatalf("Clamp(mid) = %v", got)
	}
	if w.Contains(w.End.Add(time.Nanosecond)) {
		t.Fatalf("Contains accepted a time after End")
	}
}

func TestTicksEndOnWindowEnd(t *testing.T) {
	w, _ := WindowFrom(start, 25*time.Second)

	got := slices.Collect(w.Ticks(10 * time.Second))
	want := []time.Time{start, start.Add(10 * time.Second), start.Add(20 * time.Second), start.Add(25 * time.Second)}
	if !slices.EqualFunc(got, want, time.Time.Equal) {
		t.Fatalf("Ticks = %v, want %v", got, want)
	}

	exact, _ := WindowFrom(start, 20*time.Second)
	if n := len(slices.Collect(exact.Ticks(10 * time.Second))); n != 3 {
		t.Fatalf("exact multiple produced %d ticks, want 3", n)
	}

	if n := len(slices.Collect(w.Ticks(0))); n != 2 {
		t.Fatalf("zero step produced %d ticks, want 2", n)
	}
}

func TestTicksEarlyBreak(t *testing.T) {
	w, _ := WindowFrom(start, time.Hour)
	n := 0
	for range w.Ticks(time.Second) {
		n++
		if n == 5 {
			break
		}
	}
	if n != 5 {
		t.Fatalf("iterated %d times, want 5", n)
	}
}

func TestFakeClockAdvance(t *testing.T) {
	c := NewFakeClock(start)
	c.Advance(3 * time.Second)
	if got := c.Since(start); got != 3*time.Second {
		t.Fatalf("Since = %v, want 3s", got)
	}
	if !c.Now().Equal(start.Add(3 * time.Second)) {
		t.Fatalf("Now = %v", c.Now())
	}
}
