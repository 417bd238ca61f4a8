// Package quiet implements the daily quiet hours window during which notifications are deferred
// and the summary flush schedule that follows it.
package quiet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a daily time-of-day range in a fixed location, with a daily flush instant.
// Start is inclusive, End is exclusive, a window with Start after End wraps midnight.
type Window struct {
	start, end, flushAt int // minutes since midnight
	loc                 *time.Location
}

// NewWindow makes a window from "HH:MM" clock strings
func NewWindow(start, end, flushAt string, loc *time.Location) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	f, err := ParseClock(flushAt)
	if err != nil {
		return Window{}, fmt.Errorf("flush_at: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Window{start: s, end: e, flushAt: f, loc: loc}, nil
}

// ParseClock parses "HH:MM" into minutes since midnight
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Location returns the window's time zone
func (w Window) Location() *time.Location {
	if w.loc == nil {
		return time.UTC
	}
	return w.loc
}

// Contains reports whether t falls inside quiet hours
func (w Window) Contains(t time.Time) bool {
	if w.start == w.end {
		return false
	}
	lt := t.In(w.Location())
	m := lt.Hour()*60 + lt.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

// LastFlush returns the most recent flush instant at or before now
func (w Window) LastFlush(now time.Time) time.Time {
	lt := now.In(w.Location())
	res := time.Date(lt.Year(), lt.Month(), lt.Day(), w.flushAt/60, w.flushAt%60, 0, 0, w.Location())
	if res.After(lt) {
		res = res.AddDate(0, 0, -1)
	}
	return res
}

// FlushDue reports whether deferred entries should be flushed now.
// It is due when a flush instant passed after the oldest queued entry, so a missed
// flush tick is picked up by the next run after it.
func (w Window) FlushDue(now, oldestQueuedAt time.Time) bool {
	if oldestQueuedAt.IsZero() {
		return false
	}
	return w.LastFlush(now).After(oldestQueuedAt)
}

// String returns a readable form of the window
func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d (flush %02d:%02d %s)",
		w.start/60, w.start%60, w.end/60, w.end%60, w.flushAt/60, w.flushAt%60, w.Location())
}
