package gamification

import (
	"fmt"
	"strings"
	"time"
)

// Window names a leaderboard/aggregation period.
type Window string

const (
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

// Windows lists every supported window in display order.
func Windows() []Window {
	return []Window{WindowToday, WindowWeek, WindowMonth, WindowAll}
}

// ParseWindow resolves a textual window, defaulting empty input to week.
func ParseWindow(raw string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(raw))); w {
	case "":
		return WindowWeek, nil
	case WindowToday, WindowWeek, WindowMonth, WindowAll:
		return w, nil
	default:
		return "", fmt.Errorf("unknown window %q", raw)
	}
}

// WindowMode selects how week and month boundaries are drawn.
type WindowMode string

const (
	// ModeRolling uses now-7d and now-30d.
	ModeRolling WindowMode = "rolling"
	// ModeCalendar uses the ISO week (Monday start) and the calendar month.
	ModeCalendar WindowMode = "calendar"
)

const (
	rollingWeek  = 7 * 24 * time.Hour
	rollingMonth = 30 * 24 * time.Hour
)

// Range is a half-open time interval [Start, End). Nil bounds are unbounded.
type Range struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && !t.Before(*r.End) {
		return false
	}
	return true
}

// Intersect narrows r by o.
func (r Range) Intersect(o Range) Range {
	out := r
	if o.Start != nil && (out.Start == nil || o.Start.After(*out.Start)) {
		out.Start = o.Start
	}
	if o.End != nil && (out.End == nil || o.End.Before(*out.End)) {
		out.End = o.End
	}
	return out
}

// Policy fixes the window mode and the time zone in which days start.
type Policy struct {
	Mode     WindowMode
	Location *time.Location
}

// DefaultPolicy is rolling windows in UTC.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeRolling, Location: time.UTC}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Range resolves w relative to now.
func (p Policy) Range(w Window, now time.Time) Range {
	local := now.In(p.location())
	var start time.Time
	switch w {
	case WindowToday:
		start = startOfDay(local)
	case WindowWeek:
		if p.Mode == ModeCalendar {
			day := startOfDay(local)
			offset := (int(day.Weekday()) + 6) % 7
			start = day.AddDate(0, 0, -offset)
		} else {
			start = now.Add(-rollingWeek)
		}
	case WindowMonth:
		if p.Mode == ModeCalendar {
			start = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, local.Location())
		} else {
			start = now.Add(-rollingMonth)
		}
	default:
		return Range{}
	}
	return Range{Start: &start}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayNumber maps t to a DST-independent ordinal of its calendar day in loc.
func dayNumber(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
