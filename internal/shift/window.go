package shift

import (
	"fmt"
	"strings"
	"time"
)

// Shift names known to the calendar.
const (
	Morning   = "morning"
	Afternoon = "afternoon"
)

// Status is the label an attendance record receives.
type Status string

const (
	StatusEarly   Status = "early"
	StatusInTime  Status = "in_time"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusUnknown Status = "unknown"
)

// Statuses lists every status in bucket order.
var Statuses = []Status{StatusEarly, StatusInTime, StatusLate, StatusAbsent, StatusUnknown}

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Window is one daily shift. All boundaries are times of day expressed as
// offsets from local midnight.
type Window struct {
	Name         string
	Start        time.Duration
	ToleranceEnd time.Duration
	LateEnd      time.Duration
	End          time.Duration
}

// NewWindow builds a window from a start, the in_time tolerance and the
// late cutoff (both measured from start) and an end.
func NewWindow(name string, start, tolerance, lateAfter, end time.Duration) Window {
	return Window{
		Name:         name,
		Start:        start,
		ToleranceEnd: start + tolerance,
		LateEnd:      start + lateAfter,
		End:          end,
	}
}

// Validate checks start <= toleranceEnd <= lateEnd <= end, all within one day.
func (w Window) Validate() error {
	field := func(f string) string { return w.Name + "." + f }
	switch {
	case w.Name == "":
		return &ConfigError{Field: "name", Reason: "empty shift name"}
	case w.Start < 0 || w.End > 24*time.Hour:
		return &ConfigError{Field: field("start"), Reason: "window must lie within one day"}
	case w.ToleranceEnd < w.Start:
		return &ConfigError{Field: field("tolerance_end"), Reason: "tolerance end before start"}
	case w.LateEnd < w.ToleranceEnd:
		return &ConfigError{Field: field("late_end"), Reason: "late end before tolerance end"}
	case w.End < w.LateEnd:
		return &ConfigError{Field: field("end"), Reason: "end before late end"}
	case w.End <= w.Start:
		return &ConfigError{Field: field("end"), Reason: "empty window"}
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("%s[%s,%s) tolerance<%s late<%s", w.Name,
		FormatClock(w.Start), FormatClock(w.End), FormatClock(w.ToleranceEnd), FormatClock(w.LateEnd))
}

// StatusAt buckets a time of day into a status. Every interval is half-open,
// so a value equal to a boundary lands in the later bucket.
func StatusAt(offset time.Duration, w Window) Status {
	switch {
	case offset < w.Start:
		return StatusEarly
	case offset < w.ToleranceEnd:
		return StatusInTime
	case offset < w.LateEnd:
		return StatusLate
	case offset < w.End:
		return StatusAbsent
	default:
		return StatusUnknown
	}
}

// ParseClock parses "15:04" or "15:04:05" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, &ConfigError{Field: "clock", Reason: fmt.Sprintf("invalid time of day %q", s)}
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// FormatClock renders an offset from midnight as HH:MM.
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// ConfigError reports an invalid shift configuration. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "shift config: " + e.Field + ": " + e.Reason
}
