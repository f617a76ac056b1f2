package shift

import (
	"time"
)

// DayLayout is the calendar-day format used in keys and the ledger.
const DayLayout = "2006-01-02"

// Config describes the operating timezone and the two daily shifts.
type Config struct {
	Location  *time.Location
	Boundary  time.Duration // timestamps before this time of day belong to Morning
	Morning   Window
	Afternoon Window
}

// DefaultConfig returns the stock schedule: morning 08:30-12:00, afternoon
// 13:00-17:00, ten minutes of tolerance and a one hour late window.
func DefaultConfig(loc *time.Location) Config {
	return Config{
		Location:  loc,
		Boundary:  12 * time.Hour,
		Morning:   NewWindow(Morning, 8*time.Hour+30*time.Minute, 10*time.Minute, time.Hour, 12*time.Hour),
		Afternoon: NewWindow(Afternoon, 13*time.Hour, 10*time.Minute, time.Hour, 17*time.Hour),
	}
}

// Slot is the shift a timestamp falls into on a given calendar day.
type Slot struct {
	Window Window
	Day    string
	// From and To bound every timestamp Resolve maps to this slot,
	// [midnight, boundary) for morning and [boundary, next midnight) for afternoon.
	From time.Time
	To   time.Time
}

// Calendar maps timestamps to shifts in a single fixed timezone.
type Calendar struct {
	loc       *time.Location
	boundary  time.Duration
	morning   Window
	afternoon Window
}

// NewCalendar validates cfg and returns a calendar.
func NewCalendar(cfg Config) (*Calendar, error) {
	if cfg.Location == nil {
		return nil, &ConfigError{Field: "timezone", Reason: "location required"}
	}
	if cfg.Boundary <= 0 || cfg.Boundary >= 24*time.Hour {
		return nil, &ConfigError{Field: "boundary", Reason: "must be inside the day"}
	}
	cfg.Morning.Name, cfg.Afternoon.Name = Morning, Afternoon
	for _, w := range []Window{cfg.Morning, cfg.Afternoon} {
		if err := w.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Morning.Start >= cfg.Boundary {
		return nil, &ConfigError{Field: "morning.start", Reason: "starts after the shift boundary"}
	}
	if cfg.Morning.End > cfg.Boundary {
		return nil, &ConfigError{Field: "morning.end", Reason: "ends after the shift boundary"}
	}
	if cfg.Afternoon.Start < cfg.Boundary {
		return nil, &ConfigError{Field: "afternoon.start", Reason: "starts before the shift boundary"}
	}
	return &Calendar{
		loc:       cfg.Location,
		boundary:  cfg.Boundary,
		morning:   cfg.Morning,
		afternoon: cfg.Afternoon,
	}, nil
}

// Location returns the operating timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Windows returns both shifts in day order.
func (c *Calendar) Windows() []Window { return []Window{c.morning, c.afternoon} }

// Window looks up a shift by name.
func (c *Calendar) Window(name string) (Window, bool) {
	switch name {
	case Morning:
		return c.morning, true
	case Afternoon:
		return c.afternoon, true
	}
	return Window{}, false
}

// Resolve maps ts to its shift and calendar day.
func (c *Calendar) Resolve(ts time.Time) Slot {
	local := ts.In(c.loc)
	if c.offset(local) < c.boundary {
		return c.slot(local, c.morning)
	}
	return c.slot(local, c.afternoon)
}

// ComputeStatus labels ts against w using the calendar's timezone.
func (c *Calendar) ComputeStatus(ts time.Time, w Window) Status {
	return StatusAt(c.offset(ts.In(c.loc)), w)
}

// SlotOn returns the named shift's slot on the calendar day containing day.
func (c *Calendar) SlotOn(day time.Time, name string) (Slot, bool) {
	w, ok := c.Window(name)
	if !ok {
		return Slot{}, false
	}
	return c.slot(day.In(c.loc), w), true
}

// At returns the instant of time-of-day offset on the calendar day of day.
func (c *Calendar) At(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.In(c.loc).Date()
	return time.Date(y, m, d,
		int(offset/time.Hour), int(offset%time.Hour/time.Minute),
		int(offset%time.Minute/time.Second), int(offset%time.Second), c.loc)
}

// Day formats the calendar day of ts.
func (c *Calendar) Day(ts time.Time) string {
	return ts.In(c.loc).Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD day in the calendar's timezone.
func (c *Calendar) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, c.loc)
}

func (c *Calendar) slot(local time.Time, w Window) Slot {
	s := Slot{Window: w, Day: local.Format(DayLayout)}
	if w.Name == Morning {
		s.From, s.To = c.At(local, 0), c.At(local, c.boundary)
	} else {
		s.From, s.To = c.At(local, c.boundary), c.At(local, 24*time.Hour)
	}
	return s
}

// offset is the wall-clock time of day, which stays correct on DST days.
func (c *Calendar) offset(local time.Time) time.Duration {
	h, m, s := local.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(local.Nanosecond())
}
