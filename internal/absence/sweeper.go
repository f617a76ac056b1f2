// Package absence marks people who never checked in during a shift.
package absence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"faceattend/internal/ledger"
	"faceattend/internal/logging"
	"faceattend/internal/shift"
)

var (
	ErrShiftNotOver = errors.New("absence: shift has not ended yet")
	ErrUnknownShift = errors.New("absence: unknown shift")
)

// Directory lists the people expected at work.
type Directory interface {
	ListPeople(ctx context.Context, activeOnly bool) ([]ledger.Person, error)
}

// Ledger is the subset of the record store the sweeper writes to.
type Ledger interface {
	ExistsInWindow(ctx context.Context, personID string, from, to time.Time) (bool, error)
	Insert(ctx context.Context, rec ledger.Record) (string, error)
}

// Result summarizes one sweep.
type Result struct {
	Day           string
	Shift         string
	NonWorkingDay bool
	Marked        int // absent records written
	Present       int // already had a record
	Failed        int
}

// Options configures a Sweeper.
type Options struct {
	Holidays []string       // YYYY-MM-DD
	Weekend  []time.Weekday // defaults to Saturday and Sunday
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

// Sweeper writes absent records after each shift ends.
type Sweeper struct {
	cal      *shift.Calendar
	dir      Directory
	ledger   Ledger
	holidays map[string]bool
	weekend  map[time.Weekday]bool
	now      func() time.Time
	log      logrus.FieldLogger

	mu    sync.Mutex
	swept map[string]bool
}

// New creates a sweeper.
func New(cal *shift.Calendar, dir Directory, l Ledger, opts Options) *Sweeper {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Weekend == nil {
		opts.Weekend = []time.Weekday{time.Saturday, time.Sunday}
	}
	s := &Sweeper{
		cal:      cal,
		dir:      dir,
		ledger:   l,
		holidays: make(map[string]bool),
		weekend:  make(map[time.Weekday]bool),
		now:      opts.Now,
		log:      logging.OrDiscard(opts.Logger),
		swept:    make(map[string]bool),
	}
	for _, d := range opts.Holidays {
		s.holidays[d] = true
	}
	for _, d := range opts.Weekend {
		s.weekend[d] = true
	}
	return s
}

// NonWorkingDay reports whether day is a weekend day or a holiday.
func (s *Sweeper) NonWorkingDay(day time.Time) bool {
	local := day.In(s.cal.Location())
	return s.weekend[local.Weekday()] || s.holidays[local.Format(shift.DayLayout)]
}

// Sweep marks every active person without a record in the named shift on
// day as absent. Per-person failures are collected and the sweep continues.
func (s *Sweeper) Sweep(ctx context.Context, day time.Time, shiftName string) (Result, error) {
	slot, ok := s.cal.SlotOn(day, shiftName)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownShift, shiftName)
	}
	res := Result{Day: slot.Day, Shift: shiftName}
	if s.now().Before(s.cal.At(day, slot.Window.End)) {
		return res, ErrShiftNotOver
	}
	if s.NonWorkingDay(day) {
		res.NonWorkingDay = true
		return res, nil
	}

	people, err := s.dir.ListPeople(ctx, true)
	if err != nil {
		return res, fmt.Errorf("absence: list people: %w", err)
	}

	// Stamp absent records when the absent bucket opens, kept inside the slot
	// so the coordinator's window probe sees them.
	stamp := s.cal.At(day, slot.Window.LateEnd)
	if !stamp.Before(slot.To) {
		stamp = slot.To.Add(-time.Second)
	}

	var errs []error
	for _, p := range people {
		exists, err := s.ledger.ExistsInWindow(ctx, p.ID, slot.From, slot.To)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("person %s: %w", p.ID, err))
			continue
		}
		if exists {
			res.Present++
			continue
		}
		_, err = s.ledger.Insert(ctx, ledger.Record{
			PersonID: p.ID,
			Shift:    shiftName,
			Day:      slot.Day,
			CheckIn:  stamp,
			Status:   shift.StatusAbsent,
		})
		switch {
		case errors.Is(err, ledger.ErrDuplicate):
			res.Present++
		case err != nil:
			res.Failed++
			errs = append(errs, fmt.Errorf("person %s: %w", p.ID, err))
		default:
			res.Marked++
		}
	}
	return res, errors.Join(errs...)
}

// Run sweeps every ended shift of the current day once per process, checking
// each interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick sweeps the shifts of today that have ended and were not swept yet.
func (s *Sweeper) Tick(ctx context.Context) {
	now := s.now()
	for _, w := range s.cal.Windows() {
		key := s.cal.Day(now) + "/" + w.Name
		s.mu.Lock()
		done := s.swept[key]
		s.mu.Unlock()
		if done || now.Before(s.cal.At(now, w.End)) {
			continue
		}

		res, err := s.Sweep(ctx, now, w.Name)
		fields := logrus.Fields{"day": res.Day, "shift": res.Shift, "marked": res.Marked, "present": res.Present}
		if err != nil {
			s.log.WithError(err).WithFields(fields).Error("absent sweep incomplete")
			continue
		}
		s.mu.Lock()
		s.swept[key] = true
		s.mu.Unlock()
		if res.NonWorkingDay {
			s.log.WithFields(fields).Info("non-working day, absent sweep skipped")
			continue
		}
		s.log.WithFields(fields).Info("absent sweep done")
	}
}
