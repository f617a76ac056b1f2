package absence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/ledger"
	"faceattend/internal/shift"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T, now *time.Time, opts Options) (*Sweeper, *ledger.Memory) {
	t.Helper()
	cal, err := shift.NewCalendar(shift.DefaultConfig(time.UTC))
	require.NoError(t, err)
	l := ledger.NewMemory()
	ctx := context.Background()
	for _, p := range []ledger.Person{{ID: "a", Active: true}, {ID: "b", Active: true}, {ID: "c", Active: true}, {ID: "gone"}} {
		require.NoError(t, l.UpsertPerson(ctx, p))
	}
	opts.Now = func() time.Time { return *now }
	return New(cal, l, l, opts), l
}

func TestSweep_MarksMissingPeopleAbsent(t *testing.T) {
	ctx := context.Background()
	now := monday.Add(12 * time.Hour)
	s, l := setup(t, &now, Options{})

	_, err := l.Insert(ctx, ledger.Record{PersonID: "a", Shift: shift.Morning, Day: "2026-03-02", CheckIn: monday.Add(7 * time.Hour), Status: shift.StatusEarly})
	require.NoError(t, err)

	res, err := s.Sweep(ctx, monday, shift.Morning)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Marked)
	assert.Equal(t, 1, res.Present)

	recs, err := l.List(ctx, ledger.Filter{PersonID: "b"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, shift.StatusAbsent, recs[0].Status)
	assert.False(t, recs[0].RecognizedFace)
	assert.Equal(t, monday.Add(9*time.Hour+30*time.Minute), recs[0].CheckIn)

	// A second sweep finds everyone present.
	res, err = s.Sweep(ctx, monday, shift.Morning)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Marked)
	assert.Equal(t, 3, res.Present)
	assert.Equal(t, 3, l.Len())
}

func TestSweep_BeforeShiftEnd(t *testing.T) {
	now := monday.Add(11 * time.Hour)
	s, l := setup(t, &now, Options{})
	_, err := s.Sweep(context.Background(), monday, shift.Morning)
	assert.ErrorIs(t, err, ErrShiftNotOver)
	assert.Equal(t, 0, l.Len())
}

func TestSweep_UnknownShift(t *testing.T) {
	now := monday.Add(23 * time.Hour)
	s, _ := setup(t, &now, Options{})
	_, err := s.Sweep(context.Background(), monday, "night")
	assert.ErrorIs(t, err, ErrUnknownShift)
}

func TestSweep_SkipsWeekendsAndHolidays(t *testing.T) {
	ctx := context.Background()
	now := monday.Add(8 * 24 * time.Hour)
	s, l := setup(t, &now, Options{Holidays: []string{"2026-03-02"}})

	res, err := s.Sweep(ctx, monday, shift.Afternoon)
	require.NoError(t, err)
	assert.True(t, res.NonWorkingDay)

	saturday := monday.Add(5 * 24 * time.Hour)
	res, err = s.Sweep(ctx, saturday, shift.Morning)
	require.NoError(t, err)
	assert.True(t, res.NonWorkingDay)
	assert.Equal(t, 0, l.Len())

	tuesday := monday.Add(24 * time.Hour)
	res, err = s.Sweep(ctx, tuesday, shift.Morning)
	require.NoError(t, err)
	assert.False(t, res.NonWorkingDay)
	assert.Equal(t, 3, res.Marked)
}

type failingLedger struct {
	*ledger.Memory
	failFor string
}

func (f failingLedger) Insert(ctx context.Context, rec ledger.Record) (string, error) {
	if rec.PersonID == f.failFor {
		return "", errors.New("insert failed")
	}
	return f.Memory.Insert(ctx, rec)
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	now := monday.Add(18 * time.Hour)
	cal, err := shift.NewCalendar(shift.DefaultConfig(time.UTC))
	require.NoError(t, err)
	mem := ledger.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.UpsertPerson(ctx, ledger.Person{ID: "a", Active: true}))
	require.NoError(t, mem.UpsertPerson(ctx, ledger.Person{ID: "b", Active: true}))

	s := New(cal, mem, failingLedger{Memory: mem, failFor: "a"}, Options{Now: func() time.Time { return now }})
	res, err := s.Sweep(ctx, monday, shift.Afternoon)
	assert.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Marked)
}

func TestTick_SweepsEndedShiftsOnce(t *testing.T) {
	ctx := context.Background()
	now := monday.Add(12*time.Hour + time.Minute)
	s, l := setup(t, &now, Options{})

	s.Tick(ctx)
	assert.Equal(t, 3, l.Len(), "morning swept, afternoon still open")

	s.Tick(ctx)
	assert.Equal(t, 3, l.Len())

	now = monday.Add(17 * time.Hour)
	s.Tick(ctx)
	assert.Equal(t, 6, l.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	now := monday.Add(20 * time.Hour)
	s, l := setup(t, &now, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return l.Len() == 6 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
