package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/shift"
)

var morning = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func record(person string, at time.Time, status shift.Status) Record {
	name := shift.Morning
	if at.Hour() >= 12 {
		name = shift.Afternoon
	}
	return Record{
		PersonID:       person,
		Shift:          name,
		Day:            at.Format(shift.DayLayout),
		CheckIn:        at,
		Status:         status,
		RecognizedFace: true,
	}
}

// runStoreSuite exercises the behaviour every backend shares.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("InsertAndExists", func(t *testing.T) {
		s := open(t)
		at := morning.Add(8*time.Hour + 35*time.Minute)

		ok, err := s.ExistsInWindow(ctx, "p1", morning, morning.Add(12*time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		id, err := s.Insert(ctx, record("p1", at, shift.StatusInTime))
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		ok, err = s.ExistsInWindow(ctx, "p1", morning, morning.Add(12*time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)

		// Half-open: the window ending exactly at the check-in excludes it.
		ok, err = s.ExistsInWindow(ctx, "p1", morning, at)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.ExistsInWindow(ctx, "p2", morning, morning.Add(12*time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		s := open(t)
		_, err := s.Insert(ctx, record("p1", morning.Add(8*time.Hour), shift.StatusEarly))
		require.NoError(t, err)
		_, err = s.Insert(ctx, record("p1", morning.Add(9*time.Hour), shift.StatusLate))
		assert.ErrorIs(t, err, ErrDuplicate)

		// A different shift or day is a different record.
		_, err = s.Insert(ctx, record("p1", morning.Add(13*time.Hour), shift.StatusInTime))
		require.NoError(t, err)
		_, err = s.Insert(ctx, record("p1", morning.Add(32*time.Hour), shift.StatusInTime))
		require.NoError(t, err)
	})

	t.Run("ConcurrentInsertsOneWins", func(t *testing.T) {
		s := open(t)
		var (
			wg   sync.WaitGroup
			won  atomic.Int32
			dups atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Insert(ctx, record("p1", morning.Add(8*time.Hour+time.Duration(i)*time.Second), shift.StatusEarly))
				switch {
				case err == nil:
					won.Add(1)
				case errors.Is(err, ErrDuplicate):
					dups.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), won.Load())
		assert.Equal(t, int32(15), dups.Load())
	})

	t.Run("InvalidRecord", func(t *testing.T) {
		s := open(t)
		_, err := s.Insert(ctx, Record{PersonID: "p1"})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicate)

		rec := record("p1", morning.Add(8*time.Hour), "present")
		_, err = s.Insert(ctx, rec)
		assert.Error(t, err)
	})

	t.Run("List", func(t *testing.T) {
		s := open(t)
		for i, p := range []string{"p1", "p2", "p1"} {
			at := morning.Add(time.Duration(i) * 24 * time.Hour).Add(8 * time.Hour)
			_, err := s.Insert(ctx, record(p, at, shift.StatusEarly))
			require.NoError(t, err)
		}

		all, err := s.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].CheckIn.After(all[1].CheckIn), "newest first")
		assert.True(t, all[0].CheckIn.Equal(morning.Add(56*time.Hour)))
		assert.Equal(t, shift.StatusEarly, all[0].Status)
		assert.Equal(t, "2026-03-04", all[0].Day)
		assert.True(t, all[0].RecognizedFace)

		mine, err := s.List(ctx, Filter{PersonID: "p1"})
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		ranged, err := s.List(ctx, Filter{From: morning.Add(24 * time.Hour), To: morning.Add(48 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, ranged, 1)
		assert.Equal(t, "p2", ranged[0].PersonID)

		page, err := s.List(ctx, Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "p2", page[0].PersonID)
	})

	t.Run("People", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.UpsertPerson(ctx, Person{ID: "b", Name: "Melaku", Active: true}))
		require.NoError(t, s.UpsertPerson(ctx, Person{ID: "a", Name: "Efa", Active: true}))
		require.NoError(t, s.UpsertPerson(ctx, Person{ID: "c", Name: "Gone", Active: false}))
		require.NoError(t, s.UpsertPerson(ctx, Person{ID: "b", Name: "Melaku T.", Active: true}))
		assert.Error(t, s.UpsertPerson(ctx, Person{Name: "nobody"}))

		active, err := s.ListPeople(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "a", active[0].ID)
		assert.Equal(t, "Melaku T.", active[1].Name)

		all, err := s.ListPeople(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

func openSQLite(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendance.db")
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	s := NewSQLite(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, openSQLite)
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	s := openSQLite(t).(*SQLite)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrDuplicate))
	assert.False(t, IsTransient(errors.New("syntax error")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(&TransientError{Op: "insert", Err: errors.New("reset")}))
}

func TestWrap(t *testing.T) {
	err := wrap("insert", context.DeadlineExceeded)
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "insert", te.Op)

	err = wrap("insert", errors.New("boom"))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "ledger: insert")
}
