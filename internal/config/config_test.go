package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/shift"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEDUP_TTL", "")
	t.Setenv("STORE_RETRIES", "")
	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.DedupTTL)
	assert.Equal(t, 2, cfg.StoreRetries)
	assert.Equal(t, "08:30", cfg.Shifts.Morning.Start)
	assert.Equal(t, "12:00", cfg.Shifts.Boundary)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DEDUP_TTL", "36h")
	t.Setenv("STORE_RETRIES", "5")
	t.Setenv("HOLIDAYS", "2026-01-07, 2026-01-19,")
	t.Setenv("CHECKIN_TIMEOUT", "not-a-duration")
	cfg := Load()

	assert.Equal(t, 36*time.Hour, cfg.DedupTTL)
	assert.Equal(t, 5, cfg.StoreRetries)
	assert.Equal(t, []string{"2026-01-07", "2026-01-19"}, cfg.Holidays)
	assert.Equal(t, 3*time.Second, cfg.CheckInTimeout, "invalid value falls back")
}

func defaultShifts() Shifts {
	return Shifts{
		Timezone:  "UTC",
		Boundary:  "12:00",
		Tolerance: "10m",
		LateAfter: "1h",
		Morning:   ShiftPeriod{Start: "08:30", End: "12:00"},
		Afternoon: ShiftPeriod{Start: "13:00", End: "17:00"},
	}
}

func TestShiftsCalendar(t *testing.T) {
	cal, err := defaultShifts().Calendar()
	require.NoError(t, err)

	w, ok := cal.Window(shift.Morning)
	require.True(t, ok)
	assert.Equal(t, 8*time.Hour+30*time.Minute, w.Start)
	assert.Equal(t, 8*time.Hour+40*time.Minute, w.ToleranceEnd)
	assert.Equal(t, 9*time.Hour+30*time.Minute, w.LateEnd)
	assert.Equal(t, 12*time.Hour, w.End)
}

func TestShiftsCalendar_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Shifts)
	}{
		{"bad timezone", func(s *Shifts) { s.Timezone = "Mars/Olympus" }},
		{"bad clock", func(s *Shifts) { s.Morning.Start = "8h30" }},
		{"bad tolerance", func(s *Shifts) { s.Tolerance = "ten minutes" }},
		{"negative tolerance", func(s *Shifts) { s.Afternoon.Tolerance = "-5m" }},
		{"late window past end", func(s *Shifts) { s.LateAfter = "5h" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultShifts()
			tt.mutate(&s)
			_, err := s.Calendar()
			var cfgErr *shift.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestLoadShiftsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shifts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Africa/Addis_Ababa
morning:
  start: "09:00"
afternoon:
  start: "14:00"
  end: "18:00"
  tolerance: 15m
`), 0o600))

	s, err := LoadShiftsFile(path, defaultShifts())
	require.NoError(t, err)
	assert.Equal(t, "Africa/Addis_Ababa", s.Timezone)
	assert.Equal(t, "09:00", s.Morning.Start)
	assert.Equal(t, "12:00", s.Morning.End, "unset fields keep their values")
	assert.Equal(t, "15m", s.Afternoon.Tolerance)

	cal, err := s.Calendar()
	require.NoError(t, err)
	w, _ := cal.Window(shift.Afternoon)
	assert.Equal(t, 14*time.Hour+15*time.Minute, w.ToleranceEnd)
	assert.Equal(t, 15*time.Hour, w.LateEnd)
}

func TestLoadShiftsFile_Missing(t *testing.T) {
	_, err := LoadShiftsFile(filepath.Join(t.TempDir(), "nope.yaml"), defaultShifts())
	assert.Error(t, err)
}
