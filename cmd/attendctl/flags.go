package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"faceattend/internal/shift"
)

// mustGetString gets a string flag value or panics if the flag doesn't exist.
// Each command constructor registers its own flags, so an error here means a
// command body asked for a flag its constructor never defined.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// dayFlag parses a YYYY-MM-DD flag in the calendar's timezone. Empty means today.
func dayFlag(cmd *cobra.Command, name string, cal *shift.Calendar, now time.Time) (time.Time, error) {
	v := mustGetString(cmd, name)
	if v == "" {
		return cal.ParseDay(cal.Day(now))
	}
	day, err := cal.ParseDay(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD: %w", name, err)
	}
	return day, nil
}
