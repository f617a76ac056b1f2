package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faceattend/internal/absence"
	"faceattend/internal/attendance"
	"faceattend/internal/ledger"
	"faceattend/internal/report"
	"faceattend/internal/shift"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply ledger schema migrations",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			// Opening the ledger already migrated it.
			fmt.Fprintf(cmd.OutOrStdout(), "%s ledger is up to date\n", e.cfg.LedgerBackend)
			return nil
		}),
	}
}

func newCheckInCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin <person-id>",
		Short: "Record a check-in by hand",
		Long: `Record a check-in for a person, as if the camera had recognized them.

Example:
  attendctl checkin emp-042
  attendctl checkin emp-042 --at 2026-03-02T08:45:00+03:00 --no-face`,
		Args: cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			at := time.Now()
			if v := mustGetString(cmd, "at"); v != "" {
				var err error
				if at, err = time.Parse(time.RFC3339, v); err != nil {
					return fmt.Errorf("--at: want RFC3339: %w", err)
				}
			}
			out := e.coordinator().Submit(cmd.Context(), attendance.Detection{
				PersonID:       args[0],
				At:             at,
				RecognizedFace: !mustGetBool(cmd, "no-face"),
			})
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			if out.Result == attendance.Failed {
				return errors.New("check-in failed")
			}
			return nil
		}),
	}
	cmd.Flags().String("at", "", "Check-in time in RFC3339 (default now)")
	cmd.Flags().Bool("no-face", false, "Mark the record as not backed by a face recognition")
	return cmd
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark people without a record as absent",
		Long: `Write absent records for every active person who has no record in an ended shift.
Weekends and HOLIDAYS are skipped. Without --shift both shifts are swept.`,
		Args: cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			day, err := dayFlag(cmd, "day", e.cal, time.Now())
			if err != nil {
				return err
			}
			names := []string{shift.Morning, shift.Afternoon}
			if v := mustGetString(cmd, "shift"); v != "" {
				names = []string{v}
			}
			sw := absence.New(e.cal, e.ledger, e.ledger, absence.Options{Holidays: e.cfg.Holidays, Logger: e.log})
			var errs []error
			for _, name := range names {
				res, err := sw.Sweep(cmd.Context(), day, name)
				switch {
				case errors.Is(err, absence.ErrShiftNotOver), errors.Is(err, absence.ErrUnknownShift):
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
				case res.NonWorkingDay:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: non-working day\n", res.Day, res.Shift)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d marked absent, %d present, %d failed\n",
						res.Day, res.Shift, res.Marked, res.Present, res.Failed)
					if err != nil {
						errs = append(errs, err)
					}
				}
			}
			return errors.Join(errs...)
		}),
	}
	cmd.Flags().String("day", "", "Day to sweep, YYYY-MM-DD (default today)")
	cmd.Flags().String("shift", "", "Shift to sweep: morning or afternoon")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <person-id>",
		Short: "Show a person's attendance in a date range",
		Long: `Show a person's records, newest first, with a count per status.
--from and --to are inclusive calendar days.`,
		Args: cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			var from, to time.Time
			if mustGetString(cmd, "from") != "" {
				var err error
				if from, err = dayFlag(cmd, "from", e.cal, time.Now()); err != nil {
					return err
				}
			}
			if mustGetString(cmd, "to") != "" {
				day, err := dayFlag(cmd, "to", e.cal, time.Now())
				if err != nil {
					return err
				}
				to = e.cal.At(day.AddDate(0, 0, 1), 0)
			}
			rep, err := report.Build(cmd.Context(), e.ledger, args[0], from, to)
			if err != nil {
				return err
			}
			printReport(cmd, e.cal, rep)
			return nil
		}),
	}
	cmd.Flags().String("from", "", "First day, YYYY-MM-DD")
	cmd.Flags().String("to", "", "Last day, YYYY-MM-DD")
	return cmd
}

func printReport(cmd *cobra.Command, cal *shift.Calendar, rep report.Report) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tSHIFT\tCHECK-IN\tSTATUS\tFACE")
	for _, r := range rep.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", r.Day, r.Shift, r.CheckIn.In(cal.Location()).Format("15:04:05"), r.Status, r.RecognizedFace)
	}
	_ = w.Flush()

	parts := make([]string, 0, len(shift.Statuses))
	for _, st := range shift.Statuses {
		if n := rep.Summary[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d records: %s\n", len(rep.Records), strings.Join(parts, " "))
}

func newPeopleCmd() *cobra.Command {
	people := &cobra.Command{
		Use:   "people",
		Short: "List and manage the people directory",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			list, err := e.ledger.ListPeople(cmd.Context(), mustGetBool(cmd, "active"))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tACTIVE")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%t\n", p.ID, p.Name, p.Active)
			}
			return w.Flush()
		}),
	}
	people.Flags().Bool("active", false, "Only list active people")

	add := &cobra.Command{
		Use:   "add <id> <name...>",
		Short: "Add or update a person",
		Long: `Add a person to the directory, or update their name and state.

Example:
  attendctl people add emp-042 Abebe Kebede
  attendctl people add emp-042 Abebe Kebede --inactive`,
		Args: cobra.MinimumNArgs(2),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			p := ledger.Person{ID: args[0], Name: strings.Join(args[1:], " "), Active: !mustGetBool(cmd, "inactive")}
			if err := e.ledger.UpsertPerson(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", p.ID, p.Name)
			return nil
		}),
	}
	add.Flags().Bool("inactive", false, "Exclude the person from absent sweeps")
	people.AddCommand(add)
	return people
}
