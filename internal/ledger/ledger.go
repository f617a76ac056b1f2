// Package ledger is the durable, authoritative store of attendance records.
//
// Every backend enforces one record per (person, shift, calendar day) with a
// uniqueness constraint; Insert reports a violation as ErrDuplicate.
package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"faceattend/internal/shift"
)

// Record is one attendance entry. Records are never updated or deleted.
type Record struct {
	ID             string       `json:"id"`
	PersonID       string       `json:"person_id"`
	Shift          string       `json:"shift"`
	Day            string       `json:"day"`
	CheckIn        time.Time    `json:"check_in"`
	Status         shift.Status `json:"status"`
	RecognizedFace bool         `json:"recognized_face"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Person is a directory entry.
type Person struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Filter narrows List. Zero values are ignored; Limit defaults to 50.
type Filter struct {
	PersonID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Store is the full surface every backend implements.
type Store interface {
	ExistsInWindow(ctx context.Context, personID string, from, to time.Time) (bool, error)
	Insert(ctx context.Context, rec Record) (string, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	UpsertPerson(ctx context.Context, p Person) error
	ListPeople(ctx context.Context, activeOnly bool) ([]Person, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// ErrDuplicate means a record for the same person, shift and day already exists.
var ErrDuplicate = errors.New("ledger: attendance already recorded")

// TransientError wraps a storage failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return "ledger: " + e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a network, timeout or contention failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// connection_exception, transaction_rollback, insufficient_resources, operator_intervention
		for _, class := range []string{"08", "40", "53", "57P"} {
			if strings.HasPrefix(pgErr.Code, class) {
				return true
			}
		}
		return false
	}
	if pgconn.Timeout(err) {
		return true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func wrap(op string, err error) error {
	if IsTransient(err) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("ledger: %s: %w", op, err)
}

func validate(rec Record) error {
	switch {
	case rec.PersonID == "":
		return errors.New("ledger: person id required")
	case rec.Shift == "" || rec.Day == "":
		return errors.New("ledger: shift and day required")
	case !rec.Status.Valid():
		return errors.New("ledger: invalid status " + string(rec.Status))
	case rec.CheckIn.IsZero():
		return errors.New("ledger: check-in time required")
	}
	return nil
}
