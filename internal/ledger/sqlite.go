package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"faceattend/internal/shift"
)

// sqliteTime is fixed width so stored timestamps compare correctly as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLite persists attendance in a single SQLite file, for one-box installs.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an open database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func encodeTime(t time.Time) string { return t.UTC().Format(sqliteTime) }

func decodeTime(s string) (time.Time, error) { return time.Parse(sqliteTime, s) }

// Migrate applies the embedded schema.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := migrate(ctx, s.db, "migrations/sqlite", "INSERT INTO schema_migrations (version) VALUES (?)")
	return err
}

// Ping checks the file is usable.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// ExistsInWindow reports whether personID has a record with check-in in [from, to).
func (s *SQLite) ExistsInWindow(ctx context.Context, personID string, from, to time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE person_id = ? AND check_in >= ? AND check_in < ?
		)
	`, personID, encodeTime(from), encodeTime(to)).Scan(&exists)
	if err != nil {
		return false, wrap("exists", err)
	}
	return exists, nil
}

// Insert writes rec and returns its id, or ErrDuplicate.
func (s *SQLite) Insert(ctx context.Context, rec Record) (string, error) {
	if err := validate(rec); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, person_id, shift_name, shift_day, check_in, status, recognized_face, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.PersonID, rec.Shift, rec.Day, encodeTime(rec.CheckIn), string(rec.Status), rec.RecognizedFace, encodeTime(time.Now()))
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return "", ErrDuplicate
	}
	if err != nil {
		return "", wrap("insert", err)
	}
	return rec.ID, nil
}

// List returns records newest first.
func (s *SQLite) List(ctx context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	query := `SELECT id, person_id, shift_name, shift_day, check_in, status, recognized_face, created_at FROM attendance_records`
	var (
		args    []any
		clauses []string
	)
	if f.PersonID != "" {
		clauses = append(clauses, "person_id = ?")
		args = append(args, f.PersonID)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "check_in >= ?")
		args = append(args, encodeTime(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "check_in < ?")
		args = append(args, encodeTime(f.To))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY check_in DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var (
			rec                Record
			status             string
			checkIn, createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.PersonID, &rec.Shift, &rec.Day, &checkIn, &status, &rec.RecognizedFace, &createdAt); err != nil {
			return nil, wrap("list", err)
		}
		if rec.CheckIn, err = decodeTime(checkIn); err != nil {
			return nil, wrap("list", err)
		}
		if rec.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, wrap("list", err)
		}
		rec.Status = shift.Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// UpsertPerson creates or renames a directory entry.
func (s *SQLite) UpsertPerson(ctx context.Context, person Person) error {
	if person.ID == "" {
		return errors.New("ledger: person id required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (id, name, active)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, person.ID, person.Name, person.Active)
	if err != nil {
		return wrap("upsert person", err)
	}
	return nil
}

// ListPeople returns directory entries ordered by id.
func (s *SQLite) ListPeople(ctx context.Context, activeOnly bool) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active FROM people
		WHERE active = 1 OR ? = 0
		ORDER BY id
	`, activeOnly)
	if err != nil {
		return nil, wrap("list people", err)
	}
	defer rows.Close()
	var people []Person
	for rows.Next() {
		var person Person
		if err := rows.Scan(&person.ID, &person.Name, &person.Active); err != nil {
			return nil, wrap("list people", err)
		}
		people = append(people, person)
	}
	return people, rows.Err()
}
