package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"faceattend/internal/shift"
)

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

// Postgres persists attendance in Postgres through the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps a pooled connection.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the embedded schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := migrate(ctx, p.db, "migrations/postgres", "INSERT INTO schema_migrations (version) VALUES ($1)")
	return err
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Close closes the pool.
func (p *Postgres) Close() error { return p.db.Close() }

// ExistsInWindow reports whether personID has a record with check-in in [from, to).
func (p *Postgres) ExistsInWindow(ctx context.Context, personID string, from, to time.Time) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE person_id = $1 AND check_in >= $2 AND check_in < $3
		)
	`, personID, from, to).Scan(&exists)
	if err != nil {
		return false, wrap("exists", err)
	}
	return exists, nil
}

// Insert writes rec and returns its id. A second record for the same
// person, shift and day loses to the unique constraint and gets ErrDuplicate.
func (p *Postgres) Insert(ctx context.Context, rec Record) (string, error) {
	if err := validate(rec); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var id string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, person_id, shift_name, shift_day, check_in, status, recognized_face)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT attendance_records_once DO NOTHING
		RETURNING id
	`, rec.ID, rec.PersonID, rec.Shift, rec.Day, rec.CheckIn, string(rec.Status), rec.RecognizedFace).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDuplicate
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return "", ErrDuplicate
	}
	if err != nil {
		return "", wrap("insert", err)
	}
	return id, nil
}

// List returns records newest first.
func (p *Postgres) List(ctx context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	query := `SELECT id, person_id, shift_name, shift_day::text, check_in, status, recognized_face, created_at FROM attendance_records`
	var (
		args    []any
		clauses []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.PersonID != "" {
		clauses = append(clauses, "person_id = "+arg(f.PersonID))
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "check_in >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "check_in < "+arg(f.To))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY check_in DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var (
			rec    Record
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.PersonID, &rec.Shift, &rec.Day, &rec.CheckIn, &status, &rec.RecognizedFace, &rec.CreatedAt); err != nil {
			return nil, wrap("list", err)
		}
		rec.Status = shift.Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// UpsertPerson creates or renames a directory entry.
func (p *Postgres) UpsertPerson(ctx context.Context, person Person) error {
	if person.ID == "" {
		return errors.New("ledger: person id required")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO people (id, name, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, person.ID, person.Name, person.Active)
	if err != nil {
		return wrap("upsert person", err)
	}
	return nil
}

// ListPeople returns directory entries ordered by id.
func (p *Postgres) ListPeople(ctx context.Context, activeOnly bool) ([]Person, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, active FROM people
		WHERE active OR NOT $1
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
