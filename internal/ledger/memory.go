package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type onceKey struct {
	personID, shift, day string
}

// Memory is a process-local ledger for dev and tests. It enforces the same
// uniqueness rule as the SQL backends.
type Memory struct {
	mu      sync.Mutex
	records []Record
	once    map[onceKey]string
	people  map[string]Person
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		once:   make(map[onceKey]string),
		people: make(map[string]Person),
	}
}

func (m *Memory) Migrate(context.Context) error { return nil }

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// ExistsInWindow reports whether personID has a record with check-in in [from, to).
func (m *Memory) ExistsInWindow(_ context.Context, personID string, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.PersonID == personID && !rec.CheckIn.Before(from) && rec.CheckIn.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

// Insert stores rec, or returns ErrDuplicate.
func (m *Memory) Insert(_ context.Context, rec Record) (string, error) {
	if err := validate(rec); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := onceKey{rec.PersonID, rec.Shift, rec.Day}
	if _, ok := m.once[k]; ok {
		return "", ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	m.once[k] = rec.ID
	m.records = append(m.records, rec)
	return rec.ID, nil
}

// List returns records newest first.
func (m *Memory) List(_ context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	m.mu.Lock()
	var res []Record
	for _, rec := range m.records {
		if f.PersonID != "" && rec.PersonID != f.PersonID {
			continue
		}
		if !f.From.IsZero() && rec.CheckIn.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !rec.CheckIn.Before(f.To) {
			continue
		}
		res = append(res, rec)
	}
	m.mu.Unlock()

	sort.SliceStable(res, func(i, j int) bool { return res[i].CheckIn.After(res[j].CheckIn) })
	if f.Offset >= len(res) {
		return nil, nil
	}
	res = res[f.Offset:]
	if len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) UpsertPerson(_ context.Context, p Person) error {
	if p.ID == "" {
		return errors.New("ledger: person id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.ID] = p
	return nil
}

func (m *Memory) ListPeople(_ context.Context, activeOnly bool) ([]Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Person
	for _, p := range m.people {
		if activeOnly && !p.Active {
			continue
		}
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
