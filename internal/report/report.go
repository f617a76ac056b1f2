package report

import (
	"context"
	"errors"
	"time"

	"faceattend/internal/ledger"
	"faceattend/internal/shift"
)

// pageSize bounds each List call while walking a range.
const pageSize = 500

// Lister reads records from the ledger.
type Lister interface {
	List(ctx context.Context, f ledger.Filter) ([]ledger.Record, error)
}

// Report is one person's records in a range with counts per status.
type Report struct {
	PersonID string               `json:"person_id"`
	From     time.Time            `json:"from"`
	To       time.Time            `json:"to"`
	Records  []ledger.Record      `json:"records"`
	Summary  map[shift.Status]int `json:"summary"`
}

// Build collects personID's records with check-in in [from, to), newest first.
// A zero from or to leaves that side open.
func Build(ctx context.Context, l Lister, personID string, from, to time.Time) (Report, error) {
	if personID == "" {
		return Report{}, errors.New("report: person id required")
	}
	r := Report{PersonID: personID, From: from, To: to, Summary: make(map[shift.Status]int)}
	for offset := 0; ; offset += pageSize {
		page, err := l.List(ctx, ledger.Filter{PersonID: personID, From: from, To: to, Limit: pageSize, Offset: offset})
		if err != nil {
			return Report{}, err
		}
		for _, rec := range page {
			r.Summary[rec.Status]++
		}
		r.Records = append(r.Records, page...)
		if len(page) < pageSize {
			return r, nil
		}
	}
}
