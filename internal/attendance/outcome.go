package attendance

import (
	"fmt"
	"time"

	"faceattend/internal/shift"
)

// Result is the closed set of check-in results.
type Result string

const (
	Recorded        Result = "recorded"
	AlreadyRecorded Result = "already_recorded"
	Failed          Result = "failed"
)

// Source says which layer decided an AlreadyRecorded result.
type Source string

const (
	SourceCache    Source = "cache"
	SourceLedger   Source = "ledger"
	SourceConflict Source = "conflict" // lost the insert race to a concurrent check-in
)

// Detection is one recognized face from the pipeline.
type Detection struct {
	PersonID       string    `json:"person_id"`
	At             time.Time `json:"at"`
	RecognizedFace bool      `json:"recognized_face"`
}

// Outcome reports what a check-in attempt did.
type Outcome struct {
	Result   Result       `json:"result"`
	PersonID string       `json:"person_id"`
	Shift    string       `json:"shift,omitempty"`
	Day      string       `json:"day,omitempty"`
	Status   shift.Status `json:"status,omitempty"` // set when Recorded
	RecordID string       `json:"record_id,omitempty"`
	Source   Source       `json:"source,omitempty"`
	Reason   error        `json:"-"` // set when Failed
}

func (o Outcome) String() string {
	switch o.Result {
	case Recorded:
		return fmt.Sprintf("recorded %s %s %s: %s", o.PersonID, o.Day, o.Shift, o.Status)
	case AlreadyRecorded:
		return fmt.Sprintf("already recorded %s %s %s (%s)", o.PersonID, o.Day, o.Shift, o.Source)
	default:
		return fmt.Sprintf("failed %s: %v", o.PersonID, o.Reason)
	}
}
