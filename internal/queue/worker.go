package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/logging"
)

// Submitter is the check-in entry point a worker feeds.
type Submitter interface {
	Submit(ctx context.Context, d attendance.Detection) attendance.Outcome
}

// Work consumes q until ctx is done, submitting each detection under timeout.
// It returns the number of detections handled.
func Work(ctx context.Context, q Queue, s Submitter, timeout time.Duration, log logrus.FieldLogger) (int, error) {
	log = logging.OrDiscard(log)
	detections, err := q.Consume(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for d := range detections {
		n++
		out := process(ctx, s, d, timeout)
		entry := log.WithFields(logrus.Fields{
			"person_id": d.PersonID,
			"at":        d.At,
			"result":    out.Result,
		})
		if out.Result == attendance.Failed {
			entry.WithError(out.Reason).Warn("detection not recorded")
			continue
		}
		entry.Debug(out.String())
	}
	return n, nil
}

func process(ctx context.Context, s Submitter, d attendance.Detection, timeout time.Duration) attendance.Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Submit(ctx, d)
}
