package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"faceattend/internal/dedup"
	"faceattend/internal/ledger"
	"faceattend/internal/logging"
	"faceattend/internal/shift"
)

// Cache is the dedup marker store.
type Cache interface {
	Exists(ctx context.Context, key dedup.Key) (bool, error)
	Set(ctx context.Context, key dedup.Key, ttl time.Duration) error
}

// Ledger is the authoritative record store.
type Ledger interface {
	ExistsInWindow(ctx context.Context, personID string, from, to time.Time) (bool, error)
	Insert(ctx context.Context, rec ledger.Record) (string, error)
}

var (
	ErrPersonRequired = errors.New("person id required")
	ErrTimeRequired   = errors.New("detection time required")
)

// Options tunes a Coordinator. Zero values pick the defaults.
type Options struct {
	TTL     time.Duration // dedup marker lifetime, default 24h
	Retries int           // extra attempts for transient ledger errors
	Backoff time.Duration // first retry delay, doubled per attempt
	Logger  logrus.FieldLogger
	Metrics *Metrics
}

// Coordinator records at most one attendance per person, shift and day.
// It holds no per-request state and is safe for concurrent use.
type Coordinator struct {
	cal     *shift.Calendar
	cache   Cache
	ledger  Ledger
	ttl     time.Duration
	retries int
	backoff time.Duration
	log     logrus.FieldLogger
	metrics *Metrics
}

// NewCoordinator wires the calendar, cache and ledger together.
func NewCoordinator(cal *shift.Calendar, cache Cache, l Ledger, opts Options) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = dedup.DefaultTTL
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 50 * time.Millisecond
	}
	return &Coordinator{
		cal:     cal,
		cache:   cache,
		ledger:  l,
		ttl:     opts.TTL,
		retries: opts.Retries,
		backoff: opts.Backoff,
		log:     logging.OrDiscard(opts.Logger),
		metrics: opts.Metrics,
	}
}

// CheckIn records a recognized-face check-in for personID at ts.
func (c *Coordinator) CheckIn(ctx context.Context, personID string, ts time.Time) Outcome {
	return c.Submit(ctx, Detection{PersonID: personID, At: ts, RecognizedFace: true})
}

// Submit decides whether d creates a record. It never panics on storage
// failures; those come back as a Failed outcome with the cache untouched.
func (c *Coordinator) Submit(ctx context.Context, d Detection) Outcome {
	start := time.Now()
	out := c.submit(ctx, d)
	c.metrics.observe(out, time.Since(start))
	return out
}

func (c *Coordinator) submit(ctx context.Context, d Detection) Outcome {
	out := Outcome{PersonID: d.PersonID}
	switch {
	case d.PersonID == "":
		return c.failed(out, ErrPersonRequired)
	case d.At.IsZero():
		return c.failed(out, ErrTimeRequired)
	}

	slot := c.cal.Resolve(d.At)
	status := c.cal.ComputeStatus(d.At, slot.Window)
	out.Shift, out.Day = slot.Window.Name, slot.Day
	key := dedup.Key{PersonID: d.PersonID, Day: slot.Day, Shift: slot.Window.Name}

	hit, err := c.cache.Exists(ctx, key)
	switch {
	case err != nil:
		c.metrics.cacheProbe("error")
		c.log.WithError(err).WithField("key", key.String()).Warn("dedup cache probe failed, falling back to ledger")
	case hit:
		c.metrics.cacheProbe("hit")
		return already(out, SourceCache)
	default:
		c.metrics.cacheProbe("miss")
	}

	exists, err := withRetry(ctx, c, "exists", func() (bool, error) {
		return c.ledger.ExistsInWindow(ctx, d.PersonID, slot.From, slot.To)
	})
	if err != nil {
		return c.failed(out, err)
	}
	if exists {
		c.populate(ctx, key)
		return already(out, SourceLedger)
	}

	id, err := withRetry(ctx, c, "insert", func() (string, error) {
		return c.ledger.Insert(ctx, ledger.Record{
			PersonID:       d.PersonID,
			Shift:          slot.Window.Name,
			Day:            slot.Day,
			CheckIn:        d.At,
			Status:         status,
			RecognizedFace: d.RecognizedFace,
		})
	})
	if errors.Is(err, ledger.ErrDuplicate) {
		c.populate(ctx, key)
		return already(out, SourceConflict)
	}
	if err != nil {
		return c.failed(out, err)
	}

	c.populate(ctx, key)
	out.Result, out.Status, out.RecordID = Recorded, status, id
	c.log.WithFields(logrus.Fields{
		"person_id": d.PersonID,
		"shift":     slot.Window.Name,
		"day":       slot.Day,
		"status":    status,
		"record_id": id,
	}).Info("checked in")
	return out
}

// populate is only reached once the ledger holds the record, so a marker
// never hides a check-in that was not stored.
func (c *Coordinator) populate(ctx context.Context, key dedup.Key) {
	if err := c.cache.Set(ctx, key, c.ttl); err != nil {
		c.log.WithError(err).WithField("key", key.String()).Warn("dedup cache populate failed")
	}
}

func (c *Coordinator) failed(out Outcome, err error) Outcome {
	out.Result, out.Reason = Failed, err
	c.log.WithError(err).WithFields(logrus.Fields{
		"person_id": out.PersonID,
		"shift":     out.Shift,
		"day":       out.Day,
	}).Error("check-in failed")
	return out
}

func already(out Outcome, src Source) Outcome {
	out.Result, out.Source = AlreadyRecorded, src
	return out
}

// withRetry runs fn again after transient ledger errors, doubling the delay.
// Other errors stop it at once and come back unwrapped.
func withRetry[T any](ctx context.Context, c *Coordinator, op string, fn func() (T, error)) (T, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.backoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.retries)), ctx)

	var lastErr error
	attempt := 0
	v, err := backoff.RetryNotifyWithData(func() (T, error) {
		v, err := fn()
		if err != nil && !ledger.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		lastErr = err
		return v, err
	}, b, func(err error, next time.Duration) {
		attempt++
		c.metrics.retry()
		c.log.WithError(err).WithFields(logrus.Fields{"op": op, "attempt": attempt, "wait": next}).Debug("retrying ledger operation")
	})
	if err != nil && ctx.Err() != nil && lastErr != nil && !errors.Is(err, lastErr) {
		err = errors.Join(lastErr, err)
	}
	return v, err
}
