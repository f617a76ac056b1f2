package httpapi

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/ledger"
	"faceattend/internal/report"
)

type detectionRequest struct {
	PersonID       string     `json:"person_id" binding:"required"`
	At             *time.Time `json:"at"`
	RecognizedFace *bool      `json:"recognized_face"`
}

func (r detectionRequest) detection(now time.Time) attendance.Detection {
	d := attendance.Detection{PersonID: r.PersonID, At: now, RecognizedFace: true}
	if r.At != nil && !r.At.IsZero() {
		d.At = *r.At
	}
	if r.RecognizedFace != nil {
		d.RecognizedFace = *r.RecognizedFace
	}
	return d
}

func (s *server) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.EnrollKey != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Enroll-Key")), []byte(s.EnrollKey)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "enroll key mismatch"})
		return
	}
	tokens, err := s.Tokens.Issue(req.DeviceID, auth.RoleDevice)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	s.log.WithField("device_id", req.DeviceID).Info("device registered")
	c.JSON(http.StatusCreated, tokens)
}

func (s *server) refreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.Tokens.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *server) checkIn(c *gin.Context) {
	var req detectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := s.Checkins.Submit(c.Request.Context(), req.detection(s.Now()))

	code := http.StatusOK
	body := gin.H{"outcome": out}
	switch out.Result {
	case attendance.Recorded:
		code = http.StatusCreated
	case attendance.Failed:
		code = http.StatusServiceUnavailable
		if errors.Is(out.Reason, attendance.ErrPersonRequired) || errors.Is(out.Reason, attendance.ErrTimeRequired) {
			code = http.StatusBadRequest
		}
		body["error"] = out.Reason.Error()
		_ = c.Error(out.Reason)
	}
	c.JSON(code, body)
}

func (s *server) enqueue(c *gin.Context) {
	var req detectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.Queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue not configured"})
		return
	}
	if err := s.Queue.Publish(c.Request.Context(), req.detection(s.Now())); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue publish failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (s *server) listAttendance(c *gin.Context) {
	from, to, err := s.parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := ledger.Filter{PersonID: c.Query("person_id"), From: from, To: to}
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if f.Offset, err = intQuery(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := s.Ledger.List(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if recs == nil {
		recs = []ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (s *server) report(c *gin.Context) {
	personID := c.Query("person_id")
	if personID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "person_id required"})
		return
	}
	from, to, err := s.parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rep, err := report.Build(c.Request.Context(), s.Ledger, personID, from, to)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *server) listPeople(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	people, err := s.Ledger.ListPeople(c.Request.Context(), activeOnly)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if people == nil {
		people = []ledger.Person{}
	}
	c.JSON(http.StatusOK, gin.H{"people": people})
}

func (s *server) upsertPerson(c *gin.Context) {
	var req struct {
		ID     string `json:"id" binding:"required"`
		Name   string `json:"name"`
		Active *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := ledger.Person{ID: req.ID, Name: req.Name, Active: req.Active == nil || *req.Active}
	if err := s.Ledger.UpsertPerson(c.Request.Context(), p); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

// parseRange reads from/to as RFC3339 instants or calendar days. A day in
// "to" is inclusive, so it extends to the following midnight.
func (s *server) parseRange(c *gin.Context) (from, to time.Time, err error) {
	if from, err = s.parseBound(c.Query("from"), false); err != nil {
		return from, to, fmt.Errorf("from: %w", err)
	}
	if to, err = s.parseBound(c.Query("to"), true); err != nil {
		return from, to, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}

func (s *server) parseBound(v string, end bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	day, err := s.Calendar.ParseDay(v)
	if err != nil {
		return time.Time{}, errors.New("want RFC3339 or YYYY-MM-DD")
	}
	if end {
		return s.Calendar.At(day.AddDate(0, 0, 1), 0), nil
	}
	return day, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
