package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/ledger"
	"faceattend/internal/logging"
	"faceattend/internal/shift"
)

// Submitter runs a detection through the check-in pipeline.
type Submitter interface {
	Submit(ctx context.Context, d attendance.Detection) attendance.Outcome
}

// Publisher hands a detection to the worker queue.
type Publisher interface {
	Publish(ctx context.Context, d attendance.Detection) error
}

// Ledger is the read and directory side of the ledger the API exposes.
type Ledger interface {
	List(ctx context.Context, f ledger.Filter) ([]ledger.Record, error)
	UpsertPerson(ctx context.Context, p ledger.Person) error
	ListPeople(ctx context.Context, activeOnly bool) ([]ledger.Person, error)
}

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// Config wires the router. Queue may be nil, in which case /v1/detections answers 503.
type Config struct {
	Calendar    *shift.Calendar
	Checkins    Submitter
	Ledger      Ledger
	Queue       Publisher
	Tokens      *auth.Issuer
	Limiter     *httpmiddleware.TokenBucket
	Checks      map[string]Check
	Metrics     http.Handler
	EnrollKey   string
	CORSOrigins []string
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

type server struct {
	Config
	log logrus.FieldLogger
}

// NewRouter builds the HTTP surface of the attendance engine.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	s := &server{Config: cfg, log: logging.OrDiscard(cfg.Logger)}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(cfg.Metrics))
	r.GET("/healthz", s.health)

	byIP := cfg.Limiter.Middleware(httpmiddleware.ClientIP)
	r.POST("/v1/devices/register", byIP, s.registerDevice)
	r.POST("/v1/devices/refresh", byIP, s.refreshDevice)

	v1 := r.Group("/v1", auth.DeviceAuth(cfg.Tokens), cfg.Limiter.Middleware(deviceKey))
	v1.POST("/checkins", s.checkIn)
	v1.POST("/detections", s.enqueue)
	v1.GET("/attendance", s.listAttendance)
	v1.GET("/reports", s.report)
	v1.GET("/people", s.listPeople)
	v1.POST("/people", s.upsertPerson)
	return r
}

// deviceKey rate-limits authenticated calls per device rather than per address.
func deviceKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Subject != "" {
		return "device:" + claims.Subject
	}
	return httpmiddleware.ClientIP(c)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Enroll-Key"},
		MaxAge:       24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func requestLogger(log logrus.FieldLogger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Checks {
		healthy := check(ctx) == nil
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
