package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/dedup"
	"faceattend/internal/httpapi"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logging"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App, log *logrus.Logger) error {
	cal, err := cfg.Calendar()
	if err != nil {
		return err
	}

	ctx := context.Background()
	led, err := store.OpenLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	checks := map[string]httpapi.Check{"ledger": led.Ping}

	var (
		cache attendance.Cache
		q     queue.Queue
		rdb   *store.Redis
	)
	if cfg.CacheBackend == "redis" || cfg.QueueBackend == "redis" {
		rdb = store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Client.Ping(ctx).Err() }
	}
	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	if cfg.CacheBackend == "redis" {
		cache = dedup.NewRedisCache(rdb.Client)
	} else {
		mc := dedup.NewMemoryCache()
		go mc.Run(workCtx)
		cache = mc
	}

	coord := attendance.NewCoordinator(cal, cache, led, attendance.Options{
		TTL:     cfg.DedupTTL,
		Retries: cfg.StoreRetries,
		Backoff: cfg.StoreRetryBackoff,
		Logger:  log,
		Metrics: attendance.NewMetrics(prometheus.DefaultRegisterer),
	})

	switch cfg.QueueBackend {
	case "redis":
		q = queue.NewRedisQueue(rdb.Client, cfg.QueueKey, log)
	case "memory":
		// No separate worker can reach an in-process queue, so drain it here.
		mq := queue.NewInMemory(64)
		q = mq
		go func() {
			if _, err := queue.Work(workCtx, mq, coord, cfg.CheckInTimeout, log); err != nil {
				log.WithError(err).Error("in-process worker stopped")
			}
		}()
	}

	apiCfg := httpapi.Config{
		Calendar:    cal,
		Checkins:    coord,
		Ledger:      led,
		Tokens:      auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Limiter:     httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Checks:      checks,
		EnrollKey:   cfg.EnrollKey,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	}
	if q != nil {
		apiCfg.Queue = q
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(apiCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.HTTPPort,
			"ledger":   cfg.LedgerBackend,
			"cache":    cfg.CacheBackend,
			"timezone": cal.Location().String(),
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	log.Info("server exited")
	return nil
}
