package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/absence"
	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/dedup"
	"faceattend/internal/logging"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes queued detections, records check-ins, and sweeps absences.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	cal, err := cfg.Calendar()
	if err != nil {
		log.WithError(err).Fatal("invalid shift configuration")
	}
	if cfg.QueueBackend != "redis" {
		log.WithField("queue_backend", cfg.QueueBackend).Fatal("worker needs the redis queue")
	}

	led, err := store.OpenLedger(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("ledger open failed")
	}
	defer led.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.WithField("addr", cfg.RedisAddr).Warn("redis not reachable yet, the queue will keep retrying")
	}

	var wg sync.WaitGroup
	var cache attendance.Cache = dedup.NewRedisCache(rdb.Client)
	if cfg.CacheBackend == "memory" {
		mc := dedup.NewMemoryCache()
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.Run(ctx)
		}()
		cache = mc
	}
	coord := attendance.NewCoordinator(cal, cache, led, attendance.Options{
		TTL:     cfg.DedupTTL,
		Retries: cfg.StoreRetries,
		Backoff: cfg.StoreRetryBackoff,
		Logger:  log,
		Metrics: attendance.NewMetrics(prometheus.DefaultRegisterer),
	})

	if cfg.MetricsPort != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil {
				log.WithError(err).Warn("metrics listener stopped")
			}
		}()
	}

	if cfg.SweepInterval > 0 {
		sweeper := absence.New(cal, led, led, absence.Options{Holidays: cfg.Holidays, Logger: log})
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx, cfg.SweepInterval)
		}()
	}

	q := queue.NewRedisQueue(rdb.Client, cfg.QueueKey, log)
	log.WithField("queue", cfg.QueueKey).Info("worker started, waiting for detections")
	n, err := queue.Work(ctx, q, coord, cfg.CheckInTimeout, log)
	if err != nil {
		log.WithError(err).Fatal("queue consume init failed")
	}
	wg.Wait()
	log.WithField("processed", n).Info("worker stopped")
}
