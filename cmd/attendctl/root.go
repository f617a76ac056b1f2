package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/dedup"
	"faceattend/internal/ledger"
	"faceattend/internal/logging"
	"faceattend/internal/shift"
	"faceattend/internal/store"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "attendctl",
		Short: "Administer the attendance ledger",
		Long: `attendctl runs one-off operations against the attendance ledger:
schema migrations, manual check-ins, absent sweeps, reports and the people directory.

Configuration comes from the same environment variables (and .env file) as the API.`,
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(), newCheckInCmd(), newSweepCmd(), newReportCmd(), newPeopleCmd())
	return root
}

// env is what every subcommand needs, opened from config.
type env struct {
	cfg    config.App
	log    *logrus.Logger
	cal    *shift.Calendar
	ledger ledger.Store
	cache  attendance.Cache
	redis  *store.Redis
}

func openEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	e := &env{cfg: cfg, log: logging.New(cfg.LogLevel, cfg.LogFormat)}

	cal, err := cfg.Calendar()
	if err != nil {
		return nil, err
	}
	e.cal = cal

	if e.ledger, err = store.OpenLedger(ctx, cfg); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if cfg.CacheBackend == "redis" {
		e.redis = store.NewRedis(cfg.RedisAddr)
		e.cache = dedup.NewRedisCache(e.redis.Client)
	} else {
		e.cache = dedup.NewMemoryCache()
	}
	return e, nil
}

func (e *env) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.ledger.Close()
}

func (e *env) coordinator() *attendance.Coordinator {
	return attendance.NewCoordinator(e.cal, e.cache, e.ledger, attendance.Options{
		TTL:     e.cfg.DedupTTL,
		Retries: e.cfg.StoreRetries,
		Backoff: e.cfg.StoreRetryBackoff,
		Logger:  e.log,
	})
}

// withEnv opens the environment around a command body.
func withEnv(run func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return run(cmd, args, e)
	}
}
