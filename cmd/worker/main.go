package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/studio-platform/internal/bootstrap"
	"github.com/ignite/studio-platform/internal/config"
	"github.com/ignite/studio-platform/internal/pkg/distlock"
	"github.com/ignite/studio-platform/internal/pkg/logger"
	"github.com/ignite/studio-platform/internal/repository/postgres"
	"github.com/ignite/studio-platform/internal/service/segment"
	"github.com/ignite/studio-platform/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single refresh cycle and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		logger.Error("worker exited", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(configPath string, once bool) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return err
	}
	logger.Configure(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		RedactPII:   cfg.Log.RedactPII,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := bootstrap.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := bootstrap.OpenRedis(ctx, cfg.Redis)
	if rdb == nil {
		return errors.New("membership refresh needs Redis (REDIS_URL) for the membership cache")
	}
	defer rdb.Close()

	engine := bootstrap.NewEngine(db, rdb, cfg.Segmentation)
	segSvc := segment.NewService(postgres.NewSegmentRepo(db), engine)

	w := worker.NewMembershipRefreshWorker(segSvc, func(key string) distlock.DistLock {
		return distlock.NewRedisLock(rdb, key, cfg.Worker.LockTTL())
	}, cfg.Worker.Interval())

	if once {
		stats := w.RunOnce(ctx)
		if stats.Failed > 0 {
			return errors.New("one or more organizations failed to refresh")
		}
		return nil
	}

	w.Start(ctx)
	<-ctx.Done()
	logger.Info("shutting down")
	w.Stop()
	return nil
}
