package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/studio-platform/internal/api"
	"github.com/ignite/studio-platform/internal/bootstrap"
	"github.com/ignite/studio-platform/internal/config"
	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/pkg/distlock"
	"github.com/ignite/studio-platform/internal/pkg/logger"
	"github.com/ignite/studio-platform/internal/repository/postgres"
	"github.com/ignite/studio-platform/internal/service/audience"
	"github.com/ignite/studio-platform/internal/service/segment"
	"github.com/ignite/studio-platform/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("server exited", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(configPath string) error {
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
	logger.Info("database connected")

	rdb := bootstrap.OpenRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	catalog, err := bootstrap.LoadCatalog(ctx, cfg.Plans)
	if err != nil {
		return err
	}
	gate := featuregate.New(catalog)

	engine := bootstrap.NewEngine(db, rdb, cfg.Segmentation)
	segSvc := segment.NewService(postgres.NewSegmentRepo(db), engine)
	audSvc := audience.NewService(postgres.NewTenantRepo(db), engine, gate)

	// Without Redis there is no membership cache to warm. The refresh worker
	// can also run as its own process (cmd/worker).
	if cfg.Worker.Enabled && rdb != nil {
		w := worker.NewMembershipRefreshWorker(segSvc, func(key string) distlock.DistLock {
			return distlock.NewRedisLock(rdb, key, cfg.Worker.LockTTL())
		}, cfg.Worker.Interval())
		w.Start(ctx)
		defer w.Stop()
	}

	var plansBucket api.BucketHeader
	if cfg.Plans.UsesS3() {
		if client, err := featuregate.NewS3Client(ctx, featuregate.S3Options{
			Region:          cfg.Plans.S3Region,
			AccessKeyID:     cfg.Plans.AccessKeyID,
			SecretAccessKey: cfg.Plans.SecretAccessKey,
			Profile:         cfg.Plans.GetAWSProfile(),
		}); err == nil {
			plansBucket = client
		}
	}
	health := api.NewHealthChecker(db, rdb, plansBucket, cfg.Plans.S3Bucket)

	server := api.NewServer(api.NewHandlers(segSvc, audSvc, gate), health, api.RouteOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultOrgID:   cfg.Server.DefaultOrgID,
		RequestTimeout: cfg.Server.RequestTimeout(),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		logger.Info("starting server", "addr", addr, "push_down", cfg.Segmentation.PushDown)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
