// Package bootstrap opens the process-wide dependencies shared by the
// server and worker binaries.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/studio-platform/internal/config"
	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/pkg/logger"
	"github.com/ignite/studio-platform/internal/repository/postgres"
	"github.com/ignite/studio-platform/internal/segmentation"
)

// OpenDatabase connects to Postgres with the configured pool limits and
// verifies the connection.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required (DATABASE_URL)")
	}
	db, err := sql.Open("postgres", withConnectTimeout(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func withConnectTimeout(dsn string) string {
	if strings.Contains(dsn, "connect_timeout") || !strings.Contains(dsn, "://") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "connect_timeout=5"
}

// OpenRedis returns a connected client, or nil when Redis is not configured
// or unreachable. Callers treat nil as "no cache, Postgres locks".
func OpenRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled() {
		logger.Info("redis not configured; membership cache disabled, using PG advisory locks")
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; falling back to PG advisory locks", "addr", opts.Addr, "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", opts.Addr)
	return client
}

// LoadCatalog reads the plan catalog from S3, a file, or the embedded
// default, then merges extra price mappings from config.
func LoadCatalog(ctx context.Context, cfg config.PlansConfig) (*featuregate.Catalog, error) {
	src, origin, err := catalogSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(cfg.Prices) > 0 {
		if c, err = c.WithPrices(cfg.Prices); err != nil {
			return nil, err
		}
	}
	logger.Info("plan catalog loaded", "source", origin, "prices", len(c.Prices))
	return c, nil
}

func catalogSource(ctx context.Context, cfg config.PlansConfig) (featuregate.Source, string, error) {
	switch {
	case cfg.UsesS3():
		client, err := featuregate.NewS3Client(ctx, featuregate.S3Options{
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Profile:         cfg.GetAWSProfile(),
		})
		if err != nil {
			return nil, "", err
		}
		return featuregate.S3Source(client, cfg.S3Bucket, cfg.S3Key), "s3://" + cfg.S3Bucket + "/" + cfg.S3Key, nil
	case cfg.File != "":
		return featuregate.FileSource(cfg.File), cfg.File, nil
	default:
		return featuregate.EmbeddedSource(), "embedded", nil
	}
}

// NewEngine builds the segment engine over Postgres with the configured
// push-down mode, and a membership cache when Redis is available.
func NewEngine(db *sql.DB, rdb *redis.Client, cfg config.SegmentationConfig) *segmentation.Engine {
	opts := []segmentation.Option{segmentation.WithPushDown(cfg.PushDown)}
	if rdb != nil {
		opts = append(opts, segmentation.WithMembershipCache(segmentation.NewMembershipCache(rdb, cfg.CacheTTL())))
	}
	return segmentation.NewEngine(postgres.NewContactRepo(db), opts...)
}
