package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/studio-platform/internal/config"
	"github.com/ignite/studio-platform/internal/featuregate"
)

func TestWithConnectTimeout(t *testing.T) {
	assert.Equal(t, "postgres://u@h/db?connect_timeout=5", withConnectTimeout("postgres://u@h/db"))
	assert.Equal(t, "postgres://u@h/db?sslmode=disable&connect_timeout=5",
		withConnectTimeout("postgres://u@h/db?sslmode=disable"))
	assert.Equal(t, "postgres://u@h/db?connect_timeout=2", withConnectTimeout("postgres://u@h/db?connect_timeout=2"))
	assert.Equal(t, "host=h dbname=db", withConnectTimeout("host=h dbname=db"))
}

func TestOpenDatabase_RequiresURL(t *testing.T) {
	_, err := OpenDatabase(context.Background(), config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, OpenRedis(ctx, config.RedisConfig{}))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := OpenRedis(ctx, config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NotNil(t, client)
	client.Close()

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, OpenRedis(ctx, config.RedisConfig{URL: "redis://" + addr}), "unreachable redis degrades to nil")
}

func TestLoadCatalog_Embedded(t *testing.T) {
	c, err := LoadCatalog(context.Background(), config.PlansConfig{
		Prices: map[string]string{"price_legacy_pro": "premium"},
	})
	require.NoError(t, err)
	assert.Equal(t, featuregate.TierPremium, featuregate.New(c).ResolveTier("price_legacy_pro"))
	assert.Equal(t, featuregate.TierGrowth, featuregate.New(c).ResolveTier("price_growth_monthly"))
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers: {}\n"), 0644))

	_, err := LoadCatalog(context.Background(), config.PlansConfig{File: path})
	assert.ErrorIs(t, err, featuregate.ErrInvalidCatalog)
}

func TestLoadCatalog_BadPriceMapping(t *testing.T) {
	_, err := LoadCatalog(context.Background(), config.PlansConfig{
		Prices: map[string]string{"price_x": "enterprise"},
	})
	assert.ErrorIs(t, err, featuregate.ErrInvalidCatalog)
}
