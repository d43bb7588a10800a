package redis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/testsupport"
	"arena/pkg/errors"
)

func TestMarkPriceCache_SetAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testsupport.LoadDatabaseConfigsFromEnv(t)
	client := testsupport.NewRedisClient(t, cfg.Redis)
	cache := NewMarkPriceCache(client, time.Minute)
	ctx := context.Background()

	price := decimal.RequireFromString("64123.45678901")
	require.NoError(t, cache.Set(ctx, "BTCUSDT", price))

	got, err := cache.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	// Round-trips through the string form without losing precision.
	assert.True(t, price.Equal(got), "want %s got %s", price, got)
}

func TestMarkPriceCache_Get_Missing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testsupport.LoadDatabaseConfigsFromEnv(t)
	client := testsupport.NewRedisClient(t, cfg.Redis)
	cache := NewMarkPriceCache(client, time.Minute)

	_, err := cache.Get(context.Background(), "NOSUCHUSDT")
	assert.ErrorIs(t, err, errors.ErrMarkPriceMissing)
}

func TestMarkPriceCache_GetAll_SkipsMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testsupport.LoadDatabaseConfigsFromEnv(t)
	client := testsupport.NewRedisClient(t, cfg.Redis)
	cache := NewMarkPriceCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "BTCUSDT", decimal.RequireFromString("64000")))
	require.NoError(t, cache.Set(ctx, "ETHUSDT", decimal.RequireFromString("3200.5")))

	marks, err := cache.GetAll(ctx, []string{"BTCUSDT", "SOLUSDT", "ETHUSDT"})
	require.NoError(t, err)

	// Uncached symbols are absent, not zero-valued and not an error.
	assert.Len(t, marks, 2)
	assert.NotContains(t, marks, "SOLUSDT")
	assert.True(t, marks["BTCUSDT"].Equal(decimal.RequireFromString("64000")))
	assert.True(t, marks["ETHUSDT"].Equal(decimal.RequireFromString("3200.5")))
}

func TestMarkPriceCache_GetAll_EmptySymbols(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testsupport.LoadDatabaseConfigsFromEnv(t)
	client := testsupport.NewRedisClient(t, cfg.Redis)
	cache := NewMarkPriceCache(client, time.Minute)

	marks, err := cache.GetAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, marks)
}
