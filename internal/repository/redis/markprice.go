package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"arena/pkg/errors"
)

const markPriceKeyPrefix = "markprice:"

// MarkPriceCache stores the latest exchange mark price per symbol.
// Written by the mark feed, read in bulk at settlement time. Entries
// expire so a dead feed cannot serve stale prices forever.
type MarkPriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMarkPriceCache creates a new mark price cache
func NewMarkPriceCache(client *redis.Client, ttl time.Duration) *MarkPriceCache {
	return &MarkPriceCache{client: client, ttl: ttl}
}

// Set stores one symbol's mark price
func (c *MarkPriceCache) Set(ctx context.Context, symbol string, price decimal.Decimal) error {
	err := c.client.Set(ctx, markPriceKeyPrefix+symbol, price.String(), c.ttl).Err()
	if err != nil {
		return errors.Wrapf(err, "failed to cache mark price for %s", symbol)
	}
	return nil
}

// Get returns one symbol's mark price.
// Returns ErrMarkPriceMissing when the symbol is not cached.
func (c *MarkPriceCache) Get(ctx context.Context, symbol string) (decimal.Decimal, error) {
	val, err := c.client.Get(ctx, markPriceKeyPrefix+symbol).Result()
	if err == redis.Nil {
		return decimal.Zero, errors.Wrapf(errors.ErrMarkPriceMissing, "symbol %s", symbol)
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to get mark price for %s", symbol)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid cached mark price for %s", symbol)
	}
	return price, nil
}

// GetAll fetches mark prices for the given symbols in one round trip.
// Missing symbols are simply absent from the result; settlement must
// never block on an incomplete price picture.
func (c *MarkPriceCache) GetAll(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	keys := make([]string, len(symbols))
	for i, symbol := range symbols {
		keys[i] = markPriceKeyPrefix + symbol
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to mget mark prices")
	}

	marks := make(map[string]decimal.Decimal, len(symbols))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue // nil: symbol not cached
		}
		price, err := decimal.NewFromString(str)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid cached mark price for %s", symbols[i])
		}
		marks[symbols[i]] = price
	}

	return marks, nil
}
