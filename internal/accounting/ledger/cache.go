package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	cacheVersionKey = "ledger:balances:version"
	bumpChannel     = "ledger.bump"
)

// BalanceCache serves account balances through Redis behind a global version
// stamp. Posting bumps the version, so keys written before the bump are never
// read again and age out through the TTL. A nil cache or nil client disables
// caching and loads straight from the repository.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache instantiates the cache helper.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func (c *BalanceCache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising it when missing or
// corrupt.
func (c *BalanceCache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	switch {
	case err == redis.Nil, err == nil && ver <= 0:
		if setErr := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); setErr != nil {
			return 0, setErr
		}
		return 1, nil
	case err != nil:
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the versioned cache key for one account balance.
func (c *BalanceCache) BuildKey(ctx context.Context, accountCode, periodToken string) (string, error) {
	key := fmt.Sprintf("ledger:balance:%s:%s", accountCode, periodToken)
	if !c.enabled() {
		return key, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", key, ver), nil
}

// FetchBalance returns the cached balance under key, loading and storing it
// on a miss. Balances are stored as decimal strings.
func (c *BalanceCache) FetchBalance(ctx context.Context, key string, loader func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if loader == nil {
		return decimal.Zero, errors.New("ledger: balance loader required")
	}
	if !c.enabled() {
		return loader(ctx)
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return decimal.NewFromString(raw)
	}
	if err != redis.Nil {
		return decimal.Zero, err
	}
	balance, err := loader(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.client.Set(ctx, key, balance.String(), c.ttl).Err(); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Bump invalidates cached balances by incrementing the global version and
// notifying other processes.
func (c *BalanceCache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications so sibling
// processes converge on the highest version.
func (c *BalanceCache) ListenForInvalidation(ctx context.Context, channel string) error {
	if !c.enabled() {
		return nil
	}
	if channel == "" {
		channel = bumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					_ = c.client.Incr(ctx, cacheVersionKey).Err()
					continue
				}
				_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
			}
		}
	}()
	return nil
}
