package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	claimKeyPrefix    = "idempotency:"
	sessionKeyPrefix  = "session:"
	idempotencyKeyTTL = 24 * time.Hour
	claimTTL          = 2 * time.Minute
)

type RedisAdapter struct {
	client *redis.Client
}

var _ port.CheckoutCacheRepository = (*RedisAdapter)(nil)

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// ClaimIdempotencyKey expires on its own so a crashed request cannot block a
// key forever.
func (r *RedisAdapter) ClaimIdempotencyKey(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, claimKeyPrefix+key, 1, claimTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return r.client.Del(ctx, claimKeyPrefix+key).Err()
}

func (r *RedisAdapter) GetSession(ctx context.Context, key string) (*domain.StoredCheckout, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var checkout domain.StoredCheckout
	if err := json.Unmarshal(data, &checkout); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &checkout, nil
}

// SaveSession stores the checkout and stretches the claim to the session's
// lifetime, so a late duplicate fails to claim and finds the stored session.
func (r *RedisAdapter) SaveSession(ctx context.Context, key string, checkout domain.StoredCheckout) error {
	data, err := json.Marshal(checkout)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+key, data, idempotencyKeyTTL)
	pipe.Set(ctx, claimKeyPrefix+key, 1, idempotencyKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
