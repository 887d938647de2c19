// Package readiness caches speculative validation results so authoring UIs
// polling for live feedback do not recompute readiness on every keystroke.
// The authoritative gate inside the issuance transaction never reads this
// cache; it exists purely for the speculative path.
package readiness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"attest/internal/report/models"
	id "attest/pkg/domain"
)

const keyPrefix = "readiness:doc:"

// DefaultTTL bounds staleness when an invalidation is missed.
const DefaultTTL = 30 * time.Second

// RedisCache is the production cache. Entries are invalidated on every
// guarded mutation and expire on a short TTL as a backstop.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, documentID id.DocumentID) (*models.ValidationResult, error) {
	raw, err := c.client.Get(ctx, keyPrefix+documentID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("readiness cache get: %w", err)
	}
	var result models.ValidationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		return nil, nil
	}
	return &result, nil
}

func (c *RedisCache) Set(ctx context.Context, documentID id.DocumentID, result models.ValidationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("readiness cache encode: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+documentID.String(), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("readiness cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, documentID id.DocumentID) error {
	if err := c.client.Del(ctx, keyPrefix+documentID.String()).Err(); err != nil {
		return fmt.Errorf("readiness cache invalidate: %w", err)
	}
	return nil
}
