// Package cache is a Redis read-through cache for catalog reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storefront-api/internal/model"
)

const productKeyPrefix = "product:"

// ProductCache caches products by id. A nil *ProductCache, or one built with
// a nil client, is a valid no-op cache.
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl}
}

func productKey(id uuid.UUID) string { return productKeyPrefix + id.String() }

func (c *ProductCache) enabled() bool { return c != nil && c.client != nil }

// Get returns the cached product, or nil on a miss.
func (c *ProductCache) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	if !c.enabled() {
		return nil, nil
	}
	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached product: %w", err)
	}
	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cached product: %w", err)
	}
	return &p, nil
}

func (c *ProductCache) Set(ctx context.Context, p *model.Product) error {
	if !c.enabled() || p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	if err := c.client.Set(ctx, productKey(p.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache product: %w", err)
	}
	return nil
}

// Invalidate drops the cached entries for ids.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if !c.enabled() || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate products: %w", err)
	}
	return nil
}
