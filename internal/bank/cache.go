package bank

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

const defaultCacheTTL = 5 * time.Minute

// Cache keeps validated banks in Redis in front of a slower Loader.
// Concurrent misses for one id share a single load.
type Cache struct {
	client *redis.Client
	loader Loader
	ttl    time.Duration
	sf     singleflight.Group
	logger zerolog.Logger
}

var _ Loader = (*Cache)(nil)

func NewCache(client *redis.Client, loader Loader, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger.With().Str("component", "bank_cache").Logger(),
	}
}

func (c *Cache) key(id string) string {
	return "quiz:bank:" + id
}

func (c *Cache) LoadBank(ctx context.Context, id string) (*quiz.Bank, error) {
	if b, ok := c.get(ctx, id); ok {
		return b, nil
	}

	// the shared load outlives any single caller; each caller still stops
	// waiting when its own ctx ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(id, func() (interface{}, error) {
		if b, ok := c.get(loadCtx, id); ok {
			return b, nil
		}
		b, err := c.loader.LoadBank(loadCtx, id)
		if err != nil {
			return nil, err
		}
		c.set(loadCtx, id, b)
		return b, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.(*quiz.Bank)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached copy of id.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *Cache) get(ctx context.Context, id string) (*quiz.Bank, bool) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("bank_id", id).Msg("bank cache read failed")
		}
		return nil, false
	}
	var b quiz.Bank
	if err := json.Unmarshal(data, &b); err != nil {
		c.logger.Warn().Err(err).Str("bank_id", id).Msg("discarding corrupt cached bank")
		return nil, false
	}
	if err := b.Validate(); err != nil {
		return nil, false
	}
	return &b, true
}

func (c *Cache) set(ctx context.Context, id string, b *quiz.Bank) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("bank_id", id).Msg("bank cache write failed")
	}
}
