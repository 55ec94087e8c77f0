package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	sharedcache "github.com/smallbiznis/perishables/internal/cache"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const expiringTTL = 30 * time.Second

type Params struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
}

// New backs the expiring-items cache with redis when a client is wired, process memory otherwise.
func New(p Params) inventorydomain.Cache {
	if p.Redis != nil {
		return &redisCache{client: p.Redis, log: p.Log.Named("inventory.cache")}
	}
	return NewMemory()
}

type redisCache struct {
	client *redis.Client
	log    *zap.Logger
}

func expiringKey(storeID string) string {
	return "perishables:expiring:" + storeID
}

func (c *redisCache) GetExpiring(ctx context.Context, storeID string, daysThreshold int) ([]inventorydomain.ItemView, bool) {
	raw, err := c.client.HGet(ctx, expiringKey(storeID), strconv.Itoa(daysThreshold)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("expiring cache read failed", zap.String("store_id", storeID), zap.Error(err))
		}
		return nil, false
	}
	var items []inventorydomain.ItemView
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func (c *redisCache) SetExpiring(ctx context.Context, storeID string, daysThreshold int, items []inventorydomain.ItemView) {
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	key := expiringKey(storeID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(daysThreshold), raw)
	pipe.Expire(ctx, key, expiringTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("expiring cache write failed", zap.String("store_id", storeID), zap.Error(err))
	}
}

func (c *redisCache) Invalidate(ctx context.Context, storeID string) {
	if err := c.client.Del(ctx, expiringKey(storeID)).Err(); err != nil {
		c.log.Warn("expiring cache invalidate failed", zap.String("store_id", storeID), zap.Error(err))
	}
}

type memoryCache struct {
	entries sharedcache.Cache[string, []inventorydomain.ItemView]
}

func NewMemory() inventorydomain.Cache {
	return &memoryCache{entries: sharedcache.NewTTLCache[string, []inventorydomain.ItemView]()}
}

func memoryKey(storeID string, daysThreshold int) string {
	return storeID + ":" + strconv.Itoa(daysThreshold)
}

func (c *memoryCache) GetExpiring(_ context.Context, storeID string, daysThreshold int) ([]inventorydomain.ItemView, bool) {
	return c.entries.Get(memoryKey(storeID, daysThreshold))
}

func (c *memoryCache) SetExpiring(_ context.Context, storeID string, daysThreshold int, items []inventorydomain.ItemView) {
	c.entries.Set(memoryKey(storeID, daysThreshold), items, expiringTTL)
}

func (c *memoryCache) Invalidate(_ context.Context, storeID string) {
	prefix := storeID + ":"
	c.entries.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}
