package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the cache abstraction with a shared Redis instance
// so classification results survive restarts and are shared across
// replicas. Keys are namespaced to avoid colliding with other users of
// the same Redis database.
type RedisCache struct {
	rdb       *redis.Client
	namespace string
}

func NewRedisCache(rdb *redis.Client, namespace string) *RedisCache {
	if namespace == "" {
		namespace = "docquery"
	}
	return &RedisCache{rdb: rdb, namespace: namespace}
}

func (r *RedisCache) key(key string) string {
	return r.namespace + ":" + key
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	// Best effort: a failed cache write only costs a repeat LLM call
	r.rdb.Set(ctx, r.key(key), value, ttl)
}

func (r *RedisCache) Delete(ctx context.Context, key string) {
	r.rdb.Del(ctx, r.key(key))
}

func (r *RedisCache) Clear(ctx context.Context) {
	iter := r.rdb.Scan(ctx, 0, r.namespace+":*", 0).Iterator()
	for iter.Next(ctx) {
		r.rdb.Del(ctx, iter.Val())
	}
}
