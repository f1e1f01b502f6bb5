// Package cache provides the explicit TTL cache abstraction used for
// memoizing classifier and router results. Entries are immutable once
// written; Clear and Delete are the only mutation paths.
package cache

import (
	"context"
	"time"
)

// Cache maps normalized string keys to TTL'd JSON-serializable entries
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}
