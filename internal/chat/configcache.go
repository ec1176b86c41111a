package chat

import (
	"context"
	"errors"
	"time"

	"barker/internal/agents"
	"barker/pkg/cache"
)

// ConfigLoader is the registry read the cache wraps.
type ConfigLoader interface {
	GetConfig(ctx context.Context, kbID string) (*agents.Config, error)
}

// CachedConfigs keeps agent configs in a short-TTL cache so the chat hot
// path avoids a postgres round trip per message. Stale-while-revalidate
// keeps config edits visible within a minute without blocking chats.
type CachedConfigs struct {
	loader ConfigLoader
	cache  *cache.Cache
}

func NewCachedConfigs(loader ConfigLoader) *CachedConfigs {
	hooks := cache.MetricsHooks{
		OnHit:  func(map[string]string) { configCacheTotal.WithLabelValues("hit").Inc() },
		OnMiss: func(map[string]string) { configCacheTotal.WithLabelValues("miss").Inc() },
	}
	return &CachedConfigs{
		loader: loader,
		cache: cache.New(cache.Options{
			TTL:                  30 * time.Second,
			StaleWhileRevalidate: 60 * time.Second,
			NegativeTTL:          5 * time.Second,
			MaxEntries:           1024,
		}, hooks),
	}
}

func (c *CachedConfigs) Get(ctx context.Context, kbID string) (*agents.Config, error) {
	value, ok, err := c.cache.Get(ctx, kbID, func(ctx context.Context, key string) (interface{}, bool, error) {
		cfg, loadErr := c.loader.GetConfig(ctx, key)
		if loadErr != nil {
			return nil, false, loadErr
		}
		return cfg, true, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, agents.ErrAgentNotFound
	}
	cfg, valid := value.(*agents.Config)
	if !valid {
		return nil, errors.New("unexpected cache value type")
	}
	return cfg, nil
}
