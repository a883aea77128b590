package session

import (
	"context"
	"time"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/utils/cache"
	"github.com/mpapenbr/sentinel-replay/pkg/utils/cache/loadercache"
)

// CachedLoader keeps loaded sessions for a while. Returned sessions are shared
// between callers and must not be modified.
type CachedLoader struct {
	cache cache.Cache[model.SessionKey, model.SessionData]
}

func NewCachedLoader(l Loader, expiration time.Duration) *CachedLoader {
	return &CachedLoader{
		cache: loadercache.New(
			loadercache.WithExpiration[model.SessionKey, model.SessionData](expiration),
			loadercache.WithLoader[model.SessionKey, model.SessionData](l.Load),
		),
	}
}

func (c *CachedLoader) Load(ctx context.Context, key model.SessionKey) (*model.SessionData, error) {
	return c.cache.Get(ctx, key)
}

func (c *CachedLoader) Invalidate(ctx context.Context, key model.SessionKey) {
	c.cache.Invalidate(ctx, key)
}
