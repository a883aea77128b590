package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/sentinel-replay/pkg/utils/cache"
	"github.com/mpapenbr/sentinel-replay/pkg/utils/timeutil"
)

func TestLoaderCache(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	calls := 0
	c := New(
		WithClock[string, int](clock),
		WithExpiration[string, int](time.Minute),
		WithLoader[string, int](func(_ context.Context, key string) (*int, error) {
			calls++
			if key == "bad" {
				return nil, errors.New("unknown")
			}
			v := len(key)
			return &v, nil
		}))
	ctx := context.Background()

	v, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, *v)
	_, err = c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second get is served from cache")

	clock.Advance(time.Minute)
	_, err = c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expired entries are reloaded")

	c.Invalidate(ctx, "abc")
	_, _ = c.Get(ctx, "abc")
	assert.Equal(t, 3, calls)

	c.InvalidateAll(ctx)
	_, _ = c.Get(ctx, "abc")
	assert.Equal(t, 4, calls)

	_, err = c.Get(ctx, "bad")
	assert.Error(t, err)
	_, err = c.Get(ctx, "bad")
	assert.Error(t, err)
	assert.Equal(t, 6, calls, "errors are not cached")
}

func TestLoaderCache_noLoader(t *testing.T) {
	c := New[string, int]()
	_, err := c.Get(context.Background(), "x")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
