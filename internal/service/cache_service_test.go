package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type mapCacheRepo struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
}

func newMapCacheRepo() *mapCacheRepo {
	return &mapCacheRepo{values: map[string][]byte{}}
}

func (r *mapCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *mapCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.values[key] = raw
	return nil
}

func (r *mapCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key := range r.values {
		if ok, _ := path.Match(pattern, key); ok {
			delete(r.values, key)
			removed++
		}
	}
	return removed, nil
}

func (r *mapCacheRepo) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.values[key]
	return ok
}

func TestCacheServiceHitMissAndClassInvalidation(t *testing.T) {
	repo := newMapCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()

	var out map[string]int
	hit, err := cache.Get(ctx, totalsCacheKey("7A", "s1"), &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, totalsCacheKey("7A", "s1"), map[string]int{"total": 3}, 0))
	require.NoError(t, cache.Set(ctx, leaderboardCacheKey("7A", "week"), map[string]int{"n": 1}, 0))
	require.NoError(t, cache.Set(ctx, leaderboardCacheKey("8B", "week"), map[string]int{"n": 2}, 0))

	hit, err = cache.Get(ctx, totalsCacheKey("7A", "s1"), &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out["total"])

	require.NoError(t, cache.InvalidateClass(ctx, "7A"))
	assert.False(t, repo.has(totalsCacheKey("7A", "s1")))
	assert.False(t, repo.has(leaderboardCacheKey("7A", "week")))
	assert.True(t, repo.has(leaderboardCacheKey("8B", "week")))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
}

func TestCacheServiceDisabledAndErrors(t *testing.T) {
	repo := newMapCacheRepo()
	disabled := NewCacheService(repo, nil, 0, nil, false)
	require.NoError(t, disabled.Set(context.Background(), "k", 1, 0))
	assert.False(t, repo.has("k"))

	var nilCache *CacheService
	hit, err := nilCache.Get(context.Background(), "k", &struct{}{})
	assert.NoError(t, err)
	assert.False(t, hit)

	repo.getErr = errors.New("redis down")
	enabled := NewCacheService(repo, nil, 0, nil, true)
	hit, err = enabled.Get(context.Background(), "k", &struct{}{})
	assert.Error(t, err)
	assert.False(t, hit)
}
