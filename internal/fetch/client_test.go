package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.geojson":
			assert.Contains(t, r.Header.Get("User-Agent"), "springmap")
			_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
		case "/big":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{MaxBytes: 32})

	t.Run("success", func(t *testing.T) {
		data, err := New(Config{}).Get(context.Background(), srv.URL+"/ok.geojson")
		require.NoError(t, err)
		assert.Contains(t, string(data), "FeatureCollection")
	})

	t.Run("not found", func(t *testing.T) {
		_, err := c.Get(context.Background(), srv.URL+"/missing.shp")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFetch))
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("too large", func(t *testing.T) {
		_, err := c.Get(context.Background(), srv.URL+"/big")
		assert.True(t, errors.Is(err, ErrFetch))
	})

	t.Run("bad scheme", func(t *testing.T) {
		_, err := c.Get(context.Background(), "file:///etc/passwd")
		assert.True(t, errors.Is(err, ErrFetch))
	})

	t.Run("connection refused", func(t *testing.T) {
		_, err := c.Get(context.Background(), "http://127.0.0.1:1/nothing")
		assert.True(t, errors.Is(err, ErrFetch))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Get(ctx, srv.URL+"/ok.geojson")
		assert.True(t, errors.Is(err, ErrFetch))
	})
}

func TestClientUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	cache := NewMemoryCache()
	c := New(Config{Cache: cache})

	for i := 0; i < 3; i++ {
		data, err := c.Get(context.Background(), srv.URL+"/data.zip")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	}

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(context.Background(), "k", []byte("v"), time.Minute))

	got, ok := cache.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestMemoryCacheDropsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCacheSize(20000)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	for i := 0; i < 10000; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("render:layer:%d", i), []byte("tile"), time.Minute))
	}
	require.Equal(t, 10000, cache.Len())

	now = now.Add(time.Hour)
	for i := 0; i < 10000; i++ {
		_, ok := cache.Get(ctx, fmt.Sprintf("render:layer:%d", i))
		require.False(t, ok)
	}
	assert.Zero(t, cache.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCacheSize(2)

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), time.Hour))
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, cache.Set(ctx, "c", []byte("3"), time.Hour))

	assert.Equal(t, 2, cache.Len())
	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok = cache.Get(ctx, "a")
	assert.True(t, ok)
}

func TestRedisCacheKeyIsStable(t *testing.T) {
	r := &RedisCache{prefix: "p:"}
	a := r.key("https://example.com/a.zip?x=1")
	b := r.key("https://example.com/a.zip?x=1")
	c := r.key("https://example.com/b.zip")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("p:")+64)
}
