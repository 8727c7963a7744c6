package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-process Cache used to exercise the JSON helpers.
type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memCache) Get(_ context.Context, k string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k]
	return v, ok
}

func (m *memCache) Set(_ context.Context, k, v string, _ time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[k] = v
	return true
}

func (m *memCache) Del(_ context.Context, k string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, k)
	return true
}

func (m *memCache) Available() bool { return true }

func TestConnect_NotConfigured(t *testing.T) {
	_, err := Connect(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "http://not-redis"}, nil)
	assert.ErrorContains(t, err, "invalid redis url")
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "redis://127.0.0.1:1"}, nil)
	assert.ErrorContains(t, err, "redis ping")
}

func TestRedis_NilFallback(t *testing.T) {
	var r *Redis
	ctx := context.Background()
	assert.False(t, r.Available())
	_, ok := r.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, r.Set(ctx, "k", "v", time.Minute))
	assert.False(t, r.Del(ctx, "k"))
	assert.NoError(t, r.Close())
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()
	assert.False(t, c.Available())
	assert.False(t, c.Set(ctx, "k", "v", 0))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	c := &memCache{}
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.True(t, SetJSON(ctx, c, "p", payload{Name: "orders", Count: 3}, time.Minute))

	var out payload
	require.True(t, GetJSON(ctx, c, "p", &out))
	assert.Equal(t, payload{Name: "orders", Count: 3}, out)

	assert.False(t, GetJSON(ctx, c, "missing", &out))

	c.Set(ctx, "bad", "{not json", 0)
	assert.False(t, GetJSON(ctx, c, "bad", &out))
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "nao:session:cli:default", SessionKey("cli:default"))
}
