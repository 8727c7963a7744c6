package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getnao/nao-cli/internal/providers"
)

// mapCache is an in-process cache.Cache.
type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapCache) Get(_ context.Context, k string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k]
	return v, ok
}

func (m *mapCache) Set(_ context.Context, k, v string, _ time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[k] = v
	return true
}

func (m *mapCache) Del(_ context.Context, k string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, k)
	return true
}

func (m *mapCache) Available() bool { return true }

func TestSession_AddMessage(t *testing.T) {
	s := New("test:1")
	s.AddMessage(providers.RoleUser, "hello")
	s.AddMessage(providers.RoleAssistant, "hi there")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "user", s.Messages[0].Role)
	assert.Equal(t, "hello", s.Messages[0].Content)
	assert.NotEmpty(t, s.Messages[0].Timestamp)
}

func TestSession_History(t *testing.T) {
	s := New("test:1")
	for i := 0; i < 10; i++ {
		s.AddMessage("user", "msg")
	}

	assert.Len(t, s.History(5), 5)
	assert.Len(t, s.History(100), 10)
	assert.Len(t, s.History(0), 10)
	assert.Equal(t, providers.Message{Role: "user", Content: "msg"}, s.History(1)[0])
}

func TestSession_Clear(t *testing.T) {
	s := New("test:1")
	s.AddMessage("user", "hello")
	s.Clear()
	assert.Empty(t, s.Messages)
}

func TestManager_GetOrCreate_New(t *testing.T) {
	mgr := NewManager(t.TempDir())
	s := mgr.GetOrCreate(context.Background(), "cli:123")

	assert.Equal(t, "cli:123", s.Key)
	assert.Empty(t, s.Messages)
}

func TestManager_GetOrCreate_Cached(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(t.TempDir())
	s1 := mgr.GetOrCreate(ctx, "cli:123")
	s1.AddMessage("user", "hello")

	s2 := mgr.GetOrCreate(ctx, "cli:123")
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, s2.Len())
}

func TestManager_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mgr := NewManager(dir)

	s := mgr.GetOrCreate(ctx, "web:456")
	s.AddMessage("user", "hello")
	s.AddMessage("assistant", "hi!")
	require.NoError(t, mgr.Save(ctx, s))

	_, err := os.Stat(filepath.Join(dir, "sessions", "web_456.jsonl"))
	require.NoError(t, err)

	// Load into new manager (cold cache)
	s2 := NewManager(dir).GetOrCreate(ctx, "web:456")
	assert.Equal(t, "web:456", s2.Key)
	require.Len(t, s2.Messages, 2)
	assert.Equal(t, "hello", s2.Messages[0].Content)
	assert.Equal(t, "hi!", s2.Messages[1].Content)
	assert.Equal(t, s.CreatedAt.Unix(), s2.CreatedAt.Unix())
}

func TestManager_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := &mapCache{}

	mgr := NewManager(t.TempDir(), WithCache(store, time.Hour))
	s := mgr.GetOrCreate(ctx, "cli:shared")
	s.AddMessage("user", "from another machine")
	require.NoError(t, mgr.Save(ctx, s))

	// A manager on a different data dir still sees the session via the cache.
	other := NewManager(t.TempDir(), WithCache(store, time.Hour))
	s2 := other.GetOrCreate(ctx, "cli:shared")
	require.Len(t, s2.Messages, 1)
	assert.Equal(t, "from another machine", s2.Messages[0].Content)
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := &mapCache{}
	mgr := NewManager(dir, WithCache(store, 0))

	s := mgr.GetOrCreate(ctx, "cli:gone")
	s.AddMessage("user", "x")
	require.NoError(t, mgr.Save(ctx, s))
	require.NoError(t, mgr.Delete(ctx, "cli:gone"))

	assert.Empty(t, mgr.ListSessions())
	_, ok := store.Get(ctx, "nao:session:cli:gone")
	assert.False(t, ok)
	assert.Empty(t, mgr.GetOrCreate(ctx, "cli:gone").Messages)

	assert.NoError(t, mgr.Delete(ctx, "cli:never-existed"))
}

func TestManager_Invalidate(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(t.TempDir())
	mgr.GetOrCreate(ctx, "test:1").AddMessage("user", "unsaved")
	mgr.Invalidate("test:1")

	// After invalidation, a new session is created (not cached)
	assert.Empty(t, mgr.GetOrCreate(ctx, "test:1").Messages)
}

func TestManager_ListSessions(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(t.TempDir())

	for _, key := range []string{"web:2", "cli:1"} {
		s := mgr.GetOrCreate(ctx, key)
		s.AddMessage("user", "a")
		require.NoError(t, mgr.Save(ctx, s))
	}

	sessions := mgr.ListSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "cli:1", sessions[0].Key)
	assert.Equal(t, "web:2", sessions[1].Key)
	assert.NotEmpty(t, sessions[0].CreatedAt)
}

func TestManager_EmptyDir(t *testing.T) {
	assert.Empty(t, NewManager(t.TempDir()).ListSessions())
}

func TestSessionFilename(t *testing.T) {
	assert.Equal(t, "cli_default.jsonl", sessionFilename("cli:default"))
	assert.Equal(t, "a%5Fb.jsonl", sessionFilename("a_b"))
	assert.Equal(t, "a%2Fb_c.jsonl", sessionFilename("a/b:c"))
	assert.Equal(t, "x%20y.jsonl", sessionFilename("x y"))

	for _, key := range []string{"cli:default", "a_b", "a/b:c", "x y", "100%"} {
		assert.Equal(t, key, keyFromFilename(sessionFilename(key)), key)
	}
}

func TestManager_DistinctKeysDoNotShareFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mgr := NewManager(dir)

	s := mgr.GetOrCreate(ctx, "a:b")
	s.AddMessage("user", "colon")
	require.NoError(t, mgr.Save(ctx, s))

	cold := NewManager(dir)
	assert.Empty(t, cold.GetOrCreate(ctx, "a_b").Messages)
	assert.Empty(t, cold.GetOrCreate(ctx, "a/b").Messages)

	other := cold.GetOrCreate(ctx, "a_b")
	other.AddMessage("user", "underscore")
	require.NoError(t, cold.Save(ctx, other))

	fresh := NewManager(dir)
	got := fresh.GetOrCreate(ctx, "a:b")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "colon", got.Messages[0].Content)

	sessions := fresh.ListSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "a:b", sessions[0].Key)
	assert.Equal(t, "a_b", sessions[1].Key)
}

func TestManager_IgnoresFileOfAnotherKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mgr := NewManager(dir)

	line := `{"_type":"metadata","key":"someone:else","created_at":"2026-01-01T00:00:00Z"}` + "\n" +
		`{"role":"user","content":"not yours"}` + "\n"
	require.NoError(t, os.WriteFile(mgr.sessionPath("cli:mine"), []byte(line), 0o644))

	assert.Empty(t, mgr.GetOrCreate(ctx, "cli:mine").Messages)
}

func TestManager_SaveFailureRemovesTemp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mgr := NewManager(dir)

	// A non-empty directory at the target path makes the rename fail.
	target := mgr.sessionPath("cli:busy")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "inner"), 0o755))

	s := mgr.GetOrCreate(ctx, "cli:busy")
	s.AddMessage("user", "x")
	require.Error(t, mgr.Save(ctx, s))

	assert.NoFileExists(t, target+".tmp")
	entries, err := os.ReadDir(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}
