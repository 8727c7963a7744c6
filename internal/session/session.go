// Package session implements chat session management with JSONL persistence
// and an optional cache in front of the files.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getnao/nao-cli/internal/cache"
	"github.com/getnao/nao-cli/internal/providers"
)

// DefaultKey is the session used by `nao chat` without --session.
const DefaultKey = "cli:default"

// Message is a single conversation message.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`

	// Internal marker for metadata lines in JSONL
	Type string `json:"_type,omitempty"`
}

// Session holds a conversation's message history.
type Session struct {
	Key       string    `json:"key"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	mu sync.Mutex
}

// New returns an empty session.
func New(key string) *Session {
	now := time.Now()
	return &Session{Key: key, CreatedAt: now, UpdatedAt: now}
}

// AddMessage appends a message to the session.
func (s *Session) AddMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.UpdatedAt = time.Now()
}

// History returns the last maxMessages messages in provider format.
// maxMessages <= 0 returns everything.
func (s *Session) History(maxMessages int) []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if maxMessages > 0 && len(s.Messages) > maxMessages {
		start = len(s.Messages) - maxMessages
	}
	result := make([]providers.Message, 0, len(s.Messages)-start)
	for _, m := range s.Messages[start:] {
		result = append(result, providers.Message{Role: m.Role, Content: m.Content})
	}
	return result
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}

// Clear removes all messages.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = nil
	s.UpdatedAt = time.Now()
}

// snapshot copies the session for persistence.
func (s *Session) snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Session{
		Key:       s.Key,
		Messages:  append([]Message(nil), s.Messages...),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Info summarizes a stored session.
type Info struct {
	Key       string
	Path      string
	CreatedAt string
	UpdatedAt string
}

// Manager manages conversation sessions with JSONL persistence.
type Manager struct {
	sessionsDir string
	store       cache.Cache
	ttl         time.Duration

	mu    sync.RWMutex
	cache map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache stores sessions in c (write-through) and reads them from it
// before falling back to disk.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(m *Manager) {
		if c != nil {
			m.store = c
		}
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager creates a session manager storing files under dataDir/sessions.
func NewManager(dataDir string, opts ...Option) *Manager {
	dir := filepath.Join(dataDir, "sessions")
	os.MkdirAll(dir, 0755)
	m := &Manager{
		sessionsDir: dir,
		store:       cache.Nop{},
		ttl:         24 * time.Hour,
		cache:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(ctx context.Context, key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s
	}

	var s *Session
	var cached Session
	if cache.GetJSON(ctx, m.store, cache.SessionKey(key), &cached) && cached.Key == key {
		s = &Session{Key: key, Messages: cached.Messages, CreatedAt: cached.CreatedAt, UpdatedAt: cached.UpdatedAt}
	}
	if s == nil {
		s = m.load(key)
	}
	if s == nil {
		s = New(key)
	}
	m.cache[key] = s
	return s
}

// Save persists a session to disk as JSONL and refreshes the cache.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	snap := s.snapshot()
	path := m.sessionPath(snap.Key)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	// First line: metadata
	meta := map[string]any{
		"_type":      "metadata",
		"key":        snap.Key,
		"created_at": snap.CreatedAt.Format(time.RFC3339),
		"updated_at": snap.UpdatedAt.Format(time.RFC3339),
	}
	if err := enc.Encode(meta); err != nil {
		f.Close()
		return err
	}
	// Remaining lines: messages
	for _, msg := range snap.Messages {
		if err := enc.Encode(msg); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	committed = true

	cache.SetJSON(ctx, m.store, cache.SessionKey(snap.Key), snap, m.ttl)

	m.mu.Lock()
	m.cache[s.Key] = s
	m.mu.Unlock()
	return nil
}

// Delete removes a session from memory, cache and disk.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.Invalidate(key)
	m.store.Del(ctx, cache.SessionKey(key))
	err := os.Remove(m.sessionPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Invalidate removes a session from the in-memory cache.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
}

// ListSessions returns info about all stored sessions, sorted by key.
func (m *Manager) ListSessions() []Info {
	var result []Info

	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return result
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(m.sessionsDir, entry.Name())
		meta, ok := readMetadata(path)
		if !ok {
			continue
		}
		key, _ := meta["key"].(string)
		if key == "" {
			key = keyFromFilename(entry.Name())
		}
		info := Info{Key: key, Path: path}
		info.CreatedAt, _ = meta["created_at"].(string)
		info.UpdatedAt, _ = meta["updated_at"].(string)
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// --- internal ---

func readMetadata(path string) (map[string]any, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, false
	}
	var meta map[string]any
	if json.Unmarshal(scanner.Bytes(), &meta) != nil || meta["_type"] != "metadata" {
		return nil, false
	}
	return meta, true
}

func (m *Manager) sessionPath(key string) string {
	return filepath.Join(m.sessionsDir, sessionFilename(key))
}

// sessionFilename maps a key to a distinct file name. Colons become
// underscores and every other byte outside [A-Za-z0-9.-] is percent-encoded,
// so "cli:default" stays "cli_default.jsonl" while "cli_default" does not
// collide with it.
func sessionFilename(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == ':':
			b.WriteByte('_')
		case c == '-' || c == '.' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String() + ".jsonl"
}

func keyFromFilename(name string) string {
	enc := strings.ReplaceAll(strings.TrimSuffix(name, ".jsonl"), "_", ":")
	if key, err := url.PathUnescape(enc); err == nil {
		return key
	}
	return enc
}

func (m *Manager) load(key string) *Session {
	f, err := os.Open(m.sessionPath(key))
	if err != nil {
		return nil
	}
	defer f.Close()

	var msgs []Message
	var createdAt, updatedAt time.Time

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg Message
		if json.Unmarshal([]byte(line), &msg) != nil {
			continue
		}
		if msg.Type == "metadata" {
			var meta struct {
				Key       string `json:"key"`
				CreatedAt string `json:"created_at"`
				UpdatedAt string `json:"updated_at"`
			}
			if json.Unmarshal([]byte(line), &meta) == nil {
				// Written for another key.
				if meta.Key != "" && meta.Key != key {
					return nil
				}
				createdAt, _ = time.Parse(time.RFC3339, meta.CreatedAt)
				updatedAt, _ = time.Parse(time.RFC3339, meta.UpdatedAt)
			}
			continue
		}
		msgs = append(msgs, msg)
	}

	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return &Session{
		Key:       key,
		Messages:  msgs,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}
