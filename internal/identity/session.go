package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session is the explicit session context handed to every manager call.
// It names a single slot holding a denormalized copy of the signed-in user.
type Session struct {
	ID string
}

// NewSession creates a session with a fresh id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// SessionStore holds one user snapshot per session id.
type SessionStore interface {
	// Load returns the snapshot, or nil if the slot is empty.
	Load(ctx context.Context, sessionID string) (*User, error)
	Save(ctx context.Context, sessionID string, user User) error
	Clear(ctx context.Context, sessionID string) error
}

// MemorySessionStore keeps session slots in process memory.
type MemorySessionStore struct {
	slots map[string]User
	mu    sync.RWMutex
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{slots: make(map[string]User)}
}

func (s *MemorySessionStore) Load(_ context.Context, sessionID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.slots[sessionID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemorySessionStore) Save(_ context.Context, sessionID string, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[sessionID] = user
	return nil
}

func (s *MemorySessionStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, sessionID)
	return nil
}

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps session slots as JSON strings with a TTL that is
// refreshed on every save.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + sessionKeyPrefix + sessionID
}

func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*User, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var u User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &u, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sessionID string, user User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
