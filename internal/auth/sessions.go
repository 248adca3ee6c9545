package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore tracks live admin sessions keyed by token ID. Entries expire
// with the token and can be revoked early (logout, password change).
type SessionStore interface {
	Put(ctx context.Context, jti, username string, ttl time.Duration) error
	Valid(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string) error
}

const sessionKeyPrefix = "session:"

// RedisSessionStore is the production SessionStore. Redis handles TTL
// eviction natively.
type RedisSessionStore struct {
	rdb *redis.Client
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func (s *RedisSessionStore) Put(ctx context.Context, jti, username string, ttl time.Duration) error {
	return s.rdb.Set(ctx, sessionKeyPrefix+jti, username, ttl).Err()
}

func (s *RedisSessionStore) Valid(ctx context.Context, jti string) (bool, error) {
	exists, err := s.rdb.Exists(ctx, sessionKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, jti string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+jti).Err()
}

// MemorySessionStore keeps sessions in process memory with lazy expiry.
// Used in tests and single-node deployments without Redis.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
}

type memorySession struct {
	username  string
	expiresAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memorySession)}
}

func (s *MemorySessionStore) Put(_ context.Context, jti, username string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[jti] = memorySession{username: username, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Valid(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, jti)
		return false, nil
	}
	return true, nil
}

func (s *MemorySessionStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, jti)
	return nil
}
