package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChallengeStore guarda los jti de tokens temporales de 2FA pendientes de canje.
type ChallengeStore interface {
	Store(jti, userID string, ttl time.Duration) error
	Exists(jti string) (bool, error)
	// Consume elimina el jti y reporta si estaba presente. Solo un llamador
	// concurrente obtiene true.
	Consume(jti string) (bool, error)
}

type memoryChallengeStore struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemoryChallengeStore() ChallengeStore {
	return &memoryChallengeStore{
		items: make(map[string]time.Time),
	}
}

func (s *memoryChallengeStore) Store(jti, _ string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	s.purgeLocked(time.Now().UTC())
	s.items[jti] = time.Now().UTC().Add(ttl)
	return nil
}

func (s *memoryChallengeStore) Exists(jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(jti), nil
}

func (s *memoryChallengeStore) Consume(jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.liveLocked(jti)
	delete(s.items, jti)
	return ok, nil
}

func (s *memoryChallengeStore) liveLocked(jti string) bool {
	exp, ok := s.items[jti]
	if !ok {
		return false
	}
	if time.Now().UTC().After(exp) {
		delete(s.items, jti)
		return false
	}
	return true
}

// purgeLocked descarta desafios vencidos para que el mapa no crezca sin limite.
func (s *memoryChallengeStore) purgeLocked(now time.Time) {
	for jti, exp := range s.items {
		if now.After(exp) {
			delete(s.items, jti)
		}
	}
}

type redisKVClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisChallengeStore struct {
	client redisKVClient
	prefix string
}

func NewRedisChallengeStore(client *redis.Client) ChallengeStore {
	if client == nil {
		return nil
	}
	return &redisChallengeStore{
		client: client,
		prefix: "auth:2fa:challenge:",
	}
}

func (s *redisChallengeStore) Store(jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+jti, userID, ttl).Err()
}

func (s *redisChallengeStore) Exists(jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisChallengeStore) Consume(jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := s.client.Del(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
