package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// NoticeLedger remembers which expiry notices were already sent.
type NoticeLedger interface {
	// Claim marks key as notified. It returns false when key was already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so that a later pass may claim it again.
	Release(ctx context.Context, key string) error
}

const noticePrefix = "guestpass:notice:"

type redisLedger struct {
	client *redis.Client
}

// NewRedisLedger keeps notice claims in redis so restarts and replicas share them.
func NewRedisLedger(client *redis.Client) NoticeLedger {
	return &redisLedger{client: client}
}

func (l *redisLedger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, noticePrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (l *redisLedger) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, noticePrefix+key).Err()
}

const ledgerCleanupInterval = 30 * time.Minute

type memoryLedger struct {
	cache *gocache.Cache
}

// NewMemoryLedger keeps notice claims in process memory.
func NewMemoryLedger() NoticeLedger {
	return &memoryLedger{cache: gocache.New(gocache.NoExpiration, ledgerCleanupInterval)}
}

func (l *memoryLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	// Add only fails when an unexpired item already holds key.
	if err := l.cache.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (l *memoryLedger) Release(_ context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}
