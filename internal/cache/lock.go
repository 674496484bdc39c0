package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SubmissionLock is an advisory lock keyed by registration id. It keeps two
// processes from submitting the same registration to the portal at once.
type SubmissionLock interface {
	// Acquire returns ok=false without error when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

const lockPrefix = "guestpass:submit-lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLock struct {
	client *redis.Client
}

// NewRedisLock builds a lock shared by every process using the same redis.
func NewRedisLock(client *redis.Client) SubmissionLock {
	return &redisLock{client: client}
}

func (l *redisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	fullKey := lockPrefix + key
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}
	return release, true, nil
}

type localLock struct {
	mu      sync.Mutex
	holders map[string]localHolder
	now     func() time.Time
}

type localHolder struct {
	token   string
	expires time.Time
}

// NewLocalLock builds a process-local lock with the same expiry semantics as the redis lock.
func NewLocalLock() SubmissionLock {
	return &localLock{holders: map[string]localHolder{}, now: time.Now}
}

func (l *localLock) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, held := l.holders[key]; held && now.Before(h.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.holders[key] = localHolder{token: token, expires: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, held := l.holders[key]; held && h.token == token {
			delete(l.holders, key)
		}
		return nil
	}
	return release, true, nil
}
