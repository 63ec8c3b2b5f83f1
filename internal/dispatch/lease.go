package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a held per-job lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker grants leases. Acquire reports false when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	rdb redis.UniversalClient
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to set lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{rdb: l.rdb, key: key, token: token}, true, nil
}

type redisLease struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	return nil
}

// MemoryLocker implements Locker for a single process.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// NewMemoryLocker creates a MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryEntry), now: time.Now}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.leases[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, true, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (l *memoryLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if held, ok := l.locker.leases[l.key]; ok && held.token == l.token {
		delete(l.locker.leases, l.key)
	}
	return nil
}
