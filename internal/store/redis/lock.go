package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another owner holds the lease.
var ErrLockHeld = errors.New("writer lock held by another owner")

// ErrLockLost is returned by Refresh when the lease expired or was taken.
var ErrLockLost = errors.New("writer lock lost")

// Only the owner may extend or release a lease.
var (
	refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// lockClient is the subset of go-redis a Lock needs.
type lockClient interface {
	goredis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
}

// Lock is a per-symbol writer lease (SET NX PX with an owner token).
type Lock struct {
	client lockClient
	key    string
	token  string
	ttl    time.Duration
}

// NewLock creates a lease on symbol's writer key with a random owner token.
func NewLock(client lockClient, symbol string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: LockKey(symbol), token: uuid.NewString(), ttl: ttl}
}

// Key returns the Redis key of the lease.
func (l *Lock) Key() string { return l.key }

// TTL returns the lease duration.
func (l *Lock) TTL() time.Duration { return l.ttl }

// Acquire takes the lease or returns ErrLockHeld.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Refresh extends the lease by its TTL. It fails with ErrLockLost when the
// lease is no longer ours.
func (l *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release deletes the lease if we still own it.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// Keep refreshes the lease every third of its TTL until ctx is done or the
// lease is lost; it returns the reason it stopped.
func (l *Lock) Keep(ctx context.Context) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				return err
			}
		}
	}
}
