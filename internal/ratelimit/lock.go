package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the lock only while it still holds the caller's token, so a
// replica whose lease expired cannot release a lock another replica now owns.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker hands out expiring single-key leases.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock does not wait. acquired is false while another holder's lease on
// key is live; token must be passed back to Release.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error) {
	switch {
	case l == nil:
		return "", false, errNotConfigured
	case key == "":
		return "", false, errors.New("ratelimit: empty lock key")
	case ttl <= 0:
		return "", false, errors.New("ratelimit: lock ttl must be positive")
	}

	token = uuid.NewString()
	acquired, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !acquired {
		return "", false, err
	}
	return token, true, nil
}

// Release is a no-op for an empty token or a nil Locker.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || token == "" {
		return nil
	}
	return releaseLockScript.Run(ctx, l.client, []string{key}, token).Err()
}

// Extend renews the lease on key while it still holds token. extended is
// false once the lease expired or another holder took it.
func (l *Locker) Extend(ctx context.Context, key, token string, ttl time.Duration) (extended bool, err error) {
	switch {
	case l == nil:
		return false, errNotConfigured
	case token == "":
		return false, nil
	case ttl <= 0:
		return false, errors.New("ratelimit: lock ttl must be positive")
	}
	n, err := extendLockScript.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
