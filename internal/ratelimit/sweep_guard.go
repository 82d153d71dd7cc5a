package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderdesk/internal/config"
)

const (
	keySweepLock   = "orderdesk:lock:%s"
	keyManualSweep = "orderdesk:ratelimit:manual_sweep:%s"
)

// SweepGuard coordinates scheduled jobs and manual sweeps across replicas.
// Without Redis it always grants the lock and never limits.
type SweepGuard struct {
	bucket  *TokenBucket
	locker  *Locker
	lockTTL time.Duration
	rate    float64
	burst   int
}

func NewSweepGuard(client *redis.Client, cfg config.Config) *SweepGuard {
	lockTTL := cfg.Redis.SweepLockTTL
	if lockTTL <= 0 {
		lockTTL = 50 * time.Second
	}
	return &SweepGuard{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		lockTTL: lockTTL,
		rate:    cfg.Redis.ManualSweepRate,
		burst:   cfg.Redis.ManualSweepBurst,
	}
}

func (g *SweepGuard) Enabled() bool {
	return g != nil && g.locker != nil
}

// TryLock returns ok=false when another replica holds the lock for resource.
func (g *SweepGuard) TryLock(ctx context.Context, resource string) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	return g.locker.TryLock(ctx, fmt.Sprintf(keySweepLock, resource), g.lockTTL)
}

// Hold keeps a lease on resource across runs. It extends token while this
// replica still owns the lease and otherwise tries to take it. The returned
// token replaces the one passed in.
func (g *SweepGuard) Hold(ctx context.Context, resource, token string, ttl time.Duration) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	if ttl <= 0 {
		ttl = g.lockTTL
	}
	key := fmt.Sprintf(keySweepLock, resource)
	extended, err := g.locker.Extend(ctx, key, token, ttl)
	if err != nil {
		return "", false, err
	}
	if extended {
		return token, true, nil
	}
	return g.locker.TryLock(ctx, key, ttl)
}

func (g *SweepGuard) Release(ctx context.Context, resource, token string) error {
	if !g.Enabled() {
		return nil
	}
	return g.locker.Release(ctx, fmt.Sprintf(keySweepLock, resource), token)
}

// AllowManual rate limits on-demand sweeps per caller.
func (g *SweepGuard) AllowManual(ctx context.Context, caller string) (Result, error) {
	if !g.Enabled() || g.rate <= 0 || g.burst <= 0 {
		return Result{Allowed: true}, nil
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = "anonymous"
	}
	return g.bucket.Allow(ctx, fmt.Sprintf(keyManualSweep, caller), g.rate, g.burst)
}
