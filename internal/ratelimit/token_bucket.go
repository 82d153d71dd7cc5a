package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var errNotConfigured = errors.New("ratelimit: redis not configured")

// The bucket lives in one hash: fractional tokens and the last refill time
// in ms. Redis TIME is the clock so replicas with skewed clocks agree.
// Replies {allowed, whole tokens left, ms until the next token}.
var takeTokenScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) / 1000 * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", math.max(now, ts))
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, math.floor(tokens), wait}
`)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// TokenBucket is a Redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Allow takes one token from the bucket at key. The bucket refills at rate
// tokens per second and holds at most burst.
func (b *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	switch {
	case b == nil:
		return Result{}, errNotConfigured
	case key == "":
		return Result{}, errors.New("ratelimit: empty bucket key")
	case rate <= 0 || burst <= 0:
		return Result{}, fmt.Errorf("ratelimit: invalid bucket rate=%g burst=%d", rate, burst)
	}

	// an idle bucket expires after twice its full refill time
	ttl := max(time.Duration(2*float64(burst)/rate*float64(time.Second)), time.Second)
	reply, err := takeTokenScript.Run(ctx, b.client, []string{key}, rate, burst, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 3 {
		return Result{}, fmt.Errorf("ratelimit: unexpected bucket reply %v", reply)
	}
	return Result{
		Allowed:    reply[0] == 1,
		Limit:      burst,
		Remaining:  int(reply[1]),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}
