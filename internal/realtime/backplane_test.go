package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBackplaneFansOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	cfg := config.Config{Redis: config.RedisConfig{Addr: mr.Addr(), BackplaneChannel: "test:realtime"}}

	newReplica := func() *Hub {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		bp := NewBackplane(BackplaneParams{Client: client, Cfg: cfg, Log: log})
		hub := NewHub(HubParams{Log: log, Clock: clock.NewFakeClock(baseTime), Backplane: bp})
		require.NoError(t, bp.Start(ctx, func(b Broadcast) { hub.Deliver(b) }))
		t.Cleanup(bp.Stop)
		return hub
	}

	a := newReplica()
	b := newReplica()
	ca := a.Register()
	cb := b.Register()
	drain(ca)
	drain(cb)

	assert.True(t, b.HasAudience())
	a.Broadcast(ctx, orderUpdate("1", "GRAB"))

	received := func(c *Client) func() bool {
		return func() bool {
			select {
			case <-c.Send():
				return true
			default:
				return false
			}
		}
	}
	assert.Eventually(t, received(ca), 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, received(cb), 2*time.Second, 10*time.Millisecond)
}

func TestNewBackplaneWithoutRedis(t *testing.T) {
	assert.Nil(t, NewBackplane(BackplaneParams{Log: zaptest.NewLogger(t)}))
}
