package realtime

import (
	"context"
	"encoding/json"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Backplane relays broadcasts between replicas over Redis pub/sub.
type Backplane struct {
	client  *redis.Client
	channel string
	log     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type BackplaneParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Cfg    config.Config
	Log    *zap.Logger
}

// NewBackplane returns nil without Redis so the hub stays process-local.
func NewBackplane(p BackplaneParams) *Backplane {
	if p.Client == nil {
		return nil
	}
	channel := p.Cfg.Redis.BackplaneChannel
	if channel == "" {
		channel = "orderdesk:realtime"
	}
	return &Backplane{
		client:  p.Client,
		channel: channel,
		log:     p.Log.Named("realtime.backplane"),
	}
}

func (b *Backplane) Publish(ctx context.Context, msg Broadcast) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Start subscribes and hands every message to deliver until Stop. It returns
// once the subscription is confirmed.
func (b *Backplane) Start(ctx context.Context, deliver func(Broadcast)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var bc Broadcast
				if err := json.Unmarshal([]byte(msg.Payload), &bc); err != nil {
					b.log.Warn("discarding malformed backplane message", zap.Error(err))
					continue
				}
				deliver(bc)
			}
		}
	}()

	b.log.Info("backplane subscribed", zap.String("channel", b.channel))
	return nil
}

func (b *Backplane) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}
