package realtime

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	dashboarddomain "github.com/smallbiznis/orderdesk/internal/dashboard/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/sla"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	BreachBatchSize = 10

	// BreachSettleDelay holds back breaches stamped this recently. A sweep
	// stamps its start time and commits row by row, so a fresher stamp may
	// still be uncommitted. It must exceed the sweep's job timeout.
	BreachSettleDelay = 45 * time.Second
)

type PublisherParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Hub       *Hub
	Dashboard dashboarddomain.Service
	Orders    orderdomain.Repository
	Cursors   CursorStore `optional:"true"`
}

// Publisher produces the server-initiated updates: scheduled dashboard
// refreshes, new-breach alerts, order updates after a sweep, and system alerts.
type Publisher struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	hub       *Hub
	dashboard dashboarddomain.Service
	orders    orderdomain.Repository
	cursors   CursorStore
	started   time.Time

	mu        sync.Mutex
	watermark time.Time
}

func NewPublisher(p PublisherParams) *Publisher {
	cursors := p.Cursors
	if cursors == nil {
		cursors = &memoryCursorStore{}
	}
	now := p.Clock.Now()
	return &Publisher{
		db:        p.DB,
		log:       p.Log.Named("realtime.publisher"),
		clock:     p.Clock,
		hub:       p.Hub,
		dashboard: p.Dashboard,
		orders:    p.Orders,
		cursors:   cursors,
		started:   now,
		watermark: now,
	}
}

// SendInitial queues the current dashboard summary for a new client.
func (p *Publisher) SendInitial(ctx context.Context, c *Client) {
	summary, err := p.dashboard.Summary(ctx)
	if err != nil {
		p.log.Error("initial dashboard summary failed", zap.String("client_id", c.ID()), zap.Error(err))
		return
	}
	p.hub.SendTo(c.ID(), EventDashboardInitial, summary)
}

// PushDashboard returns false when the push was skipped for lack of clients.
func (p *Publisher) PushDashboard(ctx context.Context) (bool, error) {
	if !p.hub.HasAudience() {
		return false, nil
	}
	summary, err := p.dashboard.Summary(ctx)
	if err != nil {
		return false, err
	}
	p.hub.Broadcast(ctx, Broadcast{
		Topic: TopicDashboard,
		Update: Update{
			Type:      UpdateDashboardRefresh,
			Payload:   DashboardRefreshPayload{AffectedKPIs: []string{"all"}, Summary: summary},
			Timestamp: p.clock.Now(),
			Source:    SourceScheduledRefresh,
		},
	})
	return true, nil
}

// CheckBreaches alerts on orders that entered BREACH since the previous
// check, oldest first and at most BreachBatchSize per call. The cursor moves
// past exactly what was alerted, so a full batch leaves the rest for the next
// call. Breaches stamped within BreachSettleDelay wait for a later check.
// Without an audience the cursor skips ahead so a later client is not
// flooded with stale breaches.
func (p *Publisher) CheckBreaches(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	checkTime := p.clock.Now()
	horizon := orderdomain.BreachCursor{
		At: checkTime.Add(-BreachSettleDelay),
		ID: snowflake.ID(math.MaxInt64),
	}

	cursor, ok, err := p.cursors.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		cursor = orderdomain.BreachCursor{At: p.started}
	}

	if !p.hub.HasAudience() {
		if cursor.Before(horizon) {
			cursor = horizon
		}
		return 0, p.saveCursor(ctx, cursor)
	}

	orders, err := p.orders.ListNewBreaches(ctx, p.db, cursor, horizon.At, BreachBatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, order := range orders {
		if order == nil || order.SLABreachedAt == nil {
			continue
		}
		cursor = orderdomain.BreachCursor{At: *order.SLABreachedAt, ID: order.ID}
		pct := sla.BreachPercentage(order.SLAElapsedSeconds, order.SLATargetSeconds)
		p.hub.Broadcast(ctx, Broadcast{
			Topic: TopicAlerts,
			Update: Update{
				Type: UpdateSLABreach,
				Payload: SLABreachPayload{
					OrderID:          order.ID.String(),
					OrderNo:          order.OrderNo,
					CustomerName:     order.CustomerName,
					ElapsedTime:      order.SLAElapsedSeconds,
					TargetTime:       order.SLATargetSeconds,
					Severity:         string(sla.BreachSeverity(pct)),
					BreachPercentage: pct,
				},
				Timestamp: checkTime,
				Source:    SourceSLAMonitor,
			},
			Subject: subjectOf(*order),
		})
		p.log.Warn("sla breach alert broadcast",
			zap.String("order_id", order.ID.String()),
			zap.String("order_no", order.OrderNo),
			zap.Int64("breach_percentage", pct),
		)
		sent++
	}

	if len(orders) < BreachBatchSize && cursor.Before(horizon) {
		cursor = horizon
	}
	return sent, p.saveCursor(ctx, cursor)
}

func (p *Publisher) saveCursor(ctx context.Context, cursor orderdomain.BreachCursor) error {
	if err := p.cursors.Save(ctx, cursor); err != nil {
		return err
	}
	p.watermark = cursor.At
	return nil
}

// Watermark is the breach time the last check advanced to.
func (p *Publisher) Watermark() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

func (p *Publisher) LogStats() Stats {
	stats := p.hub.Stats()
	p.log.Info("connection stats",
		zap.Int("total_connections", stats.TotalConnections),
		zap.Any("subscriptions_breakdown", stats.Subscriptions),
	)
	return stats
}

// OnSLAChanged pushes an ORDER_UPDATE for each order the sweep rewrote.
func (p *Publisher) OnSLAChanged(ctx context.Context, orders []orderdomain.Order) {
	if !p.hub.HasAudience() {
		return
	}
	for _, order := range orders {
		p.BroadcastOrderUpdate(ctx, order)
	}
}

func (p *Publisher) BroadcastOrderUpdate(ctx context.Context, order orderdomain.Order) {
	p.hub.Broadcast(ctx, Broadcast{
		Topic: TopicOrders,
		Update: Update{
			Type: UpdateOrder,
			Payload: OrderUpdatePayload{
				OrderID:      order.ID.String(),
				OrderNo:      order.OrderNo,
				NewStatus:    string(order.Status),
				SLAStatus:    string(order.SLAStatus),
				CustomerName: order.CustomerName,
				TotalAmount:  order.TotalAmount,
				ElapsedTime:  order.SLAElapsedSeconds,
			},
			Timestamp: p.clock.Now(),
			Source:    SourceOrders,
		},
		Subject: subjectOf(order),
	})
}

func (p *Publisher) BroadcastSystemAlert(ctx context.Context, title, message, severity string, data map[string]any) {
	p.hub.Broadcast(ctx, Broadcast{
		Topic: TopicAlerts,
		Update: Update{
			Type: UpdateSystemAlert,
			Payload: SystemAlertPayload{
				Title:    title,
				Message:  message,
				Severity: severity,
				Data:     data,
			},
			Timestamp: p.clock.Now(),
			Source:    SourceSystemMonitor,
		},
	})
	p.log.Error("system alert broadcast", zap.String("title", title), zap.String("severity", severity))
}

func subjectOf(order orderdomain.Order) *Subject {
	return &Subject{
		OrderID:  order.ID.String(),
		Channel:  order.Channel,
		Priority: string(order.Priority),
	}
}
