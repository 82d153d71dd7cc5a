package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/dashboard/domain"
	"github.com/smallbiznis/orderdesk/internal/dashboard/repository"
	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/sla"
	"github.com/smallbiznis/orderdesk/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   *Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&orderdomain.Order{}, &orderdomain.OrderItem{}, &escalationdomain.Escalation{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.DefaultSLAConfig()
	cfg.TrackedBranches = []string{"Tops Central World", "Tops Silom"}

	fc := clock.NewFakeClock(baseTime)
	svc := New(Params{
		DB:        conn,
		Log:       zaptest.NewLogger(t),
		Clock:     fc,
		Repo:      repository.Provide(),
		SLAConfig: config.NewStaticSLAConfigHolder(cfg),
	})
	return &testEnv{db: conn, node: node, clock: fc, svc: svc}
}

func (e *testEnv) order(t *testing.T, mutate func(*orderdomain.Order)) *orderdomain.Order {
	t.Helper()
	id := e.node.Generate()
	o := &orderdomain.Order{
		ID:               id,
		OrderNo:          fmt.Sprintf("ORD-%d", id),
		CustomerID:       "cust-1",
		CustomerName:     "Somchai Jaidee",
		CustomerEmail:    "somchai@example.com",
		OrderDate:        baseTime.Add(-time.Hour),
		Status:           orderdomain.StatusPending,
		Channel:          "GRAB",
		BusinessUnit:     "TOPS",
		PaymentMethod:    "CARD",
		TotalAmount:      100,
		SLATargetSeconds: 300,
		SLAStatus:        sla.StatusCompliant,
		Priority:         orderdomain.PriorityMedium,
		StoreName:        "Tops Central World",
		CreatedAt:        baseTime.Add(-time.Hour),
		UpdatedAt:        baseTime.Add(-time.Hour),
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, e.db.Create(o).Error)
	return o
}

func TestSummaryAggregates(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.order(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.StatusProcessing
		o.SLAStatus = sla.StatusBreach
		o.SLAElapsedSeconds = 900
		o.TotalAmount = 250
	})
	env.order(t, func(o *orderdomain.Order) {
		o.SLAStatus = sla.StatusNearBreach
		o.Channel = "LINE"
	})
	delivered := env.order(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.StatusDelivered
		o.SLAElapsedSeconds = 420
		o.OrderDate = baseTime.Add(-26 * time.Hour)
		o.CreatedAt = baseTime.Add(-26 * time.Hour)
	})
	require.NoError(t, env.db.Create(&orderdomain.OrderItem{
		ID: env.node.Generate(), OrderID: delivered.ID, ProductID: "p1", ProductName: "Jasmine Rice",
		ProductSKU: "SKU-1", Quantity: 2, UnitPrice: 50, TotalPrice: 100, ProductCategory: "Grocery",
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}).Error)
	require.NoError(t, env.db.Create(&escalationdomain.Escalation{
		ID: env.node.Generate(), OrderID: "1", AlertType: escalationdomain.AlertTypeSLABreach,
		Severity: escalationdomain.SeverityCritical, Status: escalationdomain.StatusPending,
		Message: "breach", CreatedAt: baseTime, UpdatedAt: baseTime,
	}).Error)
	require.NoError(t, env.db.Create(&escalationdomain.Escalation{
		ID: env.node.Generate(), OrderID: "2", AlertType: escalationdomain.AlertTypeApproachingSLA,
		Severity: escalationdomain.SeverityHigh, Status: escalationdomain.StatusResolved,
		Message: "close", CreatedAt: baseTime, UpdatedAt: baseTime,
	}).Error)

	summary, err := env.svc.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.KPIs.OrdersProcessing.Value)
	assert.Equal(t, int64(1), summary.KPIs.SLABreaches.Value)
	assert.Equal(t, int64(2), summary.KPIs.ActiveOrders.Value)
	assert.Equal(t, 350.0, summary.KPIs.RevenueToday.Value)
	assert.Equal(t, 250.0, summary.KPIs.RevenueToday.Change)
	assert.Equal(t, 33.0, summary.KPIs.FulfillmentRate.Value)
	assert.Equal(t, "11m", summary.KPIs.AvgProcessingTime.Value)

	assert.Equal(t, domain.AlertSummary{CriticalCount: 1, WarningsCount: 0, ApproachingSLACount: 1}, summary.Alerts)

	require.Len(t, summary.Charts.DailyOrders, domain.DailyOrdersDays)
	assert.Equal(t, "2026-03-02", summary.Charts.DailyOrders[6].Name)
	assert.Equal(t, 2.0, summary.Charts.DailyOrders[6].Value)
	assert.Equal(t, 1.0, summary.Charts.DailyOrders[5].Value)
	assert.Equal(t, []domain.ChartPoint{{Name: "9:00", Value: 2}}, summary.Charts.HourlySummary)

	require.Len(t, summary.Charts.FulfillmentByBranch, 2)
	assert.Equal(t, "tops-central-world", summary.Charts.FulfillmentByBranch[0].Key)
	assert.Equal(t, int64(3), summary.Charts.FulfillmentByBranch[0].Orders)
	assert.Equal(t, 33.33, summary.Charts.FulfillmentByBranch[0].Rate)
	assert.Equal(t, int64(0), summary.Charts.FulfillmentByBranch[1].Orders)

	require.Len(t, summary.Charts.TopProducts, 1)
	assert.Equal(t, "Jasmine Rice", summary.Charts.TopProducts[0].Name)
	assert.Equal(t, []domain.ChartPoint{{Name: "Grocery", Value: 100, Category: "Grocery"}}, summary.Charts.RevenueByCategory)

	assert.Equal(t, []domain.ChartPoint{
		{Name: "0-5m", Value: 0}, {Name: "5-10m", Value: 1}, {Name: "10-15m", Value: 0},
		{Name: "15-20m", Value: 0}, {Name: "20+m", Value: 0},
	}, summary.Charts.ProcessingTimes)

	require.Len(t, summary.Charts.ChannelPerformance, 2)
	assert.Equal(t, "GRAB", summary.Charts.ChannelPerformance[0].Channel)
	assert.Equal(t, 50.0, summary.Charts.ChannelPerformance[0].SLAComplianceRate)

	require.Len(t, summary.RecentOrders, 3)
	assert.Equal(t, int64(30), summary.CacheTTL)
	assert.True(t, summary.LastUpdated.Equal(baseTime))
}

func TestSummaryCachedUntilInvalidated(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.order(t, nil)
	first, err := env.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.KPIs.ActiveOrders.Value)

	env.order(t, nil)
	env.clock.Advance(10 * time.Second)
	cached, err := env.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.KPIs.ActiveOrders.Value)
	assert.Equal(t, int64(10), cached.DataFreshness)

	env.svc.Invalidate()
	fresh, err := env.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.KPIs.ActiveOrders.Value)
	assert.Equal(t, int64(0), fresh.DataFreshness)
}

func TestSummaryExpiresAfterTTL(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.Summary(ctx)
	require.NoError(t, err)
	env.order(t, nil)

	env.clock.Advance(30 * time.Second)
	summary, err := env.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.KPIs.ActiveOrders.Value)
}

func TestCalculateChange(t *testing.T) {
	assert.Equal(t, 0.0, calculateChange(0, 0))
	assert.Equal(t, 100.0, calculateChange(5, 0))
	assert.Equal(t, 50.0, calculateChange(15, 10))
	assert.Equal(t, -33.0, calculateChange(2, 3))
}

func TestGetTrend(t *testing.T) {
	assert.Equal(t, domain.TrendStable, getTrend(0, 0, false))
	assert.Equal(t, domain.TrendStable, getTrend(102, 100, false))
	assert.Equal(t, domain.TrendUp, getTrend(120, 100, false))
	assert.Equal(t, domain.TrendDown, getTrend(80, 100, false))
	assert.Equal(t, domain.TrendDown, getTrend(120, 100, true))
	assert.Equal(t, domain.TrendUp, getTrend(80, 100, true))
}
