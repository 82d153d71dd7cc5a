package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/order/repository"
	"github.com/smallbiznis/orderdesk/internal/sla"
	"github.com/smallbiznis/orderdesk/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	repo  domain.Repository
	svc   *Service
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

type recordingObserver struct{ seen []domain.Order }

func (r *recordingObserver) OnSLAChanged(_ context.Context, orders []domain.Order) {
	r.seen = append(r.seen, orders...)
}

func setup(t *testing.T, invalidators []domain.CacheInvalidator, observers []domain.SLAObserver) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Order{}, &domain.OrderItem{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(baseTime)
	repo := repository.Provide()
	svc := New(Params{
		DB:          conn,
		Log:         zaptest.NewLogger(t),
		Clock:       fc,
		Repo:        repo,
		SLAConfig:   config.NewStaticSLAConfigHolder(config.DefaultSLAConfig()),
		Invalidator: invalidators,
		Observers:   observers,
	}).(*Service)

	return &testEnv{db: conn, node: node, clock: fc, repo: repo, svc: svc}
}

func (e *testEnv) insert(t *testing.T, mutate func(*domain.Order)) *domain.Order {
	t.Helper()
	id := e.node.Generate()
	o := &domain.Order{
		ID:               id,
		OrderNo:          fmt.Sprintf("ORD-%d", id),
		CustomerID:       "cust-1",
		CustomerName:     "Somchai Jaidee",
		CustomerEmail:    "somchai@example.com",
		OrderDate:        baseTime,
		Status:           domain.StatusPending,
		Channel:          "GRAB",
		BusinessUnit:     "TOPS",
		OrderType:        "STANDARD",
		TotalAmount:      120,
		PaymentMethod:    "CARD",
		PaymentStatus:    "PAID",
		SLATargetSeconds: 300,
		SLAStatus:        sla.StatusCompliant,
		Priority:         domain.PriorityMedium,
		StoreName:        "Tops Central World",
		CreatedAt:        baseTime,
		UpdatedAt:        baseTime,
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, e.repo.Insert(context.Background(), e.db, o))
	return o
}

func (e *testEnv) reload(t *testing.T, id snowflake.ID) domain.Order {
	t.Helper()
	var o domain.Order
	require.NoError(t, e.db.First(&o, "id = ?", id).Error)
	return o
}

func TestUpdateSLAStatusesClassifiesActiveOrders(t *testing.T) {
	inv := &countingInvalidator{}
	obs := &recordingObserver{}
	env := setup(t, []domain.CacheInvalidator{inv}, []domain.SLAObserver{obs})

	breached := env.insert(t, nil)
	near := env.insert(t, func(o *domain.Order) { o.OrderDate = baseTime.Add(150 * time.Second) })
	delivered := env.insert(t, func(o *domain.Order) { o.Status = domain.StatusDelivered })

	env.clock.Set(baseTime.Add(400 * time.Second))
	res, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)

	got := env.reload(t, breached.ID)
	assert.Equal(t, sla.StatusBreach, got.SLAStatus)
	assert.Equal(t, int64(400), got.SLAElapsedSeconds)
	require.NotNil(t, got.SLABreachedAt)

	got = env.reload(t, near.ID)
	assert.Equal(t, sla.StatusNearBreach, got.SLAStatus)
	assert.Equal(t, int64(250), got.SLAElapsedSeconds)
	assert.Nil(t, got.SLABreachedAt)

	got = env.reload(t, delivered.ID)
	assert.Equal(t, sla.StatusCompliant, got.SLAStatus)
	assert.Equal(t, int64(0), got.SLAElapsedSeconds)

	assert.Equal(t, 1, inv.calls)
	assert.Len(t, obs.seen, 2)
}

func TestUpdateSLAStatusesKeepsFirstBreachTime(t *testing.T) {
	env := setup(t, nil, nil)
	o := env.insert(t, nil)

	env.clock.Set(baseTime.Add(400 * time.Second))
	_, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	first := env.reload(t, o.ID).SLABreachedAt
	require.NotNil(t, first)

	env.clock.Advance(time.Minute)
	res, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	got := env.reload(t, o.ID)
	assert.Equal(t, int64(460), got.SLAElapsedSeconds)
	require.NotNil(t, got.SLABreachedAt)
	assert.True(t, first.Equal(*got.SLABreachedAt))
}

func TestUpdateSLAStatusesRepeatedAtSameInstantWritesNothing(t *testing.T) {
	obs := &recordingObserver{}
	env := setup(t, nil, []domain.SLAObserver{obs})
	breached := env.insert(t, nil)
	env.insert(t, func(o *domain.Order) { o.OrderDate = baseTime.Add(150 * time.Second) })
	env.insert(t, func(o *domain.Order) { o.OrderDate = baseTime.Add(390 * time.Second) })

	env.clock.Set(baseTime.Add(400 * time.Second))
	res, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Updated)
	first := env.reload(t, breached.ID)

	res, err = env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Len(t, obs.seen, 3)

	again := env.reload(t, breached.ID)
	assert.True(t, first.UpdatedAt.Equal(again.UpdatedAt))
	require.NotNil(t, again.SLABreachedAt)
	assert.True(t, first.SLABreachedAt.Equal(*again.SLABreachedAt))
}

func TestUpdateSLAStatusesSkipsUnchangedAndInvalidatesAnyway(t *testing.T) {
	inv := &countingInvalidator{}
	env := setup(t, []domain.CacheInvalidator{inv}, nil)
	env.insert(t, nil)

	res, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, inv.calls)
}

func TestUpdateSLAStatusesEqualTargetStaysCompliant(t *testing.T) {
	env := setup(t, nil, nil)
	o := env.insert(t, nil)

	env.clock.Set(baseTime.Add(300 * time.Second))
	_, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)

	got := env.reload(t, o.ID)
	assert.Equal(t, sla.StatusCompliant, got.SLAStatus)
	assert.Equal(t, int64(300), got.SLAElapsedSeconds)
}

type failingRepo struct {
	domain.Repository
	failID snowflake.ID
}

func (f *failingRepo) UpdateSLA(ctx context.Context, db *gorm.DB, update domain.SLAUpdate) error {
	if update.ID == f.failID {
		return errors.New("write failed")
	}
	return f.Repository.UpdateSLA(ctx, db, update)
}

func TestUpdateSLAStatusesContinuesAfterRowFailure(t *testing.T) {
	env := setup(t, nil, nil)
	bad := env.insert(t, nil)
	good := env.insert(t, nil)
	env.svc.repo = &failingRepo{Repository: env.repo, failID: bad.ID}

	env.clock.Set(baseTime.Add(400 * time.Second))
	res, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, sla.StatusBreach, env.reload(t, good.ID).SLAStatus)
	assert.Equal(t, sla.StatusCompliant, env.reload(t, bad.ID).SLAStatus)
}

func TestCountsAreCachedUntilSweep(t *testing.T) {
	env := setup(t, nil, nil)
	env.insert(t, nil)

	first, err := env.svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SubmittedCount)
	assert.Equal(t, float64(100), first.ComplianceRate)
	assert.Equal(t, 30, first.CacheTTLSeconds)

	env.insert(t, func(o *domain.Order) { o.Priority = domain.PriorityUrgent })
	env.clock.Advance(10 * time.Second)

	cached, err := env.svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Timestamp, cached.Timestamp)
	assert.Equal(t, int64(1), cached.SubmittedCount)

	env.clock.Set(baseTime.Add(400 * time.Second))
	_, err = env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)

	fresh, err := env.svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.SubmittedCount)
	assert.Equal(t, int64(2), fresh.BreachCount)
	assert.Equal(t, int64(1), fresh.UrgentOrders)
	assert.Equal(t, float64(0), fresh.ComplianceRate)
}

func TestCountsAggregates(t *testing.T) {
	env := setup(t, nil, nil)
	env.insert(t, func(o *domain.Order) {
		o.Status = domain.StatusProcessing
		o.Priority = domain.PriorityHigh
	})
	env.insert(t, func(o *domain.Order) {
		o.Status = domain.StatusDelivered
		o.UpdatedAt = baseTime.Add(30 * time.Minute)
	})
	env.insert(t, func(o *domain.Order) {
		o.Status = domain.StatusDelivered
		o.UpdatedAt = baseTime.Add(10 * time.Minute)
	})
	env.insert(t, func(o *domain.Order) {
		o.OrderDate = baseTime.Add(-48 * time.Hour)
		o.SLAStatus = sla.StatusBreach
		o.Status = domain.StatusCancelled
	})

	counts, err := env.svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.OnHoldCount)
	assert.Equal(t, int64(1), counts.TotalProcessing)
	assert.Equal(t, int64(3), counts.TodayOrders)
	assert.Equal(t, int64(20), counts.AvgProcessingTime)
	assert.Equal(t, float64(50), counts.FulfillmentRate)
	assert.Equal(t, float64(75), counts.ComplianceRate)
}

func TestListFiltersSortsAndPaginates(t *testing.T) {
	env := setup(t, nil, nil)
	for i := 0; i < 5; i++ {
		i := i
		env.insert(t, func(o *domain.Order) {
			o.TotalAmount = float64(100 + i)
			o.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		})
	}
	env.insert(t, func(o *domain.Order) {
		o.Channel = "LINE"
		o.CustomerName = "Malee Suksan"
		o.OrderNo = "TOPS-SPECIAL-1"
	})

	resp, err := env.svc.List(context.Background(), domain.ListOrderRequest{Channel: "GRAB", PageSize: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Pagination.Total)
	assert.Equal(t, 3, resp.Pagination.TotalPages)
	assert.True(t, resp.Pagination.HasNext)
	assert.True(t, resp.Pagination.HasPrev)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, float64(102), resp.Data[0].TotalAmount)
	assert.Equal(t, "GRAB", resp.Filters["channel"])

	resp, err = env.svc.List(context.Background(), domain.ListOrderRequest{Search: "special", SortBy: "total_amount", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Malee Suksan", resp.Data[0].Customer.Name)

	resp, err = env.svc.List(context.Background(), domain.ListOrderRequest{SortBy: "total_amount", SortOrder: "ASC"})
	require.NoError(t, err)
	assert.Equal(t, float64(100), resp.Data[0].TotalAmount)
}

func TestListRejectsInvalidInput(t *testing.T) {
	env := setup(t, nil, nil)
	ctx := context.Background()

	_, err := env.svc.List(ctx, domain.ListOrderRequest{SortBy: "customer_name"})
	assert.ErrorIs(t, err, domain.ErrInvalidSortBy)
	_, err = env.svc.List(ctx, domain.ListOrderRequest{SortOrder: "sideways"})
	assert.ErrorIs(t, err, domain.ErrInvalidSortOrder)
	_, err = env.svc.List(ctx, domain.ListOrderRequest{Status: "LOST"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = env.svc.List(ctx, domain.ListOrderRequest{SLAStatus: "LATE"})
	assert.ErrorIs(t, err, domain.ErrInvalidSLAStatus)
	_, err = env.svc.List(ctx, domain.ListOrderRequest{PageSize: 101})
	assert.ErrorIs(t, err, domain.ErrInvalidPageSize)

	end := baseTime.Add(-time.Hour)
	_, err = env.svc.List(ctx, domain.ListOrderRequest{StartDate: &baseTime, EndDate: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestGetByIDReturnsSLAInfoAndItems(t *testing.T) {
	env := setup(t, nil, nil)
	o := env.insert(t, func(o *domain.Order) {
		o.Items = []domain.OrderItem{{
			ID:          env.node.Generate(),
			ProductID:   "P-1",
			ProductName: "Jasmine Rice 5kg",
			ProductSKU:  "SKU-1",
			Quantity:    2,
			UnitPrice:   60,
			TotalPrice:  120,
			CreatedAt:   baseTime,
			UpdatedAt:   baseTime,
		}}
	})

	env.clock.Set(baseTime.Add(120 * time.Second))
	resp, err := env.svc.GetByID(context.Background(), o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.SLAInfo.TargetMinutes)
	assert.Equal(t, int64(2), resp.SLAInfo.ElapsedMinutes)
	assert.Equal(t, int64(3), resp.SLAInfo.RemainingMinutes)

	env.clock.Set(baseTime.Add(400 * time.Second))
	resp, err = env.svc.GetByID(context.Background(), o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, o.OrderNo, resp.OrderNo)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Jasmine Rice 5kg", resp.Items[0].ProductName)
	assert.Equal(t, int64(5), resp.SLAInfo.TargetMinutes)
	assert.Equal(t, int64(7), resp.SLAInfo.ElapsedMinutes)
	assert.Equal(t, int64(0), resp.SLAInfo.RemainingMinutes)
	assert.Equal(t, int64(133), resp.SLAInfo.BreachPercentage)

	_, err = env.svc.GetByID(context.Background(), "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.GetByID(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListNewBreachesUsesBreachTime(t *testing.T) {
	env := setup(t, nil, nil)
	older := env.insert(t, nil)
	env.insert(t, func(o *domain.Order) { o.OrderDate = baseTime.Add(time.Minute) })

	env.clock.Set(baseTime.Add(350 * time.Second))
	_, err := env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)
	env.clock.Set(baseTime.Add(420 * time.Second))
	_, err = env.svc.UpdateSLAStatuses(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	until := baseTime.Add(time.Hour)
	all, err := env.svc.ListNewBreaches(ctx, domain.BreachCursor{At: baseTime}, until, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, older.ID, all[0].ID)

	later, err := env.svc.ListNewBreaches(ctx, domain.BreachCursor{At: baseTime.Add(351 * time.Second)}, until, 10)
	require.NoError(t, err)
	assert.Len(t, later, 1)

	next, err := env.svc.ListNewBreaches(ctx, domain.BreachCursor{At: *all[0].SLABreachedAt, ID: all[0].ID}, until, 10)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, all[1].ID, next[0].ID)

	settled, err := env.svc.ListNewBreaches(ctx, domain.BreachCursor{At: baseTime}, baseTime.Add(400*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, older.ID, settled[0].ID)
}
