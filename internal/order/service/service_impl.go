package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/cache"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	obsmetrics "github.com/smallbiznis/orderdesk/internal/observability/metrics"
	"github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/sla"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const processingTimeSample = 1000

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	SLAConfig   *config.SLAConfigHolder   `optional:"true"`
	Metrics     *obsmetrics.Metrics       `optional:"true"`
	Invalidator []domain.CacheInvalidator `group:"order_cache_invalidators"`
	Observers   []domain.SLAObserver      `group:"order_sla_observers"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	slaConfig   *config.SLAConfigHolder
	metrics     *obsmetrics.Metrics
	invalidator []domain.CacheInvalidator
	observers   []domain.SLAObserver
	counts      *cache.Slot[domain.OrderCounts]
}

func New(p Params) domain.Service {
	cfg := p.SLAConfig.Get()
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		slaConfig:   p.SLAConfig,
		metrics:     p.Metrics,
		invalidator: p.Invalidator,
		observers:   p.Observers,
		counts:      cache.NewSlot[domain.OrderCounts](p.Clock, cfg.CacheTTL()),
	}
}

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	filter, err := s.buildFilter(req)
	if err != nil {
		return domain.ListOrderResponse{}, err
	}
	sort, err := parseSort(req.SortBy, req.SortOrder)
	if err != nil {
		return domain.ListOrderResponse{}, err
	}
	if req.PageSize > pagination.MaxPageSize {
		return domain.ListOrderResponse{}, domain.ErrInvalidPageSize
	}
	page := pagination.Pagination{Page: req.Page, PageSize: req.PageSize}.Normalize()

	items, total, err := s.repo.List(ctx, s.db, filter, sort, page)
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	now := s.clock.Now()
	data := make([]domain.OrderResponse, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		data = append(data, toResponse(*item, now))
	}

	return domain.ListOrderResponse{
		Data:       data,
		Pagination: pagination.BuildPageInfo(page, total),
		Filters:    echoFilters(req, sort, page),
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.OrderResponse, error) {
	orderID, err := parseID(id)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	if item == nil {
		return domain.OrderResponse{}, domain.ErrNotFound
	}

	return toResponse(*item, s.clock.Now()), nil
}

func (s *Service) Counts(ctx context.Context) (domain.OrderCounts, error) {
	s.counts.SetTTL(s.slaConfig.Get().CacheTTL())
	return s.counts.Get(ctx, s.computeCounts)
}

func (s *Service) computeCounts(ctx context.Context) (domain.OrderCounts, error) {
	now := s.clock.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	row, err := s.repo.CountSummary(ctx, s.db, todayStart)
	if err != nil {
		return domain.OrderCounts{}, err
	}
	durations, err := s.repo.ListDeliveredDurations(ctx, s.db, processingTimeSample)
	if err != nil {
		return domain.OrderCounts{}, err
	}

	complianceRate := 100.0
	fulfillmentRate := 0.0
	if row.Total > 0 {
		complianceRate = round2(float64(row.Total-row.BreachCount) / float64(row.Total) * 100)
		fulfillmentRate = round2(float64(row.DeliveredCount) / float64(row.Total) * 100)
	}

	return domain.OrderCounts{
		BreachCount:       row.BreachCount,
		NearBreachCount:   row.NearBreachCount,
		SubmittedCount:    row.SubmittedCount,
		OnHoldCount:       row.OnHoldCount,
		TotalProcessing:   row.ProcessingCount,
		TodayOrders:       row.TodayOrders,
		UrgentOrders:      row.UrgentOrders,
		ComplianceRate:    complianceRate,
		AvgProcessingTime: averageMinutes(durations),
		FulfillmentRate:   fulfillmentRate,
		Timestamp:         now,
		CacheTTLSeconds:   int(s.counts.TTL() / time.Second),
	}, nil
}

// UpdateSLAStatuses re-evaluates every active order and persists the ones whose
// status or elapsed time moved. A failed row is logged and skipped.
func (s *Service) UpdateSLAStatuses(ctx context.Context) (domain.SweepResult, error) {
	defer s.invalidateCaches()

	orders, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return domain.SweepResult{}, err
	}

	evaluator := sla.NewEvaluator(s.slaConfig.Get().NearBreachRatio)
	changed := make([]domain.Order, 0)
	byStatus := map[sla.Status]int{}
	failed := 0

	for _, order := range orders {
		if order == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return domain.SweepResult{Updated: len(changed)}, err
		}

		now := s.clock.Now()
		res := evaluator.Evaluate(order.OrderDate, order.SLATargetSeconds, now)
		if res.Status == order.SLAStatus && res.ElapsedSeconds == order.SLAElapsedSeconds {
			continue
		}

		update := domain.SLAUpdate{
			ID:             order.ID,
			ElapsedSeconds: res.ElapsedSeconds,
			Status:         res.Status,
			BreachedAt:     breachedAt(order, res.Status, now),
			UpdatedAt:      now,
		}
		if err := s.repo.UpdateSLA(ctx, s.db, update); err != nil {
			failed++
			s.log.Warn("failed to update order sla",
				zap.String("order_id", order.ID.String()),
				zap.String("order_no", order.OrderNo),
				zap.Error(err),
			)
			continue
		}

		order.SLAStatus = update.Status
		order.SLAElapsedSeconds = update.ElapsedSeconds
		order.SLABreachedAt = update.BreachedAt
		order.UpdatedAt = update.UpdatedAt
		changed = append(changed, *order)
		byStatus[update.Status]++
	}

	for status, count := range byStatus {
		s.metrics.RecordSLAUpdates(ctx, string(status), count)
	}
	s.log.Info("sla sweep completed",
		zap.Int("scanned", len(orders)),
		zap.Int("updated", len(changed)),
		zap.Int("failed", failed),
	)

	if len(changed) > 0 {
		for _, observer := range s.observers {
			observer.OnSLAChanged(ctx, changed)
		}
	}

	return domain.SweepResult{Updated: len(changed)}, nil
}

func (s *Service) ListNewBreaches(ctx context.Context, after domain.BreachCursor, until time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	items, err := s.repo.ListNewBreaches(ctx, s.db, after, until, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) invalidateCaches() {
	s.counts.Invalidate()
	for _, inv := range s.invalidator {
		inv.Invalidate()
	}
}

// breachedAt keeps the first breach time while an order stays breached.
func breachedAt(order *domain.Order, status sla.Status, now time.Time) *time.Time {
	if status != sla.StatusBreach {
		return nil
	}
	if order.SLAStatus == sla.StatusBreach && order.SLABreachedAt != nil {
		return order.SLABreachedAt
	}
	t := now
	return &t
}

func (s *Service) buildFilter(req domain.ListOrderRequest) (domain.ListOrderFilter, error) {
	filter := domain.ListOrderFilter{
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		CustomerID:    strings.TrimSpace(req.CustomerID),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Channel:       strings.TrimSpace(req.Channel),
		BusinessUnit:  strings.TrimSpace(req.BusinessUnit),
		Search:        strings.TrimSpace(req.Search),
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return filter, domain.ErrInvalidDateRange
	}
	if v := strings.ToUpper(strings.TrimSpace(req.Status)); v != "" {
		status := domain.Status(v)
		if !status.Valid() {
			return filter, domain.ErrInvalidStatus
		}
		filter.Status = status
	}
	if v := strings.ToUpper(strings.TrimSpace(req.SLAStatus)); v != "" {
		if !sla.IsValidStatus(v) {
			return filter, domain.ErrInvalidSLAStatus
		}
		filter.SLAStatus = v
	}
	if v := strings.ToUpper(strings.TrimSpace(req.Priority)); v != "" {
		priority := domain.Priority(v)
		if !priority.Valid() {
			return filter, domain.ErrInvalidPriority
		}
		filter.Priority = priority
	}
	return filter, nil
}

func parseSort(sortBy, sortOrder string) (domain.SortOption, error) {
	column := strings.ToLower(strings.TrimSpace(sortBy))
	if column == "" {
		column = "created_at"
	}
	if _, ok := domain.SortableColumns[column]; !ok {
		return domain.SortOption{}, domain.ErrInvalidSortBy
	}

	switch strings.ToUpper(strings.TrimSpace(sortOrder)) {
	case "", "DESC":
		return domain.SortOption{Column: column, Desc: true}, nil
	case "ASC":
		return domain.SortOption{Column: column, Desc: false}, nil
	default:
		return domain.SortOption{}, domain.ErrInvalidSortOrder
	}
}

func echoFilters(req domain.ListOrderRequest, sort domain.SortOption, page pagination.Pagination) map[string]any {
	filters := map[string]any{
		"page":      page.Page,
		"pageSize":  page.PageSize,
		"sortBy":    sort.Column,
		"sortOrder": "ASC",
	}
	if sort.Desc {
		filters["sortOrder"] = "DESC"
	}
	add := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			filters[key] = v
		}
	}
	add("customerId", req.CustomerID)
	add("customerEmail", req.CustomerEmail)
	add("status", req.Status)
	add("channel", req.Channel)
	add("businessUnit", req.BusinessUnit)
	add("slaStatus", req.SLAStatus)
	add("priority", req.Priority)
	add("search", req.Search)
	if req.StartDate != nil {
		filters["startDate"] = req.StartDate.Format(time.RFC3339)
	}
	if req.EndDate != nil {
		filters["endDate"] = req.EndDate.Format(time.RFC3339)
	}
	return filters
}

func toResponse(order domain.Order, now time.Time) domain.OrderResponse {
	live := sla.Evaluate(order.OrderDate, order.SLATargetSeconds, now)

	items := make([]domain.OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, domain.OrderItemResponse{
			ID:          item.ID.String(),
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
			ProductDetails: domain.ProductDetails{
				Description: item.ProductDescription,
				Category:    item.ProductCategory,
				Brand:       item.ProductBrand,
			},
		})
	}

	return domain.OrderResponse{
		ID:      order.ID.String(),
		OrderNo: order.OrderNo,
		Customer: domain.CustomerInfo{
			ID:    order.CustomerID,
			Name:  order.CustomerName,
			Email: order.CustomerEmail,
			Phone: order.CustomerPhone,
		},
		OrderDate:    order.OrderDate,
		Status:       order.Status,
		Channel:      order.Channel,
		BusinessUnit: order.BusinessUnit,
		OrderType:    order.OrderType,
		Items:        items,
		TotalAmount:  order.TotalAmount,
		ShippingAddress: domain.ShippingAddress{
			Street:     order.ShippingStreet,
			City:       order.ShippingCity,
			State:      order.ShippingState,
			PostalCode: order.ShippingPostalCode,
			Country:    order.ShippingCountry,
		},
		PaymentInfo: domain.PaymentInfo{
			Method:        order.PaymentMethod,
			Status:        order.PaymentStatus,
			TransactionID: order.PaymentTransactionID,
		},
		SLAInfo: domain.SLAInfo{
			TargetMinutes:    sla.Minutes(order.SLATargetSeconds),
			ElapsedMinutes:   sla.Minutes(live.ElapsedSeconds),
			Status:           order.SLAStatus,
			RemainingMinutes: sla.Minutes(live.DisplayRemainingSeconds()),
			BreachPercentage: live.BreachPercentage(),
		},
		Metadata: domain.OrderMetadata{
			CreatedAt: order.CreatedAt,
			UpdatedAt: order.UpdatedAt,
			Priority:  order.Priority,
			StoreName: order.StoreName,
		},
	}
}

func averageMinutes(durations []time.Duration) int64 {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return int64(math.Round((total / time.Duration(len(durations))).Minutes()))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
