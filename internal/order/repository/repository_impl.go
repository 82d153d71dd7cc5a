package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/sla"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var orders []*domain.Order
	err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at asc, id asc") }).
		Where("id = ?", id).
		Limit(1).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter, sort domain.SortOption, page pagination.Pagination) ([]*domain.Order, int64, error) {
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Order{}), filter)

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	direction := "asc"
	if sort.Desc {
		direction = "desc"
	}

	var orders []*domain.Order
	err := stmt.
		Preload("Items").
		Order(sort.Column + " " + direction).
		Order("id " + direction).
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func applyFilter(stmt *gorm.DB, filter domain.ListOrderFilter) *gorm.DB {
	if filter.StartDate != nil {
		stmt = stmt.Where("order_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		stmt = stmt.Where("order_date <= ?", *filter.EndDate)
	}
	if filter.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.CustomerEmail != "" {
		stmt = stmt.Where("customer_email = ?", filter.CustomerEmail)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Channel != "" {
		stmt = stmt.Where("channel = ?", filter.Channel)
	}
	if filter.BusinessUnit != "" {
		stmt = stmt.Where("business_unit = ?", filter.BusinessUnit)
	}
	if filter.SLAStatus != "" {
		stmt = stmt.Where("sla_status = ?", filter.SLAStatus)
	}
	if filter.Priority != "" {
		stmt = stmt.Where("priority = ?", filter.Priority)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		stmt = stmt.Where(
			"LOWER(order_no) LIKE ? OR LOWER(customer_name) LIKE ? OR LOWER(customer_email) LIKE ?",
			like, like, like,
		)
	}
	return stmt
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := db.WithContext(ctx).
		Where("status IN ?", domain.ActiveStatuses).
		Order("order_date asc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateSLA(ctx context.Context, db *gorm.DB, update domain.SLAUpdate) error {
	return db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", update.ID).
		Updates(map[string]any{
			"sla_status":          update.Status,
			"sla_elapsed_minutes": update.ElapsedSeconds,
			"sla_breached_at":     update.BreachedAt,
			"updated_at":          update.UpdatedAt,
		}).Error
}

// ListNewBreaches returns breached orders positioned after the cursor and
// stamped no later than until, in cursor order.
func (r *repo) ListNewBreaches(ctx context.Context, db *gorm.DB, after domain.BreachCursor, until time.Time, limit int) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := db.WithContext(ctx).
		Where("sla_status = ?", sla.StatusBreach).
		Where("(sla_breached_at > ? OR (sla_breached_at = ? AND id > ?))", after.At, after.At, after.ID).
		Where("sla_breached_at <= ?", until).
		Order("sla_breached_at asc, id asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) CountSummary(ctx context.Context, db *gorm.DB, todayStart time.Time) (domain.CountSummary, error) {
	var row domain.CountSummary
	err := db.WithContext(ctx).Raw(
		`SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN sla_status = ? THEN 1 ELSE 0 END), 0) AS breach_count,
			COALESCE(SUM(CASE WHEN sla_status = ? THEN 1 ELSE 0 END), 0) AS near_breach_count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS submitted_count,
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0) AS processing_count,
			COALESCE(SUM(CASE WHEN status = ? AND priority = ? THEN 1 ELSE 0 END), 0) AS on_hold_count,
			COALESCE(SUM(CASE WHEN order_date >= ? THEN 1 ELSE 0 END), 0) AS today_orders,
			COALESCE(SUM(CASE WHEN priority = ? AND status IN (?, ?) THEN 1 ELSE 0 END), 0) AS urgent_orders,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS delivered_count
		 FROM orders
		 WHERE deleted_at IS NULL`,
		sla.StatusBreach,
		sla.StatusNearBreach,
		domain.StatusPending,
		domain.StatusPending, domain.StatusProcessing,
		domain.StatusProcessing, domain.PriorityHigh,
		todayStart,
		domain.PriorityUrgent, domain.StatusPending, domain.StatusProcessing,
		domain.StatusDelivered,
	).Scan(&row).Error
	if err != nil {
		return domain.CountSummary{}, err
	}
	return row, nil
}

func (r *repo) ListDeliveredDurations(ctx context.Context, db *gorm.DB, limit int) ([]time.Duration, error) {
	var rows []struct {
		OrderDate time.Time
		UpdatedAt time.Time
	}
	err := db.WithContext(ctx).
		Model(&domain.Order{}).
		Select("order_date, updated_at").
		Where("status = ?", domain.StatusDelivered).
		Order("updated_at desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]time.Duration, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.UpdatedAt.Sub(row.OrderDate))
	}
	return out, nil
}
