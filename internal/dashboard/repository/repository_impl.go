package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/orderdesk/internal/dashboard/domain"
	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/sla"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) KPICounts(ctx context.Context, db *gorm.DB, yesterdayStart, todayStart time.Time) (domain.KPICounts, error) {
	var row domain.KPICounts
	err := db.WithContext(ctx).Raw(
		`SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS processing,
			COALESCE(SUM(CASE WHEN sla_status = ? THEN 1 ELSE 0 END), 0) AS breaches,
			COALESCE(SUM(CASE WHEN sla_status = ? THEN 1 ELSE 0 END), 0) AS near_breaches,
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS delivered,
			COALESCE(SUM(CASE WHEN status = ? AND created_at >= ? AND created_at < ? THEN 1 ELSE 0 END), 0) AS yesterday_processing,
			COALESCE(SUM(CASE WHEN sla_status = ? AND created_at >= ? AND created_at < ? THEN 1 ELSE 0 END), 0) AS yesterday_breaches,
			COALESCE(SUM(CASE WHEN status IN (?, ?) AND created_at >= ? AND created_at < ? THEN 1 ELSE 0 END), 0) AS yesterday_active
		 FROM orders
		 WHERE deleted_at IS NULL`,
		orderdomain.StatusProcessing,
		sla.StatusBreach,
		sla.StatusNearBreach,
		orderdomain.StatusPending, orderdomain.StatusProcessing,
		orderdomain.StatusDelivered,
		orderdomain.StatusProcessing, yesterdayStart, todayStart,
		sla.StatusBreach, yesterdayStart, todayStart,
		orderdomain.StatusPending, orderdomain.StatusProcessing, yesterdayStart, todayStart,
	).Scan(&row).Error
	if err != nil {
		return domain.KPICounts{}, err
	}
	return row, nil
}

func (r *repo) Revenue(ctx context.Context, db *gorm.DB, from, to time.Time) (float64, error) {
	var total float64
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("order_date >= ? AND order_date < ?", from, to).
		Where("status <> ?", orderdomain.StatusCancelled).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) AverageElapsedSeconds(ctx context.Context, db *gorm.DB) (float64, error) {
	var avg float64
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Select("COALESCE(AVG(sla_elapsed_minutes), 0)").
		Where("status IN ?", []orderdomain.Status{orderdomain.StatusProcessing, orderdomain.StatusDelivered}).
		Scan(&avg).Error
	if err != nil {
		return 0, err
	}
	return avg, nil
}

func (r *repo) ListOrderDates(ctx context.Context, db *gorm.DB, since time.Time) ([]time.Time, error) {
	var dates []time.Time
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("order_date >= ?", since).
		Order("order_date asc").
		Pluck("order_date", &dates).Error
	if err != nil {
		return nil, err
	}
	return dates, nil
}

func (r *repo) CountBySLAStatus(ctx context.Context, db *gorm.DB) ([]domain.StatusCount, error) {
	var rows []domain.StatusCount
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Select("sla_status AS status, COUNT(*) AS total").
		Group("sla_status").
		Order("sla_status asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListDeliveredElapsed(ctx context.Context, db *gorm.DB, limit int) ([]int64, error) {
	var values []int64
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("status = ?", orderdomain.StatusDelivered).
		Order("updated_at desc").
		Limit(limit).
		Pluck("sla_elapsed_minutes", &values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (r *repo) ChannelStats(ctx context.Context, db *gorm.DB, yesterdayStart, todayStart time.Time) ([]domain.ChannelRow, error) {
	var rows []domain.ChannelRow
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Select(`channel,
			COUNT(*) AS orders,
			COALESCE(SUM(total_amount), 0) AS revenue,
			COALESCE(AVG(sla_elapsed_minutes), 0) AS avg_elapsed_seconds,
			COALESCE(SUM(CASE WHEN sla_status = ? THEN 1 ELSE 0 END), 0) AS breaches,
			COALESCE(SUM(CASE WHEN order_date >= ? THEN 1 ELSE 0 END), 0) AS today_orders,
			COALESCE(SUM(CASE WHEN order_date >= ? AND order_date < ? THEN 1 ELSE 0 END), 0) AS yesterday_orders`,
			sla.StatusBreach, todayStart, yesterdayStart, todayStart).
		Group("channel").
		Order("orders desc, channel asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) BranchStats(ctx context.Context, db *gorm.DB, branches []string) ([]domain.BranchRow, error) {
	if len(branches) == 0 {
		return nil, nil
	}
	var rows []domain.BranchRow
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Select(`store_name,
			COUNT(*) AS orders,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS fulfilled,
			COALESCE(AVG(sla_elapsed_minutes), 0) AS avg_elapsed_seconds`,
			orderdomain.StatusDelivered).
		Where("store_name IN ?", branches).
		Group("store_name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) TopProducts(ctx context.Context, db *gorm.DB, limit int) ([]domain.ProductRow, error) {
	var rows []domain.ProductRow
	err := db.WithContext(ctx).
		Model(&orderdomain.OrderItem{}).
		Select("product_name, COALESCE(SUM(quantity), 0) AS quantity, COALESCE(SUM(total_price), 0) AS revenue").
		Group("product_name").
		Order("revenue desc, product_name asc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) RevenueByCategory(ctx context.Context, db *gorm.DB) ([]domain.CategoryRow, error) {
	var rows []domain.CategoryRow
	err := db.WithContext(ctx).
		Model(&orderdomain.OrderItem{}).
		Select("product_category AS category, COALESCE(SUM(total_price), 0) AS revenue").
		Where("product_category IS NOT NULL AND product_category <> ''").
		Group("product_category").
		Order("revenue desc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) RecentOrders(ctx context.Context, db *gorm.DB, limit int) ([]orderdomain.Order, error) {
	var items []orderdomain.Order
	err := db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) OpenEscalationCounts(ctx context.Context, db *gorm.DB) (domain.EscalationCounts, error) {
	var row domain.EscalationCounts
	err := db.WithContext(ctx).
		Model(&escalationdomain.Escalation{}).
		Select(`COALESCE(SUM(CASE WHEN severity = ? THEN 1 ELSE 0 END), 0) AS critical,
			COALESCE(SUM(CASE WHEN severity IN (?, ?) THEN 1 ELSE 0 END), 0) AS warnings`,
			escalationdomain.SeverityCritical,
			escalationdomain.SeverityHigh, escalationdomain.SeverityMedium).
		Where("status IN ?", escalationdomain.OpenStatuses).
		Scan(&row).Error
	if err != nil {
		return domain.EscalationCounts{}, err
	}
	return row, nil
}
