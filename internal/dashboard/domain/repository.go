package domain

import (
	"context"
	"time"

	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"gorm.io/gorm"
)

type Repository interface {
	KPICounts(ctx context.Context, db *gorm.DB, yesterdayStart, todayStart time.Time) (KPICounts, error)
	Revenue(ctx context.Context, db *gorm.DB, from, to time.Time) (float64, error)
	AverageElapsedSeconds(ctx context.Context, db *gorm.DB) (float64, error)
	ListOrderDates(ctx context.Context, db *gorm.DB, since time.Time) ([]time.Time, error)
	CountBySLAStatus(ctx context.Context, db *gorm.DB) ([]StatusCount, error)
	ListDeliveredElapsed(ctx context.Context, db *gorm.DB, limit int) ([]int64, error)
	ChannelStats(ctx context.Context, db *gorm.DB, yesterdayStart, todayStart time.Time) ([]ChannelRow, error)
	BranchStats(ctx context.Context, db *gorm.DB, branches []string) ([]BranchRow, error)
	TopProducts(ctx context.Context, db *gorm.DB, limit int) ([]ProductRow, error)
	RevenueByCategory(ctx context.Context, db *gorm.DB) ([]CategoryRow, error)
	RecentOrders(ctx context.Context, db *gorm.DB, limit int) ([]orderdomain.Order, error)
	OpenEscalationCounts(ctx context.Context, db *gorm.DB) (EscalationCounts, error)
}

// KPICounts holds the current totals and the counts of yesterday's orders
// that the change percentages compare against.
type KPICounts struct {
	Processing          int64
	Breaches            int64
	NearBreaches        int64
	Active              int64
	Delivered           int64
	Total               int64
	YesterdayProcessing int64
	YesterdayBreaches   int64
	YesterdayActive     int64
}

type StatusCount struct {
	Status string
	Total  int64
}

type ChannelRow struct {
	Channel           string
	Orders            int64
	Revenue           float64
	AvgElapsedSeconds float64
	Breaches          int64
	TodayOrders       int64
	YesterdayOrders   int64
}

type BranchRow struct {
	StoreName         string
	Orders            int64
	Fulfilled         int64
	AvgElapsedSeconds float64
}

type ProductRow struct {
	ProductName string
	Quantity    int64
	Revenue     float64
}

type CategoryRow struct {
	Category string
	Revenue  float64
}

// EscalationCounts splits open escalations by urgency.
type EscalationCounts struct {
	Critical int64
	Warnings int64
}
