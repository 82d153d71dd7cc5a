package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrderFilter, sort SortOption, page pagination.Pagination) ([]*Order, int64, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]*Order, error)
	UpdateSLA(ctx context.Context, db *gorm.DB, update SLAUpdate) error
	ListNewBreaches(ctx context.Context, db *gorm.DB, after BreachCursor, until time.Time, limit int) ([]*Order, error)
	CountSummary(ctx context.Context, db *gorm.DB, todayStart time.Time) (CountSummary, error)
	ListDeliveredDurations(ctx context.Context, db *gorm.DB, limit int) ([]time.Duration, error)
}

type ListOrderFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	CustomerID    string
	CustomerEmail string
	Status        Status
	Channel       string
	BusinessUnit  string
	SLAStatus     string
	Priority      Priority
	Search        string
}

// BreachCursor is a position in breach order: breach time, then id.
type BreachCursor struct {
	At time.Time
	ID snowflake.ID
}

// Before reports whether c sorts before other.
func (c BreachCursor) Before(other BreachCursor) bool {
	if c.At.Equal(other.At) {
		return c.ID < other.ID
	}
	return c.At.Before(other.At)
}

type SortOption struct {
	Column string
	Desc   bool
}

// CountSummary is the raw row behind the order counts endpoint.
type CountSummary struct {
	Total           int64
	BreachCount     int64
	NearBreachCount int64
	SubmittedCount  int64
	ProcessingCount int64
	OnHoldCount     int64
	TodayOrders     int64
	UrgentOrders    int64
	DeliveredCount  int64
}
