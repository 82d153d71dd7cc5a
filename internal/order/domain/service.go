package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/orderdesk/internal/sla"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
)

var SortableColumns = map[string]struct{}{
	"order_date":   {},
	"total_amount": {},
	"created_at":   {},
	"status":       {},
}

type ListOrderRequest struct {
	StartDate     *time.Time
	EndDate       *time.Time
	CustomerID    string
	CustomerEmail string
	Status        string
	Channel       string
	BusinessUnit  string
	SLAStatus     string
	Priority      string
	Search        string
	SortBy        string
	SortOrder     string
	Page          int
	PageSize      int
}

type ListOrderResponse struct {
	Data       []OrderResponse     `json:"data"`
	Pagination pagination.PageInfo `json:"pagination"`
	Filters    map[string]any      `json:"filters"`
}

type CustomerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ProductDetails struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
}

type OrderItemResponse struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"product_id"`
	ProductName    string         `json:"product_name"`
	ProductSKU     string         `json:"product_sku"`
	Quantity       int            `json:"quantity"`
	UnitPrice      float64        `json:"unit_price"`
	TotalPrice     float64        `json:"total_price"`
	ProductDetails ProductDetails `json:"product_details"`
}

type ShippingAddress struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type PaymentInfo struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// SLAInfo reports whole minutes rounded from the stored seconds.
type SLAInfo struct {
	TargetMinutes    int64      `json:"target_minutes"`
	ElapsedMinutes   int64      `json:"elapsed_minutes"`
	Status           sla.Status `json:"status"`
	RemainingMinutes int64      `json:"remaining_minutes"`
	BreachPercentage int64      `json:"breach_percentage"`
}

type OrderMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Priority  Priority  `json:"priority"`
	StoreName string    `json:"store_name"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	OrderNo         string              `json:"order_no"`
	Customer        CustomerInfo        `json:"customer"`
	OrderDate       time.Time           `json:"order_date"`
	Status          Status              `json:"status"`
	Channel         string              `json:"channel"`
	BusinessUnit    string              `json:"business_unit"`
	OrderType       string              `json:"order_type"`
	Items           []OrderItemResponse `json:"items"`
	TotalAmount     float64             `json:"total_amount"`
	ShippingAddress ShippingAddress     `json:"shipping_address"`
	PaymentInfo     PaymentInfo         `json:"payment_info"`
	SLAInfo         SLAInfo             `json:"sla_info"`
	Metadata        OrderMetadata       `json:"metadata"`
}

type OrderCounts struct {
	BreachCount       int64     `json:"breach_count"`
	NearBreachCount   int64     `json:"near_breach_count"`
	SubmittedCount    int64     `json:"submitted_count"`
	OnHoldCount       int64     `json:"on_hold_count"`
	TotalProcessing   int64     `json:"total_processing"`
	TodayOrders       int64     `json:"today_orders"`
	UrgentOrders      int64     `json:"urgent_orders"`
	ComplianceRate    float64   `json:"compliance_rate"`
	AvgProcessingTime int64     `json:"avg_processing_time"`
	FulfillmentRate   float64   `json:"fulfillment_rate"`
	Timestamp         time.Time `json:"timestamp"`
	CacheTTLSeconds   int       `json:"cache_ttl_seconds"`
}

type SweepResult struct {
	Updated int `json:"updated"`
}

type Service interface {
	List(context.Context, ListOrderRequest) (ListOrderResponse, error)
	GetByID(ctx context.Context, id string) (OrderResponse, error)
	Counts(context.Context) (OrderCounts, error)
	UpdateSLAStatuses(context.Context) (SweepResult, error)
	ListNewBreaches(ctx context.Context, after BreachCursor, until time.Time, limit int) ([]Order, error)
}

// CacheInvalidator is implemented by aggregates that must be dropped after a sweep.
type CacheInvalidator interface {
	Invalidate()
}

// SLAObserver is told about every order whose SLA fields a sweep changed.
type SLAObserver interface {
	OnSLAChanged(ctx context.Context, orders []Order)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidSLAStatus = errors.New("invalid_sla_status")
	ErrInvalidPriority  = errors.New("invalid_priority")
	ErrInvalidSortBy    = errors.New("invalid_sort_by")
	ErrInvalidSortOrder = errors.New("invalid_sort_order")
	ErrInvalidPageSize  = errors.New("invalid_page_size")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrNotFound         = errors.New("not_found")
)
