package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/sla"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusReturned   Status = "RETURNED"
)

// ActiveStatuses are the only statuses whose SLA clock is still running.
var ActiveStatuses = []Status{StatusPending, StatusProcessing}

func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const DefaultSLATargetSeconds int64 = 300

// Order is a customer order. The sla_*_minutes columns hold seconds; the
// names are kept for compatibility with existing readers of the table.
type Order struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrderNo              string            `gorm:"column:order_no;not null;uniqueIndex" json:"order_no"`
	CustomerID           string            `gorm:"column:customer_id;not null;index" json:"customer_id"`
	CustomerName         string            `gorm:"column:customer_name;not null" json:"customer_name"`
	CustomerEmail        string            `gorm:"column:customer_email;not null;index" json:"customer_email"`
	CustomerPhone        string            `gorm:"column:customer_phone" json:"customer_phone"`
	OrderDate            time.Time         `gorm:"column:order_date;not null;index" json:"order_date"`
	Status               Status            `gorm:"column:status;type:varchar(20);not null;default:PENDING;index" json:"status"`
	Channel              string            `gorm:"column:channel;not null;index" json:"channel"`
	BusinessUnit         string            `gorm:"column:business_unit;not null" json:"business_unit"`
	OrderType            string            `gorm:"column:order_type;not null;default:STANDARD" json:"order_type"`
	TotalAmount          float64           `gorm:"column:total_amount;type:numeric(12,2);not null;default:0" json:"total_amount"`
	ShippingStreet       string            `gorm:"column:shipping_street" json:"shipping_street,omitempty"`
	ShippingCity         string            `gorm:"column:shipping_city" json:"shipping_city,omitempty"`
	ShippingState        string            `gorm:"column:shipping_state" json:"shipping_state,omitempty"`
	ShippingPostalCode   string            `gorm:"column:shipping_postal_code" json:"shipping_postal_code,omitempty"`
	ShippingCountry      string            `gorm:"column:shipping_country;default:TH" json:"shipping_country,omitempty"`
	PaymentMethod        string            `gorm:"column:payment_method;not null" json:"payment_method"`
	PaymentStatus        string            `gorm:"column:payment_status;not null;default:PENDING" json:"payment_status"`
	PaymentTransactionID string            `gorm:"column:payment_transaction_id" json:"payment_transaction_id,omitempty"`
	SLATargetSeconds     int64             `gorm:"column:sla_target_minutes;not null;default:300" json:"sla_target_minutes"`
	SLAElapsedSeconds    int64             `gorm:"column:sla_elapsed_minutes;not null;default:0" json:"sla_elapsed_minutes"`
	SLAStatus            sla.Status        `gorm:"column:sla_status;type:varchar(20);not null;default:COMPLIANT;index" json:"sla_status"`
	SLABreachedAt        *time.Time        `gorm:"column:sla_breached_at;index" json:"sla_breached_at,omitempty"`
	Priority             Priority          `gorm:"column:priority;type:varchar(10);not null;default:MEDIUM" json:"priority"`
	StoreName            string            `gorm:"column:store_name" json:"store_name"`
	Metadata             datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	Items                []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt            time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null" json:"updated_at"`
	DeletedAt            gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID            snowflake.ID `gorm:"column:order_id;not null;index" json:"order_id"`
	ProductID          string       `gorm:"column:product_id;not null" json:"product_id"`
	ProductName        string       `gorm:"column:product_name;not null" json:"product_name"`
	ProductSKU         string       `gorm:"column:product_sku;not null" json:"product_sku"`
	Quantity           int          `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice          float64      `gorm:"column:unit_price;type:numeric(10,2);not null" json:"unit_price"`
	TotalPrice         float64      `gorm:"column:total_price;type:numeric(10,2);not null" json:"total_price"`
	ProductDescription string       `gorm:"column:product_description" json:"product_description,omitempty"`
	ProductCategory    string       `gorm:"column:product_category;index" json:"product_category,omitempty"`
	ProductBrand       string       `gorm:"column:product_brand" json:"product_brand,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (OrderItem) TableName() string { return "order_items" }

// SLAUpdate is the subset of columns the sweep writes back.
type SLAUpdate struct {
	ID             snowflake.ID
	ElapsedSeconds int64
	Status         sla.Status
	BreachedAt     *time.Time
	UpdatedAt      time.Time
}
