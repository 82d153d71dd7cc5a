package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, escalation *Escalation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Escalation, error)
	FindOpen(ctx context.Context, db *gorm.DB, orderID string, alertType AlertType) (*Escalation, error)
	List(ctx context.Context, db *gorm.DB, orderID string, limit int) ([]*Escalation, error)
	ListDeliverable(ctx context.Context, db *gorm.DB, filter DeliverableFilter) ([]*Escalation, error)
	UpdateDelivery(ctx context.Context, db *gorm.DB, update DeliveryUpdate) (bool, error)
	MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	CountOpenBySeverity(ctx context.Context, db *gorm.DB) (map[Severity]int64, error)
}

type DeliverableFilter struct {
	Status        Status
	MaxRetryCount int
	UpdatedBefore *time.Time
	Limit         int
}

// DeliveryUpdate records a delivery outcome. It applies only while the row
// still has the status and retry count the delivery started from.
type DeliveryUpdate struct {
	ID                 snowflake.ID
	FromStatus         Status
	FromRetryCount     int
	Status             Status
	RetryCount         int
	NotificationSentAt *time.Time
	UpdatedAt          time.Time
}
