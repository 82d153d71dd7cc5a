package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertTypeSLABreach      AlertType = "SLA_BREACH"
	AlertTypeApproachingSLA AlertType = "APPROACHING_SLA"
	AlertTypeCriticalError  AlertType = "CRITICAL_ERROR"
	AlertTypeSystemAlert    AlertType = "SYSTEM_ALERT"
)

func (a AlertType) Valid() bool {
	switch a {
	case AlertTypeSLABreach, AlertTypeApproachingSLA, AlertTypeCriticalError, AlertTypeSystemAlert:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusResolved Status = "RESOLVED"
	StatusFailed   Status = "FAILED"
)

// OpenStatuses block a second escalation for the same order and alert type.
var OpenStatuses = []Status{StatusPending, StatusSent}

// MaxRetryCount is the number of delivery attempts before an escalation is abandoned.
const MaxRetryCount = 3

type Escalation struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrderID            string            `gorm:"column:order_id;not null;index:idx_escalations_order_alert" json:"order_id"`
	AlertType          AlertType         `gorm:"column:alert_type;type:varchar(20);not null;index:idx_escalations_order_alert" json:"alert_type"`
	Severity           Severity          `gorm:"column:severity;type:varchar(10);not null;default:MEDIUM" json:"severity"`
	Status             Status            `gorm:"column:status;type:varchar(10);not null;default:PENDING;index" json:"status"`
	Message            string            `gorm:"column:message;type:text;not null" json:"message"`
	WebhookURL         string            `gorm:"column:webhook_url" json:"webhook_url,omitempty"`
	NotificationSentAt *time.Time        `gorm:"column:notification_sent_at" json:"notification_sent_at,omitempty"`
	ResolvedAt         *time.Time        `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	RetryCount         int               `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	Metadata           datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt          time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null" json:"updated_at"`
}

func (Escalation) TableName() string { return "escalations" }
