package domain

import (
	"context"
	"errors"
	"time"
)

type CreateEscalationRequest struct {
	OrderID    string         `json:"order_id"`
	AlertType  string         `json:"alert_type"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	WebhookURL string         `json:"webhook_url"`
	Metadata   map[string]any `json:"metadata"`
}

type ListEscalationRequest struct {
	OrderID string
}

// DeliveryResult summarizes one retry sweep.
type DeliveryResult struct {
	Attempted int
	Sent      int
	Failed    int
}

type Service interface {
	Create(context.Context, CreateEscalationRequest) (Escalation, error)
	List(context.Context, ListEscalationRequest) ([]Escalation, error)
	Resolve(ctx context.Context, id string) (Escalation, error)
	ProcessPending(context.Context) (DeliveryResult, error)
	RetryFailed(context.Context) (DeliveryResult, error)
	OpenCounts(context.Context) (map[Severity]int64, error)
	Wait()
}

// AlertBroadcaster pushes critical escalations to live dashboards.
type AlertBroadcaster interface {
	BroadcastSystemAlert(ctx context.Context, title, message string, severity string, data map[string]any)
}

const (
	PendingBatchSize = 10
	RetryBatchSize   = 5
	ListLimit        = 100
	RetryCooldown    = 5 * time.Second
)

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidOrderID   = errors.New("invalid_order_id")
	ErrInvalidAlertType = errors.New("invalid_alert_type")
	ErrInvalidSeverity  = errors.New("invalid_severity")
	ErrInvalidMessage   = errors.New("invalid_message")
	ErrInvalidURL       = errors.New("invalid_webhook_url")
	ErrNotFound         = errors.New("not_found")
)
