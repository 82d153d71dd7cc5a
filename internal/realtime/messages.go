package realtime

import (
	"encoding/json"
	"slices"
	"time"
)

type Topic string

const (
	TopicOrders    Topic = "orders"
	TopicDashboard Topic = "dashboard"
	TopicAlerts    Topic = "alerts"
	TopicAll       Topic = "all"
)

func (t Topic) Valid() bool {
	switch t {
	case TopicOrders, TopicDashboard, TopicAlerts, TopicAll:
		return true
	}
	return false
}

type UpdateType string

const (
	UpdateOrder            UpdateType = "ORDER_UPDATE"
	UpdateSLABreach        UpdateType = "SLA_BREACH"
	UpdateDashboardRefresh UpdateType = "DASHBOARD_REFRESH"
	UpdateSystemAlert      UpdateType = "SYSTEM_ALERT"
)

// Server to client events.
const (
	EventConnected           = "connected"
	EventSubscriptionUpdated = "subscription_updated"
	EventDashboardInitial    = "dashboard_initial"
	EventRealtimeUpdate      = "realtime_update"
	EventPong                = "pong"
	EventError               = "error"
)

// Client to server events.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventPing        = "ping"
)

const (
	SourceOrders           = "orders-service"
	SourceSLAMonitor       = "sla-monitor"
	SourceScheduledRefresh = "scheduled-refresh"
	SourceSystemMonitor    = "system-monitor"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Update struct {
	Type      UpdateType `json:"type"`
	Payload   any        `json:"payload"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
}

// Subject identifies the order an update is about so client filters can
// apply. Updates without a subject pass every filter.
type Subject struct {
	OrderID  string `json:"order_id"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
}

type Filters struct {
	OrderIDs   []string `json:"order_ids,omitempty"`
	Channels   []string `json:"channels,omitempty"`
	Priorities []string `json:"priorities,omitempty"`
}

func (f Filters) Match(s *Subject) bool {
	if s == nil {
		return true
	}
	if len(f.OrderIDs) > 0 && !slices.Contains(f.OrderIDs, s.OrderID) {
		return false
	}
	if len(f.Channels) > 0 && !slices.Contains(f.Channels, s.Channel) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, s.Priority) {
		return false
	}
	return true
}

// Broadcast is one fan-out request; it is also the backplane wire format.
type Broadcast struct {
	Topic   Topic    `json:"topic"`
	Update  Update   `json:"update"`
	Subject *Subject `json:"subject,omitempty"`
}

type SubscribeRequest struct {
	Types   []Topic `json:"types"`
	Filters Filters `json:"filters"`
}

type UnsubscribeRequest struct {
	Types []Topic `json:"types"`
}

type ConnectedMessage struct {
	ClientID      string    `json:"clientId"`
	Timestamp     time.Time `json:"timestamp"`
	Subscriptions []Topic   `json:"subscriptions"`
}

type SubscriptionMessage struct {
	Subscriptions []Topic   `json:"subscriptions"`
	Filters       Filters   `json:"filters"`
	Timestamp     time.Time `json:"timestamp"`
}

type TimestampMessage struct {
	Timestamp time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type Stats struct {
	TotalConnections int           `json:"total_connections"`
	Subscriptions    map[Topic]int `json:"subscriptions_breakdown"`
	Backplane        bool          `json:"backplane"`
	Timestamp        time.Time     `json:"timestamp"`
}

type OrderUpdatePayload struct {
	OrderID      string  `json:"order_id"`
	OrderNo      string  `json:"order_no"`
	NewStatus    string  `json:"new_status"`
	SLAStatus    string  `json:"sla_status"`
	CustomerName string  `json:"customer_name"`
	TotalAmount  float64 `json:"total_amount"`
	ElapsedTime  int64   `json:"elapsed_time"`
}

type SLABreachPayload struct {
	OrderID          string `json:"order_id"`
	OrderNo          string `json:"order_no"`
	CustomerName     string `json:"customer_name"`
	ElapsedTime      int64  `json:"elapsed_time"`
	TargetTime       int64  `json:"target_time"`
	Severity         string `json:"severity"`
	BreachPercentage int64  `json:"breach_percentage"`
}

type DashboardRefreshPayload struct {
	AffectedKPIs []string `json:"affected_kpis"`
	Summary      any      `json:"summary"`
}

type SystemAlertPayload struct {
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Severity string         `json:"severity"`
	Data     map[string]any `json:"data,omitempty"`
}
