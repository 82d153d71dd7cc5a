package service

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/orderdesk/internal/escalation/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/providers/webhook"
)

func buildCard(e domain.Escalation, order *orderdomain.Order) webhook.Card {
	label := alertLabel(e.AlertType)
	facts := []webhook.Fact{
		{Name: "Alert Type", Value: label},
		{Name: "Severity", Value: string(e.Severity)},
		{Name: "Order ID", Value: e.OrderID},
	}
	if order != nil {
		facts = append(facts,
			webhook.Fact{Name: "Order Number", Value: order.OrderNo},
			webhook.Fact{Name: "Customer", Value: order.CustomerName},
			webhook.Fact{Name: "Status", Value: string(order.Status)},
			webhook.Fact{Name: "SLA Status", Value: string(order.SLAStatus)},
			webhook.Fact{Name: "Elapsed Time", Value: formatElapsed(order.SLAElapsedSeconds)},
		)
	}

	return webhook.Card{
		Title:   cardTitle(e.AlertType),
		Summary: e.Message,
		Color:   severityColor(e.Severity),
		Sections: []webhook.Section{{
			ActivityTitle:    label,
			ActivitySubtitle: e.Message,
			Facts:            facts,
			Markdown:         true,
		}},
	}
}

func alertLabel(t domain.AlertType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}

func severityColor(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "FF0000"
	case domain.SeverityHigh:
		return "FF8C00"
	case domain.SeverityMedium:
		return "FFD700"
	case domain.SeverityLow:
		return "32CD32"
	default:
		return "808080"
	}
}

func cardTitle(t domain.AlertType) string {
	switch t {
	case domain.AlertTypeSLABreach:
		return "🚨 SLA Breach Alert"
	case domain.AlertTypeApproachingSLA:
		return "⚠️ Approaching SLA Deadline"
	case domain.AlertTypeCriticalError:
		return "💥 Critical System Error"
	case domain.AlertTypeSystemAlert:
		return "📢 System Alert"
	default:
		return "🔔 Notification"
	}
}

func formatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
}
