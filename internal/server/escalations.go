package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
)

type createEscalationRequest struct {
	OrderID    string         `json:"order_id"`
	AlertType  string         `json:"alert_type"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	WebhookURL string         `json:"teams_webhook_url"`
	Metadata   map[string]any `json:"metadata"`
}

// CreateEscalation returns the open escalation for the order and alert type
// when one already exists.
func (s *Server) CreateEscalation(c *gin.Context) {
	var req createEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.escalationSvc.Create(c.Request.Context(), escalationdomain.CreateEscalationRequest{
		OrderID:    strings.TrimSpace(req.OrderID),
		AlertType:  req.AlertType,
		Severity:   req.Severity,
		Message:    req.Message,
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		Metadata:   req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListEscalations(c *gin.Context) {
	resp, err := s.escalationSvc.List(c.Request.Context(), escalationdomain.ListEscalationRequest{
		OrderID: strings.TrimSpace(c.Query("orderId")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ResolveEscalation(c *gin.Context) {
	resp, err := s.escalationSvc.Resolve(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
