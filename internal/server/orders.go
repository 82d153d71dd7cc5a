package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
)

type listOrdersQuery struct {
	pagination.Pagination

	StartDate     string `form:"startDate"`
	EndDate       string `form:"endDate"`
	CustomerID    string `form:"customerId"`
	CustomerEmail string `form:"customerEmail"`
	Status        string `form:"status"`
	Channel       string `form:"channel"`
	BusinessUnit  string `form:"businessUnit"`
	SLAStatus     string `form:"slaStatus"`
	Priority      string `form:"priority"`
	Search        string `form:"search"`
	SortBy        string `form:"sortBy"`
	SortOrder     string `form:"sortOrder"`
}

func (s *Server) ListOrders(c *gin.Context) {
	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, endDate, err := orderDateRange(query.StartDate, query.EndDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListOrderRequest{
		StartDate:     startDate,
		EndDate:       endDate,
		CustomerID:    strings.TrimSpace(query.CustomerID),
		CustomerEmail: strings.TrimSpace(query.CustomerEmail),
		Status:        strings.TrimSpace(query.Status),
		Channel:       strings.TrimSpace(query.Channel),
		BusinessUnit:  strings.TrimSpace(query.BusinessUnit),
		SLAStatus:     strings.TrimSpace(query.SLAStatus),
		Priority:      strings.TrimSpace(query.Priority),
		Search:        strings.TrimSpace(query.Search),
		SortBy:        strings.TrimSpace(query.SortBy),
		SortOrder:     strings.TrimSpace(query.SortOrder),
		Page:          query.Page,
		PageSize:      query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetOrderByID(c *gin.Context) {
	resp, err := s.orderSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetOrderCounts(c *gin.Context) {
	resp, err := s.orderSvc.Counts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateSLAStatuses runs an on-demand sweep outside the scheduler.
func (s *Server) UpdateSLAStatuses(c *gin.Context) {
	resp, err := s.orderSvc.UpdateSLAStatuses(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
