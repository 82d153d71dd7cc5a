package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// Domain sentinels whose text doubles as the validation code, e.g.
// orderdomain.ErrInvalidSortBy answers {"field":"sort_by","code":"invalid_sort_by"}.
var domainValidationErrors = []error{
	orderdomain.ErrInvalidID,
	orderdomain.ErrInvalidStatus,
	orderdomain.ErrInvalidSLAStatus,
	orderdomain.ErrInvalidPriority,
	orderdomain.ErrInvalidSortBy,
	orderdomain.ErrInvalidSortOrder,
	orderdomain.ErrInvalidPageSize,
	orderdomain.ErrInvalidDateRange,
	escalationdomain.ErrInvalidID,
	escalationdomain.ErrInvalidOrderID,
	escalationdomain.ErrInvalidAlertType,
	escalationdomain.ErrInvalidSeverity,
	escalationdomain.ErrInvalidMessage,
	escalationdomain.ErrInvalidURL,
}

var notFoundErrors = []error{
	ErrNotFound,
	orderdomain.ErrNotFound,
	escalationdomain.ErrNotFound,
	gorm.ErrRecordNotFound,
}

// ErrorHandlingMiddleware renders the last error a handler recorded with
// AbortWithError, unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil {
			return
		}
		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

// mapError never echoes internal error text to the client.
func mapError(err error) (int, errorPayload) {
	if verrs := validationDetails(err); verrs != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: verrs}
	}
	switch {
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog feeds the request logger a type and code that never
// carry user input.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if verrs := validationDetails(err); len(verrs) > 0 {
		return "validation_error", verrs[0].Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout", "deadline_exceeded"
	}
	_, payload := mapError(err)
	return payload.Type, payload.Type
}

// validationDetails returns the field errors for a request or domain
// validation failure, and nil for anything else.
func validationDetails(err error) []ValidationError {
	if verrs := asValidationErrors(err); verrs != nil {
		return verrs.Errors
	}
	for _, target := range domainValidationErrors {
		if errors.Is(err, target) {
			code := target.Error()
			return []ValidationError{{
				Field:   strings.TrimPrefix(code, "invalid_"),
				Code:    code,
				Message: "invalid value",
			}}
		}
	}
	return nil
}

func asValidationErrors(err error) *ValidationErrors {
	var verrs *ValidationErrors
	if errors.As(err, &verrs) && verrs != nil {
		return verrs
	}
	return nil
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
