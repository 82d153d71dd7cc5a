package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderdesk/internal/providers/webhook"
	"gorm.io/gorm"
)

// Error types for scheduler log lines.
const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeNetwork          = "network"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeRedis            = "redis"
	SchedulerErrorTypeWebhook          = "webhook"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeUnknown          = "unknown"
)

// Reasons label orderdesk_scheduler_job_errors_total.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonNetwork              = "network"
	SchedulerJobReasonRedis                = "redis"
	SchedulerJobReasonWebhookRejected      = "webhook_rejected"
	SchedulerJobReasonUnknown              = "unknown"
)

// SchedulerError is the low-cardinality view of a job failure.
type SchedulerError struct {
	Type      string
	Reason    string
	Retryable bool
}

// ClassifySchedulerError maps a job error onto its type, metric reason and
// whether the next tick can be expected to succeed.
func ClassifySchedulerError(err error) SchedulerError {
	var (
		pgErr     *pgconn.PgError
		statusErr *webhook.StatusError
		redisErr  redis.Error
		netErr    net.Error
	)
	switch {
	case err == nil:
		return SchedulerError{Type: SchedulerErrorTypeUnknown, Reason: SchedulerJobReasonUnknown}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerError{SchedulerErrorTypeDeadlineExceeded, SchedulerJobReasonDeadlineExceeded, true}
	case errors.As(err, &statusErr):
		// a 4xx means the card or URL is wrong and will fail again
		retry := statusErr.StatusCode >= http.StatusInternalServerError || statusErr.StatusCode == http.StatusTooManyRequests
		return SchedulerError{SchedulerErrorTypeWebhook, SchedulerJobReasonWebhookRejected, retry}
	case errors.As(err, &pgErr):
		return SchedulerError{SchedulerErrorTypeDB, pgReason(pgErr.Code), true}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return SchedulerError{SchedulerErrorTypeDB, SchedulerJobReasonUniqueViolation, true}
	case errors.As(err, &redisErr) && !errors.Is(err, redis.Nil):
		return SchedulerError{SchedulerErrorTypeRedis, SchedulerJobReasonRedis, true}
	case errors.As(err, &netErr):
		return SchedulerError{SchedulerErrorTypeNetwork, SchedulerJobReasonNetwork, true}
	case isGormFailure(err):
		return SchedulerError{SchedulerErrorTypeDB, SchedulerJobReasonUnknown, true}
	default:
		return SchedulerError{SchedulerErrorTypeBusinessRule, SchedulerJobReasonUnknown, false}
	}
}

func pgReason(code string) string {
	switch code {
	case "55P03":
		return SchedulerJobReasonDBLockTimeout
	case "40001":
		return SchedulerJobReasonSerializationFailure
	case "23505":
		return SchedulerJobReasonUniqueViolation
	default:
		return SchedulerJobReasonUnknown
	}
}

var gormFailures = []error{
	gorm.ErrInvalidDB,
	gorm.ErrInvalidTransaction,
	gorm.ErrInvalidField,
	gorm.ErrInvalidData,
	gorm.ErrMissingWhereClause,
	gorm.ErrUnsupportedDriver,
	gorm.ErrInvalidValue,
	gorm.ErrNotImplemented,
}

func isGormFailure(err error) bool {
	for _, target := range gormFailures {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
