package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/escalation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, escalation *domain.Escalation) error {
	return db.WithContext(ctx).Create(escalation).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Escalation, error) {
	var items []*domain.Escalation
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (r *repo) FindOpen(ctx context.Context, db *gorm.DB, orderID string, alertType domain.AlertType) (*domain.Escalation, error) {
	var items []*domain.Escalation
	err := db.WithContext(ctx).
		Where("order_id = ? AND alert_type = ?", orderID, alertType).
		Where("status IN ?", domain.OpenStatuses).
		Order("created_at asc").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orderID string, limit int) ([]*domain.Escalation, error) {
	var items []*domain.Escalation
	stmt := db.WithContext(ctx).Model(&domain.Escalation{})
	if orderID != "" {
		stmt = stmt.Where("order_id = ?", orderID)
	}
	if err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListDeliverable(ctx context.Context, db *gorm.DB, filter domain.DeliverableFilter) ([]*domain.Escalation, error) {
	var items []*domain.Escalation
	stmt := db.WithContext(ctx).
		Where("status = ?", filter.Status).
		Where("retry_count < ?", filter.MaxRetryCount)
	if filter.UpdatedBefore != nil {
		stmt = stmt.Where("updated_at < ?", *filter.UpdatedBefore)
	}
	if err := stmt.Order("created_at asc").Limit(filter.Limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateDelivery(ctx context.Context, db *gorm.DB, update domain.DeliveryUpdate) (bool, error) {
	values := map[string]any{
		"status":      update.Status,
		"retry_count": update.RetryCount,
		"updated_at":  update.UpdatedAt,
	}
	if update.NotificationSentAt != nil {
		values["notification_sent_at"] = update.NotificationSentAt
	}
	res := db.WithContext(ctx).
		Model(&domain.Escalation{}).
		Where("id = ? AND status = ? AND retry_count = ?", update.ID, update.FromStatus, update.FromRetryCount).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Escalation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.StatusResolved,
			"resolved_at": at,
			"updated_at":  at,
		}).Error
}

func (r *repo) CountOpenBySeverity(ctx context.Context, db *gorm.DB) (map[domain.Severity]int64, error) {
	var rows []struct {
		Severity domain.Severity
		Total    int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Escalation{}).
		Select("severity, COUNT(*) AS total").
		Where("status IN ?", domain.OpenStatuses).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Severity]int64, len(rows))
	for _, row := range rows {
		out[row.Severity] = row.Total
	}
	return out, nil
}
