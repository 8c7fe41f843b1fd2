package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-worker/internal/domain"
	"gorm.io/gorm"
)

var terminalStatuses = []domain.Status{domain.StatusSent, domain.StatusFailed}

type NotificationRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Notification, error)
	MarkSent(ctx context.Context, id int64, retryCount int, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, retryCount int) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// MarkSent moves the record to its terminal sent state and stamps
// sent_at. Terminal states are never overwritten, so re-running the same
// job after redelivery is a no-op.
func (r *GormNotificationRepo) MarkSent(ctx context.Context, id int64, retryCount int, sentAt time.Time) error {
	return r.markTerminal(ctx, id, map[string]any{
		"status":      domain.StatusSent,
		"retry_count": retryCount,
		"sent_at":     sentAt,
	})
}

// MarkFailed moves the record to its terminal failed state; sent_at
// stays null.
func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id int64, retryCount int) error {
	return r.markTerminal(ctx, id, map[string]any{
		"status":      domain.StatusFailed,
		"retry_count": retryCount,
	})
}

func (r *GormNotificationRepo) markTerminal(ctx context.Context, id int64, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Either the record is missing or it already reached a terminal state.
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return nil
}
