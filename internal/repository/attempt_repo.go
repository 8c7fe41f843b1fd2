package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-worker/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository persists per-channel outcome history so a job's
// aggregate status never hides which channel exhausted.
type AttemptRepository interface {
	RecordOutcomes(ctx context.Context, notificationID int64, outcomes []domain.ChannelOutcome) error
	GetByNotificationID(ctx context.Context, notificationID int64) ([]domain.ChannelOutcome, error)
}

type GormAttemptRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db, now: time.Now}
}

func (r *GormAttemptRepo) RecordOutcomes(ctx context.Context, notificationID int64, outcomes []domain.ChannelOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	models := make([]DeliveryAttemptModel, 0, len(outcomes))
	createdAt := r.now().UTC()
	for _, outcome := range outcomes {
		var errText *string
		if msg := strings.TrimSpace(outcome.LastError); msg != "" {
			errText = &msg
		}

		models = append(models, DeliveryAttemptModel{
			ID:             uuid.NewString(),
			NotificationID: notificationID,
			Channel:        outcome.Channel,
			Attempts:       outcome.Attempts,
			Delivered:      outcome.Delivered,
			Error:          errText,
			CreatedAt:      createdAt,
		})
	}

	return r.db.WithContext(ctx).Create(&models).Error
}

func (r *GormAttemptRepo) GetByNotificationID(ctx context.Context, notificationID int64) ([]domain.ChannelOutcome, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.ChannelOutcome, 0, len(models))
	for i := range models {
		outcome := domain.ChannelOutcome{
			Channel:   models[i].Channel,
			Delivered: models[i].Delivered,
			Attempts:  models[i].Attempts,
		}
		if models[i].Error != nil {
			outcome.LastError = *models[i].Error
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}
