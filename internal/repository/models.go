package repository

import (
	"time"

	"github.com/kursadbilgin/notify-worker/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
// Records are created by the intake service; the worker only updates
// status, retry_count, and sent_at.
type NotificationModel struct {
	ID               int64         `gorm:"primaryKey"`
	UserID           int64         `gorm:"not null"`
	Title            string        `gorm:"type:varchar(255);not null"`
	Message          string        `gorm:"type:text;not null"`
	NotificationType string        `gorm:"type:varchar(64);not null"`
	Status           domain.Status `gorm:"type:varchar(20);not null;default:pending"`
	RetryCount       int           `gorm:"not null;default:0"`
	CreatedAt        time.Time
	SentAt           *time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// UserModel is the persistence model for users. Read-only for the worker;
// it is the source of recipient identities.
type UserModel struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"type:varchar(255)"`
	Email     string `gorm:"type:varchar(255)"`
	Phone     string `gorm:"type:varchar(20)"`
	CreatedAt time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// DeliveryAttemptModel records the final outcome of one channel within
// one job: how many attempts were made and whether any succeeded.
type DeliveryAttemptModel struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	NotificationID int64          `gorm:"not null"`
	Channel        domain.Channel `gorm:"type:varchar(10);not null"`
	Attempts       int            `gorm:"not null"`
	Delivered      bool           `gorm:"not null"`
	Error          *string        `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	channels, _ := domain.ParseChannels(m.NotificationType)

	return &domain.Notification{
		ID:         m.ID,
		UserID:     m.UserID,
		Title:      m.Title,
		Message:    m.Message,
		Channels:   channels,
		Status:     m.Status,
		RetryCount: m.RetryCount,
		CreatedAt:  m.CreatedAt,
		SentAt:     m.SentAt,
	}
}

func userModelToDomain(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}

	return &domain.User{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
	}
}
