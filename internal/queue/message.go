package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-worker/internal/domain"
)

// DeliveryJob is the broker payload describing one delivery request.
// Immutable once enqueued; the broker may redeliver it.
type DeliveryJob struct {
	NotificationID int64    `json:"notification_id"`
	UserID         int64    `json:"user_id"`
	Title          string   `json:"title"`
	Message        string   `json:"message"`
	Types          []string `json:"types"`
}

func (j DeliveryJob) Validate() error {
	if j.NotificationID <= 0 {
		return fmt.Errorf("notification_id is required")
	}
	if j.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if len(j.Types) == 0 {
		return fmt.Errorf("at least one delivery type is required")
	}
	for _, t := range j.Types {
		if _, err := domain.ParseChannelFromString(t); err != nil {
			return fmt.Errorf("invalid delivery type %q", t)
		}
	}
	return nil
}

// Channels returns the requested channel kinds in payload order.
func (j DeliveryJob) Channels() []domain.Channel {
	channels := make([]domain.Channel, 0, len(j.Types))
	for _, t := range j.Types {
		ch, err := domain.ParseChannelFromString(t)
		if err != nil {
			continue
		}
		channels = append(channels, ch)
	}
	return channels
}

func (j DeliveryJob) String() string {
	return fmt.Sprintf("job notification=%d user=%d types=%s",
		j.NotificationID, j.UserID, strings.Join(j.Types, ","))
}
