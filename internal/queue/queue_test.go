package queue

import (
	"testing"

	"github.com/kursadbilgin/notify-worker/internal/domain"
)

func TestDLQName(t *testing.T) {
	t.Parallel()

	if got := DLQName(WorkQueue); got != "dlq.notifications" {
		t.Fatalf("DLQName = %s, want dlq.notifications", got)
	}
}

func TestDeliveryJobValidate(t *testing.T) {
	t.Parallel()

	valid := DeliveryJob{
		NotificationID: 1,
		UserID:         7,
		Title:          "A",
		Message:        "B",
		Types:          []string{"email", "sms"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*DeliveryJob)
	}{
		{
			name: "missing notification id",
			mutate: func(j *DeliveryJob) {
				j.NotificationID = 0
			},
		},
		{
			name: "missing user id",
			mutate: func(j *DeliveryJob) {
				j.UserID = 0
			},
		},
		{
			name: "empty types",
			mutate: func(j *DeliveryJob) {
				j.Types = nil
			},
		},
		{
			name: "invalid type",
			mutate: func(j *DeliveryJob) {
				j.Types = []string{"email", "pigeon"}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := valid
			tt.mutate(&job)
			if err := job.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDeliveryJobChannelsPreservesOrder(t *testing.T) {
	t.Parallel()

	job := DeliveryJob{
		NotificationID: 1,
		UserID:         7,
		Types:          []string{"sms", "email", "in_app"},
	}

	channels := job.Channels()
	want := []domain.Channel{domain.ChannelSMS, domain.ChannelEmail, domain.ChannelInApp}
	if len(channels) != len(want) {
		t.Fatalf("Channels() len = %d, want %d", len(channels), len(want))
	}
	for i := range want {
		if channels[i] != want[i] {
			t.Fatalf("Channels()[%d] = %s, want %s", i, channels[i], want[i])
		}
	}
}
