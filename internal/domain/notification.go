package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further processing may touch the record.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ParseChannels parses the comma-joined notification_type column value.
func ParseChannels(s string) ([]Channel, error) {
	parts := strings.Split(s, ",")
	channels := make([]Channel, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		ch, err := ParseChannelFromString(part)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", ErrValidation)
	}
	return channels, nil
}

// JoinChannels renders a channel list as the comma-joined column value.
func JoinChannels(channels []Channel) string {
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, ch.String())
	}
	return strings.Join(parts, ",")
}

// Notification is the durable record a delivery job references. It is
// created upstream; the worker only drives it to a terminal status.
// Invariant: SentAt is non-nil iff Status is StatusSent.
type Notification struct {
	ID         int64
	UserID     int64
	Title      string
	Message    string
	Channels   []Channel
	Status     Status
	RetryCount int
	CreatedAt  time.Time
	SentAt     *time.Time
}

// User is the recipient-identity record channel addresses resolve from.
type User struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// Recipient returns the channel-specific delivery address for the user.
func (u User) Recipient(channel Channel) string {
	switch channel {
	case ChannelEmail:
		return u.Email
	case ChannelSMS:
		return u.Phone
	case ChannelInApp:
		return fmt.Sprintf("user:%d", u.ID)
	default:
		return ""
	}
}
