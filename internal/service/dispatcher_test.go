package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kursadbilgin/notify-worker/internal/backoff"
	"github.com/kursadbilgin/notify-worker/internal/channel"
	"github.com/kursadbilgin/notify-worker/internal/domain"
	"github.com/kursadbilgin/notify-worker/internal/queue"
	"go.uber.org/zap"
)

type fakeUserRepo struct {
	getByIDFn func(ctx context.Context, id int64) (*domain.User, error)
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return f.getByIDFn(ctx, id)
}

type fakeAdapter struct {
	attemptFn func(ctx context.Context, recipient string, subject string, body string) error
}

func (f *fakeAdapter) Attempt(ctx context.Context, recipient string, subject string, body string) error {
	return f.attemptFn(ctx, recipient, subject, body)
}

type fakeLimiter struct {
	waitFn func(ctx context.Context, channel domain.Channel) error
}

func (f *fakeLimiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, channel)
}

func testUser() *domain.User {
	return &domain.User{
		ID:    7,
		Name:  "Ada",
		Email: "ada@example.com",
		Phone: "+15550100",
	}
}

func newTestDispatcher(t *testing.T, users *fakeUserRepo, adapters channel.Registry) (*Dispatcher, *[]time.Duration) {
	t.Helper()

	dispatcher, err := NewDispatcher(users, adapters, backoff.DefaultPolicy(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	slept := &[]time.Duration{}
	dispatcher.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}

	return dispatcher, slept
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	emailCalls := 0
	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			emailCalls++
			if emailCalls < 3 {
				return fmt.Errorf("smtp temporarily unavailable")
			}
			return nil
		}},
		domain.ChannelSMS: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			return nil
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return testUser(), nil
	}}

	dispatcher, slept := newTestDispatcher(t, users, adapters)

	job := queue.DeliveryJob{
		NotificationID: 42,
		UserID:         7,
		Title:          "hello",
		Message:        "world",
		Types:          []string{"email", "sms"},
	}

	result, err := dispatcher.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if result.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent", result.Status)
	}
	if result.RetryCount != 1 {
		t.Fatalf("retryCount = %d, want 1 (last channel's attempts)", result.RetryCount)
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(result.Outcomes))
	}
	if !result.Outcomes[0].Delivered || result.Outcomes[0].Attempts != 3 {
		t.Fatalf("email outcome = %+v, want delivered after 3 attempts", result.Outcomes[0])
	}
	if !result.Outcomes[1].Delivered || result.Outcomes[1].Attempts != 1 {
		t.Fatalf("sms outcome = %+v, want delivered on first attempt", result.Outcomes[1])
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("backoff waits = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("backoff wait %d = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestDispatcherAllChannelsExhausted(t *testing.T) {
	t.Parallel()

	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			return errors.New("mailbox unavailable")
		}},
		domain.ChannelSMS: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			return errors.New("carrier rejected")
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return testUser(), nil
	}}

	dispatcher, _ := newTestDispatcher(t, users, adapters)

	job := queue.DeliveryJob{
		NotificationID: 43,
		UserID:         7,
		Types:          []string{"email", "sms"},
	}

	result, err := dispatcher.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if result.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.RetryCount != 3 {
		t.Fatalf("retryCount = %d, want 3", result.RetryCount)
	}
	for _, outcome := range result.Outcomes {
		if outcome.Delivered {
			t.Fatalf("outcome %s delivered, want exhausted", outcome.Channel)
		}
		if outcome.Attempts != 3 {
			t.Fatalf("outcome %s attempts = %d, want 3", outcome.Channel, outcome.Attempts)
		}
		if outcome.LastError == "" {
			t.Fatalf("outcome %s has no last error", outcome.Channel)
		}
	}
}

func TestDispatcherSequentialChannelIsolation(t *testing.T) {
	t.Parallel()

	var order []string
	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			order = append(order, "email:"+recipient)
			return errors.New("hard bounce")
		}},
		domain.ChannelSMS: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			order = append(order, "sms:"+recipient)
			return nil
		}},
		domain.ChannelInApp: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			order = append(order, "in_app:"+recipient)
			return nil
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return testUser(), nil
	}}

	dispatcher, _ := newTestDispatcher(t, users, adapters)

	job := queue.DeliveryJob{
		NotificationID: 44,
		UserID:         7,
		Types:          []string{"email", "sms", "in_app"},
	}

	result, err := dispatcher.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent despite email exhaustion", result.Status)
	}

	want := []string{
		"email:ada@example.com",
		"email:ada@example.com",
		"email:ada@example.com",
		"sms:+15550100",
		"in_app:user:7",
	}
	if len(order) != len(want) {
		t.Fatalf("attempt order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("attempt %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestDispatcherUserNotFound(t *testing.T) {
	t.Parallel()

	attempted := false
	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			attempted = true
			return nil
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return nil, domain.ErrNotFound
	}}

	dispatcher, _ := newTestDispatcher(t, users, adapters)

	job := queue.DeliveryJob{
		NotificationID: 45,
		UserID:         999,
		Types:          []string{"email"},
	}

	result, err := dispatcher.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if attempted {
		t.Fatal("adapter should not be invoked without a resolved user")
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Attempts != 0 {
		t.Fatalf("outcomes = %+v, want one zero-attempt outcome", result.Outcomes)
	}
}

func TestDispatcherUserLookupErrorPropagates(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection refused")
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return nil, storeErr
	}}
	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			return nil
		}},
	}

	dispatcher, _ := newTestDispatcher(t, users, adapters)

	job := queue.DeliveryJob{NotificationID: 46, UserID: 7, Types: []string{"email"}}
	if _, err := dispatcher.Dispatch(context.Background(), job); !errors.Is(err, storeErr) {
		t.Fatalf("Dispatch() error = %v, want wrapped %v", err, storeErr)
	}
}

func TestDispatcherMissingAdapter(t *testing.T) {
	t.Parallel()

	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			return nil
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return testUser(), nil
	}}

	dispatcher, _ := newTestDispatcher(t, users, adapters)

	job := queue.DeliveryJob{NotificationID: 47, UserID: 7, Types: []string{"sms"}}
	result, err := dispatcher.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Outcomes[0].Attempts != 0 || result.Outcomes[0].LastError == "" {
		t.Fatalf("outcome = %+v, want zero attempts with error", result.Outcomes[0])
	}
}

func TestDispatcherWaitsOnLimiterBeforeEveryAttempt(t *testing.T) {
	t.Parallel()

	waits := 0
	limiter := &fakeLimiter{waitFn: func(ctx context.Context, channel domain.Channel) error {
		waits++
		return nil
	}}

	calls := 0
	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			calls++
			if calls < 2 {
				return errors.New("greylisted")
			}
			return nil
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return testUser(), nil
	}}

	dispatcher, err := NewDispatcher(users, adapters, backoff.DefaultPolicy(), limiter, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	job := queue.DeliveryJob{NotificationID: 48, UserID: 7, Types: []string{"email"}}
	if _, err := dispatcher.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if waits != calls {
		t.Fatalf("limiter waits = %d, want %d (one per attempt)", waits, calls)
	}
}

func TestDispatcherLimiterOutageIsNotTerminal(t *testing.T) {
	t.Parallel()

	limiterErr := errors.New("redis: connection refused")
	limiter := &fakeLimiter{waitFn: func(ctx context.Context, channel domain.Channel) error {
		return limiterErr
	}}

	attempted := false
	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(ctx context.Context, recipient, subject, body string) error {
			attempted = true
			return nil
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
		return testUser(), nil
	}}

	dispatcher, err := NewDispatcher(users, adapters, backoff.DefaultPolicy(), limiter, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	job := queue.DeliveryJob{NotificationID: 50, UserID: 7, Types: []string{"email"}}
	result, err := dispatcher.Dispatch(context.Background(), job)
	if !errors.Is(err, limiterErr) {
		t.Fatalf("Dispatch() error = %v, want wrapped %v (job must be redelivered)", err, limiterErr)
	}
	if result.Status.IsTerminal() {
		t.Fatalf("status = %s, want no terminal result from a limiter outage", result.Status)
	}
	if attempted {
		t.Fatal("adapter must not run when the limiter is unavailable")
	}
}

func TestDispatcherStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	adapters := channel.Registry{
		domain.ChannelEmail: &fakeAdapter{attemptFn: func(c context.Context, recipient, subject, body string) error {
			cancel()
			return nil
		}},
		domain.ChannelSMS: &fakeAdapter{attemptFn: func(c context.Context, recipient, subject, body string) error {
			t.Fatal("sms should not run after cancellation")
			return nil
		}},
	}
	users := &fakeUserRepo{getByIDFn: func(c context.Context, id int64) (*domain.User, error) {
		return testUser(), nil
	}}

	dispatcher, _ := newTestDispatcher(t, users, adapters)

	job := queue.DeliveryJob{NotificationID: 49, UserID: 7, Types: []string{"email", "sms"}}
	if _, err := dispatcher.Dispatch(ctx, job); !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}
}
