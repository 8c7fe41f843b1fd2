package channel

import (
	"context"

	"github.com/kursadbilgin/notify-worker/internal/domain"
)

// Adapter attempts delivery of one payload over one medium. A non-nil
// error is a failure outcome for that attempt; implementations must not
// panic and must not retry internally.
type Adapter interface {
	Attempt(ctx context.Context, recipient string, subject string, body string) error
}

// Registry maps channel kinds to their adapters.
type Registry map[domain.Channel]Adapter

// For returns the adapter for a channel kind.
func (r Registry) For(channel domain.Channel) (Adapter, bool) {
	adapter, ok := r[channel]
	return adapter, ok
}
