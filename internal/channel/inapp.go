package channel

import "context"

// InAppAdapter has no external transport; delivery is implicit once the
// notification record exists.
type InAppAdapter struct{}

func NewInAppAdapter() *InAppAdapter {
	return &InAppAdapter{}
}

func (a *InAppAdapter) Attempt(ctx context.Context, recipient string, subject string, body string) error {
	return nil
}
