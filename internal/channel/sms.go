package channel

import (
	"context"

	"go.uber.org/zap"
)

// SMSAdapter is a log-only placeholder. There is no gateway integration
// behind it; every attempt is reported as delivered.
type SMSAdapter struct {
	logger *zap.Logger
}

func NewSMSAdapter(logger *zap.Logger) *SMSAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSAdapter{logger: logger}
}

func (a *SMSAdapter) Attempt(ctx context.Context, recipient string, subject string, body string) error {
	a.logger.Info("sms delivery stub",
		zap.String("to", recipient),
		zap.String("message", body),
	)
	return nil
}
