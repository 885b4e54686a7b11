package service

import (
	"context"
	"log/slog"
)

// NotificationSender is the outbound-notification port. Delivery transport is
// an external concern; implementations must not retry internally.
type NotificationSender interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendResetCode(ctx context.Context, email, code string) error
	SendWelcome(ctx context.Context, email, name string) error
}

// LogNotificationSender writes notifications to the structured log instead of
// delivering mail. Used in development and tests.
type LogNotificationSender struct {
	logger *slog.Logger
}

func NewLogNotificationSender(logger *slog.Logger) *LogNotificationSender {
	return &LogNotificationSender{logger: logger}
}

func (n *LogNotificationSender) SendVerificationCode(ctx context.Context, email, code string) error {
	n.logger.InfoContext(ctx, "verification code issued", "email", email, "code", code)
	return nil
}

func (n *LogNotificationSender) SendResetCode(ctx context.Context, email, code string) error {
	n.logger.InfoContext(ctx, "password reset code issued", "email", email, "code", code)
	return nil
}

func (n *LogNotificationSender) SendWelcome(ctx context.Context, email, name string) error {
	n.logger.InfoContext(ctx, "welcome notification", "email", email, "name", name)
	return nil
}
