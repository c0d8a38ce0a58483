// Package notify is the gateway to the external notification channel.
// Delivery is fire-and-forget from the caller's point of view: errors are
// returned so they can be logged, never to abort business operations.
package notify

import (
	"context"
	"errors"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// ErrDeliveryFailed is returned when the gateway did not accept a message
var ErrDeliveryFailed = errors.New("notification delivery failed")

// Sender hands a message to the notification channel
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogSender writes notifications to the log. Used when Kafka is disabled.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a new log-only sender
func NewLogSender() *LogSender {
	return &LogSender{logger: util.GetLogger()}
}

// Send logs the message
func (s *LogSender) Send(ctx context.Context, recipient, subject, body string) error {
	s.logger.Info("Notification",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body))
	util.NotificationsSentTotal.Inc()
	return nil
}
