package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Publisher is the subset of broker.Producer the Kafka sender needs
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// BreakerConfig tunes the circuit breaker in front of the broker
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerConfig trips after five consecutive failures and lets a trial call through after 30s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// KafkaSender publishes notifications to the notification topic
type KafkaSender struct {
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewKafkaSender creates a new Kafka-backed sender
func NewKafkaSender(publisher Publisher, cfg BreakerConfig) *KafkaSender {
	logger := util.GetLogger()

	settings := gobreaker.Settings{
		Name:        "notifications",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &KafkaSender{
		publisher: publisher,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
	}
}

// Send publishes the notification through the circuit breaker
func (s *KafkaSender) Send(ctx context.Context, recipient, subject, body string) error {
	msg := &models.Notification{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.publisher.PublishEvent(ctx, recipient, msg)
	})
	if err != nil {
		reason := "publish"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = "breaker_open"
		}
		util.NotificationsFailedTotal.WithLabelValues(reason).Inc()
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	util.NotificationsSentTotal.Inc()
	return nil
}

// State reports the current breaker state
func (s *KafkaSender) State() string {
	return s.breaker.State().String()
}
