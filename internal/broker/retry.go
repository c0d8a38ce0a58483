package broker

import (
	"context"
	"errors"
	"time"

	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformed marks a message that can never be handled, whatever the retry
var ErrMalformed = errors.New("malformed message")

// RetryPolicy bounds the wait between attempts at one message
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used by the consumers
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// WithRetry retries handler on the same message with exponential backoff
// until it succeeds or ctx is done, so the partition never moves past an
// unhandled message. Malformed messages are logged and dropped.
func WithRetry(handler MessageHandler, policy RetryPolicy) MessageHandler {
	logger := util.GetLogger()

	return func(ctx context.Context, msg kafka.Message) error {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = policy.InitialInterval
		b.MaxInterval = policy.MaxInterval
		b.MaxElapsedTime = 0

		op := func() error {
			err := handler(ctx, msg)
			if errors.Is(err, ErrMalformed) {
				return backoff.Permanent(err)
			}
			return err
		}

		notify := func(err error, wait time.Duration) {
			logger.Warn("Retrying message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Duration("wait", wait),
				zap.Error(err))
		}

		err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
		if errors.Is(err, ErrMalformed) {
			logger.Error("Dropping malformed message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		return err
	}
}
