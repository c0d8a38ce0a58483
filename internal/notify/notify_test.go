package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	err   error
	calls int
	last  []byte
}

func (f *fakePublisher) PublishEvent(ctx context.Context, key string, event interface{}) error {
	f.calls++
	f.last, _ = json.Marshal(event)
	return f.err
}

func TestKafkaSender_Send(t *testing.T) {
	pub := &fakePublisher{}
	s := NewKafkaSender(pub, DefaultBreakerConfig())

	require.NoError(t, s.Send(context.Background(), "a@example.com", "Order #1", "hello"))

	var got models.Notification
	require.NoError(t, json.Unmarshal(pub.last, &got))
	assert.Equal(t, "a@example.com", got.Recipient)
	assert.Equal(t, "Order #1", got.Subject)
	assert.Equal(t, "hello", got.Body)
}

func TestKafkaSender_BreakerOpensAfterFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	s := NewKafkaSender(pub, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := s.Send(ctx, "a@example.com", "s", "b")
		assert.ErrorIs(t, err, ErrDeliveryFailed)
	}
	assert.Equal(t, gobreaker.StateOpen.String(), s.State())

	err := s.Send(ctx, "a@example.com", "s", "b")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, pub.calls)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender().Send(context.Background(), "a@example.com", "s", "b"))
}
