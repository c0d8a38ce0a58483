package broker

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier adapts kafka message headers to the otel text map carrier
type headerCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// injectTraceContext writes the span context of ctx into the message headers
func injectTraceContext(ctx context.Context, msg *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: msg})
}

// extractTraceContext continues the producer's trace, if the message carries one
func extractTraceContext(ctx context.Context, msg *kafka.Message) context.Context {
	if len(msg.Headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{msg: msg})
}

// eventTyper is implemented by events that carry their type
type eventTyper interface {
	Type() string
}

func eventType(event interface{}) string {
	if t, ok := event.(eventTyper); ok {
		return t.Type()
	}
	return ""
}
