package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const eventTypeHeader = "event-type"

// Producer writes JSON messages to one topic. Messages with the same key
// land on the same partition, so events of one order stay ordered.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer, logger: util.GetLogger()}
}

// PublishEvent marshals event and writes it under key, carrying the trace
// context of ctx in the message headers
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	ctx, span := util.GetTracer().Start(ctx, "kafka.publish "+p.writer.Topic,
		trace.WithSpanKind(trace.SpanKindProducer))

	value, err := json.Marshal(event)
	if err != nil {
		util.EndSpan(span, err)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if typ := eventType(event); typ != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: eventTypeHeader, Value: []byte(typ)})
		span.SetAttributes(attribute.String("event.type", typ))
	}
	injectTraceContext(ctx, &msg)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		err = fmt.Errorf("failed to write message to %s: %w", p.writer.Topic, err)
		util.EndSpan(span, err)
		return err
	}
	span.End()

	p.logger.Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("event_type", eventType(event)))
	return nil
}

// Close flushes pending writes and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic as part of a consumer group
type Consumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{reader: reader, logger: util.GetLogger()}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler handles one fetched message
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages until ctx is done. A message is committed
// only after handler succeeded. A handler error stops consumption without
// committing, so the message is redelivered on restart; wrap the handler
// with WithRetry to keep retrying in place instead.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	topic := c.reader.Config().Topic
	c.logger.Info("Starting Kafka consumer", zap.String("topic", topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Consumer context cancelled, stopping", zap.String("topic", topic))
				return nil
			}
			c.logger.Error("Error fetching message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer context cancelled, stopping", zap.String("topic", topic))
				return nil
			}
			c.logger.Error("Error handling message, stopping consumer",
				zap.String("topic", topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return fmt.Errorf("handle %s/%d@%d: %w", topic, msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) (err error) {
	ctx = extractTraceContext(ctx, &msg)
	ctx, span := util.GetTracer().Start(ctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		))
	defer func() { util.EndSpan(span, err) }()

	return handler(ctx, msg)
}
