package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// HeaderEventType carries the event type so consumers can filter without
// decoding the payload
const HeaderEventType = "event-type"

// ErrMalformedEvent marks messages that can never be handled. The consumer
// commits past them instead of retrying.
var ErrMalformedEvent = errors.New("malformed event")

// typedEvent is implemented by every event through models.BaseEvent
type typedEvent interface {
	Type() string
}

// Producer writes JSON events to the storefront topic
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a producer that keeps each session's events on one
// partition
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}

	return &Producer{writer: writer, logger: util.GetLogger().Named("producer")}
}

// PublishEvent writes event under key with the trace context of ctx in its
// headers
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventType := "unknown"
	if te, ok := event.(typedEvent); ok {
		eventType = te.Type()
	}

	value, err := json.Marshal(event)
	if err != nil {
		util.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		util.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}

	util.EventsPublishedTotal.WithLabelValues(eventType, "ok").Inc()
	p.logger.Debug("Published event", zap.String("key", key), zap.String("type", eventType))
	return nil
}

// Close flushes pending writes
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Retry delays for a message whose handler failed
const (
	minRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

// Consumer reads the storefront topic as part of a consumer group
type Consumer struct {
	reader     messageReader
	topic      string
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

// NewConsumer joins groupID on topic, starting from the oldest offset the
// group has not committed
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})

	return newConsumer(reader, topic)
}

func newConsumer(reader messageReader, topic string) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		minBackoff: minRetryBackoff,
		maxBackoff: maxRetryBackoff,
		logger:     util.GetLogger().Named("consumer"),
	}
}

// Close leaves the group
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler processes one message
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages until ctx is done. Committing a later
// offset of a partition also commits every earlier one, so a message whose
// handler fails is retried with backoff before the next one is fetched.
// Messages reported as ErrMalformedEvent are committed without retry.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer stopped", zap.String("topic", c.topic))
				return ctx.Err()
			}
			c.logger.Warn("Error fetching message", zap.String("topic", c.topic), zap.Error(err))
			if err := sleep(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			c.logger.Info("Consumer stopped with message pending",
				zap.String("topic", c.topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset))
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("Error committing message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle runs handler on msg until it succeeds or reports a malformed
// event. It only fails when ctx ends first.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	eventType := headerValue(msg.Headers, HeaderEventType)
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &msg.Headers})

	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := handler(msgCtx, msg)
		switch {
		case err == nil:
			util.EventsConsumedTotal.WithLabelValues(eventType, "ok").Inc()
			return nil
		case errors.Is(err, ErrMalformedEvent):
			util.EventsConsumedTotal.WithLabelValues(eventType, "skipped").Inc()
			c.logger.Warn("Skipping malformed message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}

		util.EventsConsumedTotal.WithLabelValues(eventType, "error").Inc()
		c.logger.Error("Error handling message, retrying",
			zap.String("type", eventType),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// headerCarrier adapts message headers to the otel propagation API
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	return headerValue(*c.headers, key)
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}
