// Package messaging publishes break lifecycle events.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"trade-reconciliation/internal/config"
	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
)

// Event types carried in the "event-type" header.
const (
	EventBreakCreated    = "break.created"
	EventBreakResolved   = "break.resolved"
	EventBreakEscalated  = "break.escalated"
	EventBreakTransition = "break.transition"
)

// EventType maps a break event to its published type.
func EventType(ev domain.BreakEvent) string {
	switch {
	case ev.Trigger == domain.TriggerCreate:
		return EventBreakCreated
	case ev.ToStatus == domain.StatusResolved:
		return EventBreakResolved
	case ev.Trigger == domain.TriggerEscalate:
		return EventBreakEscalated
	default:
		return EventBreakTransition
	}
}

// envelope is the JSON message body.
type envelope struct {
	Type  string            `json:"type"`
	Event domain.BreakEvent `json:"event"`
}

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes break events keyed by break id, so all events of a
// break land on one partition in order.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewKafkaWriter builds the writer for the configured topic.
func NewKafkaWriter(cfg config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}
}

// NewKafkaPublisher wraps a writer.
func NewKafkaPublisher(w MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger.OrNop(log)}
}

// Publish writes all events in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events []domain.BreakEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		typ := EventType(ev)
		data, err := json.Marshal(envelope{Type: typ, Event: ev})
		if err != nil {
			return fmt.Errorf("failed to marshal event for break %s: %w", ev.BreakID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.BreakID),
			Value:   data,
			Time:    ev.At,
			Headers: []kafka.Header{{Key: "event-type", Value: []byte(typ)}},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d break events: %w", len(msgs), err)
	}
	p.logger.Debug("published break events", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards events. Used when kafka is disabled.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, []domain.BreakEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
