package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/pkg/models"
)

// ViolationMessage is the wire shape published for each rejected request.
type ViolationMessage struct {
	Event     *models.ViolationEvent `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
}

// MessageBus publishes violation events to Kafka for the analytics pipeline.
// A nil-configured bus (kafka.enabled = false) is valid and drops publishes.
type MessageBus struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if !cfg.Kafka.Enabled {
		logger.Info("Kafka disabled, violation events stay local")
		return &MessageBus{logger: logger}, nil
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka enabled but no brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.Violations,
		Balancer:     &kafka.Hash{}, // Key by principal so one principal's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	return &MessageBus{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishViolation emits one event. Async writer: errors surface through the
// writer's completion callback path, so this mostly fails on serialization.
func (mb *MessageBus) PublishViolation(ctx context.Context, event *models.ViolationEvent) error {
	if mb.writer == nil {
		return nil
	}

	msg := ViolationMessage{
		Event:     event,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal violation message: %w", err)
	}

	err = mb.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Principal),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish violation: %w", err)
	}

	return nil
}

func (mb *MessageBus) Close() {
	if mb.writer == nil {
		return
	}
	if err := mb.writer.Close(); err != nil {
		mb.logger.WithError(err).Warn("Failed to close Kafka writer")
	}
}
