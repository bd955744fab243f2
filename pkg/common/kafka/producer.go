package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/riskboard/pkg/common/config"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
)

const sourceDashboard = "dashboard-service"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(topic string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer, topic: topic}
}

// PublishEvent wraps data in an Event envelope. Messages sharing a key land
// on the same partition.
func (p *Producer) PublishEvent(ctx context.Context, key, eventType, source string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
	if key == "" {
		key = event.ID
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "source", Value: []byte(source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": eventType,
		}).Error("Failed to publish event")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": eventType,
		"topic":      p.topic,
	}).Info("Event published successfully")

	return nil
}

// PublishOutcome emits prediction.completed or prediction.failed keyed by
// patient.
func (p *Producer) PublishOutcome(ctx context.Context, outcome models.PredictionOutcome) error {
	eventType := models.EventPredictionCompleted
	if outcome.Status == models.OutcomeFailed {
		eventType = models.EventPredictionFailed
	}
	return p.PublishEvent(ctx, outcome.PatientID, eventType, sourceDashboard, outcome)
}

// Record lets the producer act as a session outcome sink.
func (p *Producer) Record(ctx context.Context, outcome models.PredictionOutcome) error {
	return p.PublishOutcome(ctx, outcome)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
