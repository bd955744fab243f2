package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/riskboard/pkg/common/config"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
)

const fetchBackoff = 500 * time.Millisecond

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	backoff time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(topic string, groupID string) *Consumer {
	cfg := config.Load()
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: reader, backoff: fetchBackoff}
}

// Consume runs until ctx is done. A failing handler is retried on the same
// message until it succeeds, since committing any later offset would skip it.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			if err := c.wait(ctx); err != nil {
				return err
			}
			continue
		}

		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Log.WithError(err).Error("Failed to unmarshal event")
			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Log.WithError(err).Error("Failed to commit message")
			}
			continue
		}

		for attempt := 1; ; attempt++ {
			err := handler(ctx, event)
			if err == nil {
				break
			}
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"event_id": event.ID,
				"attempt":  attempt,
			}).Error("Failed to process event")
			if err := c.wait(ctx); err != nil {
				return err
			}
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			logger.Log.WithError(err).Error("Failed to commit message")
		}
	}
}

func (c *Consumer) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	backoff := c.backoff
	if backoff <= 0 {
		backoff = fetchBackoff
	}
	select {
	case <-time.After(backoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DecodeOutcome extracts the prediction outcome carried by an event.
func DecodeOutcome(event models.Event) (models.PredictionOutcome, error) {
	var outcome models.PredictionOutcome
	switch event.Type {
	case models.EventPredictionCompleted, models.EventPredictionFailed:
	default:
		return outcome, fmt.Errorf("unexpected event type %q", event.Type)
	}
	if err := json.Unmarshal(event.Data, &outcome); err != nil {
		return outcome, fmt.Errorf("failed to decode outcome: %w", err)
	}
	return outcome, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
