package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
)

var ErrNotCached = errors.New("no cached prediction")

const keyPrefix = "riskboard:prediction:"

// ResultCache keeps the latest completed prediction per patient in Redis so
// the dashboard can show it without re-scoring.
type ResultCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewResultCache(client redis.Cmdable, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

func cacheKey(patientID string) string {
	return keyPrefix + patientID
}

// Record stores completed outcomes. Failed outcomes leave the previous entry
// in place.
func (c *ResultCache) Record(ctx context.Context, outcome models.PredictionOutcome) error {
	if outcome.Status != models.OutcomeCompleted || outcome.Result == nil {
		return nil
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(outcome.PatientID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache prediction: %w", err)
	}

	logger.Log.WithField("patient_id", outcome.PatientID).Debug("Cached latest prediction")
	return nil
}

// Latest returns the most recent completed outcome for a patient, or
// ErrNotCached.
func (c *ResultCache) Latest(ctx context.Context, patientID string) (*models.PredictionOutcome, error) {
	data, err := c.client.Get(ctx, cacheKey(patientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached prediction: %w", err)
	}

	var outcome models.PredictionOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("failed to decode cached prediction: %w", err)
	}
	return &outcome, nil
}
