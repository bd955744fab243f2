package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PredictionLog is the audit record of one terminal prediction outcome.
type PredictionLog struct {
	ID           uuid.UUID         `gorm:"primaryKey;column:id"`
	SessionID    string            `gorm:"column:session_id;index"`
	Token        uint64            `gorm:"column:token"`
	PatientID    string            `gorm:"column:patient_id;index"`
	Timeline     string            `gorm:"column:timeline"`
	Status       string            `gorm:"column:status"`
	RiskLevel    string            `gorm:"column:risk_level"`
	Probability  float64           `gorm:"column:probability"`
	Confidence   float64           `gorm:"column:confidence"`
	ModelName    string            `gorm:"column:model_name"`
	ModelVersion string            `gorm:"column:model_version"`
	ErrorKind    string            `gorm:"column:error_kind"`
	ErrorMessage string            `gorm:"column:error_message"`
	HTTPStatus   int               `gorm:"column:http_status"`
	Request      datatypes.JSONMap `gorm:"column:request"`
	Response     datatypes.JSONMap `gorm:"column:response"`
	LatencyMs    float64           `gorm:"column:latency_ms"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
}

// TableName overrides gorm naming.
func (PredictionLog) TableName() string {
	return "prediction_logs"
}

// Repository handles prediction logs queries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionLog{})
}

// RecordOutcome persists one outcome.
func (r *Repository) RecordOutcome(ctx context.Context, outcome models.PredictionOutcome) error {
	log, err := newPredictionLog(outcome)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

// Record lets the repository act as a session outcome sink.
func (r *Repository) Record(ctx context.Context, outcome models.PredictionOutcome) error {
	return r.RecordOutcome(ctx, outcome)
}

// Recent returns the most recent prediction logs up to limit, optionally for
// one patient.
func (r *Repository) Recent(ctx context.Context, patientID string, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	tx := r.db.WithContext(ctx)
	if patientID != "" {
		tx = tx.Where("patient_id = ?", patientID)
	}
	var logs []PredictionLog
	err := tx.
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func newPredictionLog(outcome models.PredictionOutcome) (PredictionLog, error) {
	request := make(datatypes.JSONMap, len(outcome.Features))
	for key, value := range outcome.Features {
		request[key] = value
	}

	createdAt := outcome.RecordedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	log := PredictionLog{
		ID:           uuid.New(),
		SessionID:    outcome.SessionID,
		Token:        outcome.Token,
		PatientID:    outcome.PatientID,
		Timeline:     outcome.Timeline,
		Status:       outcome.Status,
		ErrorKind:    outcome.ErrorKind,
		ErrorMessage: outcome.ErrorMessage,
		HTTPStatus:   outcome.HTTPStatus,
		Request:      request,
		LatencyMs:    float64(outcome.Latency.Microseconds()) / 1000.0,
		CreatedAt:    createdAt.UTC(),
	}

	if result := outcome.Result; result != nil {
		response, err := toJSONMap(result)
		if err != nil {
			return PredictionLog{}, err
		}
		log.Response = response
		log.RiskLevel = string(result.Level())
		log.Probability = result.RiskAssessment.DeteriorationProbability
		log.Confidence = result.RiskAssessment.Confidence
		log.ModelName = result.ModelInfo.ModelName
		log.ModelVersion = result.ModelInfo.ModelVersion
	}
	return log, nil
}

func toJSONMap(v interface{}) (datatypes.JSONMap, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction response: %w", err)
	}
	out := datatypes.JSONMap{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert prediction response: %w", err)
	}
	return out, nil
}

// LatencyPoint is the mean scoring latency over one minute.
type LatencyPoint struct {
	Bucket    time.Time `gorm:"column:bucket" json:"timestamp"`
	LatencyMs float64   `gorm:"column:latency_ms" json:"latencyMs"`
	Total     int64     `gorm:"column:total" json:"total"`
}

// LatencyByMinute buckets recorded outcomes from the last window.
func (r *Repository) LatencyByMinute(ctx context.Context, window time.Duration) ([]LatencyPoint, error) {
	if window <= 0 {
		window = 2 * time.Hour
	}
	var points []LatencyPoint
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			date_trunc('minute', created_at) AS bucket,
			COALESCE(AVG(latency_ms), 0) AS latency_ms,
			COUNT(*) AS total
		FROM prediction_logs
		WHERE created_at > ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`, time.Now().UTC().Add(-window)).Scan(&points).Error
	return points, err
}
