package routes

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/serving"
)

// AuditStore reads the persisted prediction log.
type AuditStore interface {
	Recent(ctx context.Context, patientID string, limit int) ([]serving.PredictionLog, error)
	LatencyByMinute(ctx context.Context, window time.Duration) ([]serving.LatencyPoint, error)
}

type AuditHandler struct {
	store AuditStore
}

type PredictionLogSummary struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	PatientID   string    `json:"patientId"`
	Timeline    string    `json:"timeline"`
	Status      string    `json:"status"`
	RiskLevel   string    `json:"riskLevel,omitempty"`
	Probability float64   `json:"probability,omitempty"`
	ErrorKind   string    `json:"errorKind,omitempty"`
	HTTPStatus  int       `json:"httpStatus,omitempty"`
	LatencyMs   float64   `json:"latencyMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewAuditHandler(store AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

func (h *AuditHandler) Register(r *mux.Router) {
	r.HandleFunc("/audit/predictions", h.handlePredictions).Methods(http.MethodGet)
	r.HandleFunc("/audit/prediction-latency", h.handleLatency).Methods(http.MethodGet)
}

func (h *AuditHandler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if val := r.URL.Query().Get("limit"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	logs, err := h.store.Recent(r.Context(), r.URL.Query().Get("patient_id"), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list prediction logs")
		writeError(w, http.StatusInternalServerError, "failed to list prediction logs")
		return
	}

	out := make([]PredictionLogSummary, 0, len(logs))
	for _, log := range logs {
		out = append(out, PredictionLogSummary{
			ID:          log.ID.String(),
			SessionID:   log.SessionID,
			PatientID:   log.PatientID,
			Timeline:    log.Timeline,
			Status:      log.Status,
			RiskLevel:   log.RiskLevel,
			Probability: log.Probability,
			ErrorKind:   log.ErrorKind,
			HTTPStatus:  log.HTTPStatus,
			LatencyMs:   log.LatencyMs,
			CreatedAt:   log.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AuditHandler) handleLatency(w http.ResponseWriter, r *http.Request) {
	window := 2 * time.Hour
	if val := r.URL.Query().Get("window"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil || parsed <= 0 || parsed > 7*24*time.Hour {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = parsed
	}

	points, err := h.store.LatencyByMinute(r.Context(), window)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load prediction latency")
		writeError(w, http.StatusInternalServerError, "failed to load prediction latency")
		return
	}
	if points == nil {
		points = []serving.LatencyPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}
