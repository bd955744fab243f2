package routes

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/prediction"
)

// ModelService is the read-only side of the prediction service.
type ModelService interface {
	Health(ctx context.Context) error
	ModelInfo(ctx context.Context) (*models.ModelInfo, error)
}

type ModelHandler struct {
	service ModelService
}

func NewModelHandler(service ModelService) *ModelHandler {
	return &ModelHandler{service: service}
}

func (h *ModelHandler) Register(r *mux.Router) {
	r.HandleFunc("/model/info", h.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/model/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *ModelHandler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.ModelInfo(r.Context())
	if err != nil {
		logger.Log.WithError(err).Warn("failed to fetch model info")
		writeError(w, http.StatusBadGateway, prediction.AsError(err).Message())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *ModelHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  prediction.AsError(err).Message(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
