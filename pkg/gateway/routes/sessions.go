package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/prediction/session"
	"github.com/synaptica-ai/riskboard/pkg/storage"
)

// LatestPredictions looks up the most recent completed prediction per patient.
type LatestPredictions interface {
	Latest(ctx context.Context, patientID string) (*models.PredictionOutcome, error)
}

type SessionHandler struct {
	sessions *session.Manager
	latest   LatestPredictions
}

func NewSessionHandler(sessions *session.Manager, latest LatestPredictions) *SessionHandler {
	return &SessionHandler{sessions: sessions, latest: latest}
}

func (h *SessionHandler) Register(r *mux.Router) {
	r.HandleFunc("/sessions", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.handleClose).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/patient", h.handleSelectPatient).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}/timeline", h.handleSelectTimeline).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}/submit", h.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/reset", h.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/prediction", h.handleLatest).Methods(http.MethodGet)
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.sessions.Create()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	logger.Log.WithField("session_id", ctrl.ID()).Info("Prediction session opened")
	writeJSON(w, http.StatusCreated, ctrl.Snapshot())
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	ctrl, ok := h.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return ctrl, ok
}

func (h *SessionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if ctrl, ok := h.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, ctrl.Snapshot())
	}
}

func (h *SessionHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Close(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectPatientRequest struct {
	PatientID string `json:"patientId" validate:"max=64"`
}

func (h *SessionHandler) handleSelectPatient(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectPatientRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient selection")
		return
	}
	if err := ctrl.SelectPatient(req.PatientID); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

type selectTimelineRequest struct {
	Timeline string `json:"timeline" validate:"required"`
}

func (h *SessionHandler) handleSelectTimeline(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectTimelineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "timeline is required")
		return
	}
	if err := ctrl.SelectTimeline(req.Timeline); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *SessionHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sub, err := ctrl.Submit(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"token":   sub.Token,
		"session": ctrl.Snapshot(),
	})
}

func (h *SessionHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	if ctrl, ok := h.lookup(w, r); ok {
		ctrl.Reset()
		writeJSON(w, http.StatusOK, ctrl.Snapshot())
	}
}

func (h *SessionHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	if h.latest == nil {
		writeError(w, http.StatusNotFound, "no cached prediction")
		return
	}
	outcome, err := h.latest.Latest(r.Context(), patientID)
	if errors.Is(err, storage.ErrNotCached) {
		writeError(w, http.StatusNotFound, "no cached prediction")
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithField("patient_id", patientID).Error("failed to read cached prediction")
		writeError(w, http.StatusServiceUnavailable, "prediction cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcome": outcome,
		"display": session.Display(outcome.Result),
	})
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoPatientSelected), errors.Is(err, session.ErrInvalidTimeline):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrSubmissionInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrPatientNotFound), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrTooManySessions):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Log.WithError(err).Error("session event failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
