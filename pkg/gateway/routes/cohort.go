package routes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/riskboard/pkg/analytics/cohort"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/observability/metrics"
	"github.com/synaptica-ai/riskboard/pkg/patients"
)

const (
	defaultTopRisk = 5
	maxTopRisk     = 50
)

type CohortHandler struct {
	patients patients.Repository
}

func NewCohortHandler(repo patients.Repository) *CohortHandler {
	return &CohortHandler{patients: repo}
}

func (h *CohortHandler) Register(r *mux.Router) {
	r.HandleFunc("/patients", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/cohort/query", h.handleQuery).Methods(http.MethodPost)
	r.HandleFunc("/cohort/summary", h.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/cohort/top-risk", h.handleTopRisk).Methods(http.MethodGet)
}

func (h *CohortHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.CohortQuery{
		SearchTerm:   q.Get("search"),
		RiskFilter:   q.Get("risk"),
		StatusFilter: q.Get("status"),
		SortBy:       models.SortKey(q.Get("sort")),
	}
	writeJSON(w, http.StatusOK, h.evaluate(query))
}

func (h *CohortHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var query models.CohortQuery
	if err := decodeBody(r, &query); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cohort query")
		return
	}
	writeJSON(w, http.StatusOK, h.evaluate(query))
}

// evaluate runs a query, ordering by risk when the caller names no sort key.
func (h *CohortHandler) evaluate(query models.CohortQuery) models.CohortResult {
	if strings.TrimSpace(string(query.SortBy)) == "" {
		query.SortBy = models.SortByRiskScore
	}
	metrics.IncCohortQuery()
	return cohort.Query(h.patients.List(), query)
}

func (h *CohortHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cohort.Summarize(h.patients.List()))
}

func (h *CohortHandler) handleTopRisk(w http.ResponseWriter, r *http.Request) {
	level := models.RiskHigh
	if raw := r.URL.Query().Get("level"); raw != "" {
		level = models.ParseRiskLevel(raw)
		if !level.Known() {
			writeError(w, http.StatusBadRequest, "unknown risk level")
			return
		}
	}

	limit := defaultTopRisk
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxTopRisk {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, cohort.TopRisk(h.patients.List(), level, limit))
}
