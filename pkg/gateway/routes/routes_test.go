package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/patients"
	"github.com/synaptica-ai/riskboard/pkg/prediction"
	"github.com/synaptica-ai/riskboard/pkg/prediction/session"
	"github.com/synaptica-ai/riskboard/pkg/serving"
	"github.com/synaptica-ai/riskboard/pkg/storage"
)

type clientFunc func(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error)

func (f clientFunc) Submit(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	return f(ctx, req)
}

type memoryLatest map[string]*models.PredictionOutcome

func (m memoryLatest) Latest(_ context.Context, patientID string) (*models.PredictionOutcome, error) {
	if outcome, ok := m[patientID]; ok {
		return outcome, nil
	}
	return nil, storage.ErrNotCached
}

type fakeModel struct{ err error }

func (f fakeModel) Health(context.Context) error { return f.err }

func (f fakeModel) ModelInfo(context.Context) (*models.ModelInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ModelInfo{ModelName: "xgb", ModelVersion: "1.2.0"}, nil
}

type fakeAudit struct{ logs []serving.PredictionLog }

func (f fakeAudit) Recent(_ context.Context, patientID string, limit int) ([]serving.PredictionLog, error) {
	var out []serving.PredictionLog
	for _, log := range f.logs {
		if patientID == "" || log.PatientID == patientID {
			out = append(out, log)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeAudit) LatencyByMinute(context.Context, time.Duration) ([]serving.LatencyPoint, error) {
	return nil, nil
}

func cohortRepo(t *testing.T) patients.Repository {
	t.Helper()
	date := func(s string) models.Date {
		d, err := models.NewDate(s)
		require.NoError(t, err)
		return d
	}
	repo, err := patients.NewStaticRepository([]models.PatientRecord{
		{ID: "P001", Name: "John Smith", RiskScore: 85, RiskLevel: models.RiskHigh, LastVisit: date("2024-01-15"), Conditions: []string{"Diabetes"}},
		{ID: "P002", Name: "Maria Garcia", RiskScore: 62, RiskLevel: models.RiskMedium, LastVisit: date("2024-01-20")},
		{ID: "P003", Name: "Robert Johnson", RiskScore: 78, RiskLevel: models.RiskHigh, LastVisit: date("2024-01-10")},
		{ID: "P004", Name: "Emily Davis", RiskScore: 35, RiskLevel: models.RiskLow, LastVisit: date("2024-01-22")},
		{ID: "P005", Name: "Michael Brown", RiskScore: 92, RiskLevel: models.RiskCritical, LastVisit: date("2024-01-17")},
	})
	require.NoError(t, err)
	return repo
}

func newRouter(t *testing.T, client prediction.Client, model ModelService) (*mux.Router, *session.Manager) {
	t.Helper()
	repo := cohortRepo(t)
	manager := session.NewManager(session.Config{Patients: repo, Client: client})
	t.Cleanup(manager.CloseAll)

	latest := memoryLatest{"P001": {
		PatientID: "P001",
		Status:    models.OutcomeCompleted,
		Result: &models.PredictionResult{
			PatientID:      "P001",
			RiskAssessment: models.RiskAssessment{DeteriorationProbability: 0.82, RiskLevel: "high"},
		},
	}}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	NewCohortHandler(repo).Register(api)
	NewSessionHandler(manager, latest).Register(api)
	NewModelHandler(model).Register(api)
	NewAuditHandler(fakeAudit{logs: []serving.PredictionLog{
		{ID: uuid.New(), PatientID: "P001", Status: models.OutcomeCompleted},
		{ID: uuid.New(), PatientID: "P002", Status: models.OutcomeFailed, HTTPStatus: 500},
	}}).Register(api)
	return r, manager
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestListPatientsDefaultsToRiskOrder(t *testing.T) {
	r, _ := newRouter(t, nil, fakeModel{})
	rec := do(t, r, http.MethodGet, "/api/v1/patients?risk=all", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.CohortResult
	decode(t, rec, &result)
	scores := []float64{}
	for _, p := range result.Patients {
		scores = append(scores, p.RiskScore)
	}
	assert.Equal(t, []float64{92, 85, 78, 62, 35}, scores)
	assert.Equal(t, 5, result.Summary.Total)
}

func TestCohortQueryWithoutSortKeyUsesRiskOrder(t *testing.T) {
	r, _ := newRouter(t, nil, fakeModel{})
	rec := do(t, r, http.MethodPost, "/api/v1/cohort/query", `{"riskFilter":"all"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.CohortResult
	decode(t, rec, &result)
	ids := []string{}
	for _, p := range result.Patients {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"P005", "P001", "P003", "P002", "P004"}, ids)

	byName := do(t, r, http.MethodGet, "/api/v1/patients?sort=name", "")
	var named models.CohortResult
	decode(t, byName, &named)
	require.Len(t, named.Patients, 5)
	assert.Equal(t, "P004", named.Patients[0].ID)
}

func TestCohortQueryBody(t *testing.T) {
	r, _ := newRouter(t, nil, fakeModel{})
	rec := do(t, r, http.MethodPost, "/api/v1/cohort/query", `{"searchTerm":"diab","riskFilter":"high","sortBy":"name"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.CohortResult
	decode(t, rec, &result)
	require.Len(t, result.Patients, 1)
	assert.Equal(t, "P001", result.Patients[0].ID)

	bad := do(t, r, http.MethodPost, "/api/v1/cohort/query", `{`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestCohortSummaryAndTopRisk(t *testing.T) {
	r, _ := newRouter(t, nil, fakeModel{})

	var summary models.CohortSummary
	decode(t, do(t, r, http.MethodGet, "/api/v1/cohort/summary", ""), &summary)
	assert.Equal(t, 2, summary.High)
	assert.Equal(t, 3, summary.HighOrCritical)

	var top []models.PatientRecord
	decode(t, do(t, r, http.MethodGet, "/api/v1/cohort/top-risk?level=high&limit=1", ""), &top)
	require.Len(t, top, 1)
	assert.Equal(t, "P001", top[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/cohort/top-risk?level=severe", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/cohort/top-risk?limit=0", "").Code)
}

func TestSessionWorkflow(t *testing.T) {
	client := clientFunc(func(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
		return &models.PredictionResult{
			PatientID: req.PatientID,
			RiskAssessment: models.RiskAssessment{
				DeteriorationProbability: 0.82,
				RiskLevel:                "high",
				Confidence:               0.9,
			},
			ClassProbabilities: models.ClassProbabilities{HighRisk: 0.82, MediumRisk: 0.12, LowRisk: 0.06},
		}, nil
	})
	r, manager := newRouter(t, client, fakeModel{})

	created := do(t, r, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, created.Code)
	var snap session.Snapshot
	decode(t, created, &snap)
	assert.Equal(t, session.PhaseIdle, snap.Phase)
	assert.Equal(t, "90", snap.Selection.Timeline)
	base := "/api/v1/sessions/" + snap.SessionID

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, r, http.MethodPost, base+"/submit", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPut, base+"/patient", `{"patientId":"P999"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, r, http.MethodPut, base+"/timeline", `{"timeline":"45"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, base+"/timeline", `{}`).Code)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, base+"/patient", `{"patientId":"P001"}`).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, base+"/timeline", `{"timeline":"90"}`).Code)

	submitted := do(t, r, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusAccepted, submitted.Code)
	var accepted struct {
		Token uint64 `json:"token"`
	}
	decode(t, submitted, &accepted)
	assert.Equal(t, uint64(1), accepted.Token)

	ctrl, ok := manager.Get(snap.SessionID)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return ctrl.State().Phase() == session.PhaseCompleted
	}, 2*time.Second, 5*time.Millisecond)

	var completed session.Snapshot
	decode(t, do(t, r, http.MethodGet, base, ""), &completed)
	require.NotNil(t, completed.Display)
	assert.Equal(t, "82.0%", completed.Display.Probability)
	assert.Equal(t, "HIGH RISK", completed.Display.Badge)

	var reset session.Snapshot
	decode(t, do(t, r, http.MethodPost, base+"/reset", ""), &reset)
	assert.Equal(t, session.PhaseIdle, reset.Phase)
	assert.Nil(t, reset.Result)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, base, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, base, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, base, "").Code)
}

func TestSubmitConflictWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	client := clientFunc(func(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
		<-release
		return nil, &prediction.Error{Kind: prediction.KindServiceError, Status: 500}
	})
	r, _ := newRouter(t, client, fakeModel{})
	defer close(release)

	var snap session.Snapshot
	decode(t, do(t, r, http.MethodPost, "/api/v1/sessions", ""), &snap)
	base := "/api/v1/sessions/" + snap.SessionID

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, base+"/patient", `{"patientId":"P002"}`).Code)
	require.Equal(t, http.StatusAccepted, do(t, r, http.MethodPost, base+"/submit", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, r, http.MethodPost, base+"/submit", "").Code)
}

func TestLatestPrediction(t *testing.T) {
	r, _ := newRouter(t, nil, fakeModel{})

	rec := do(t, r, http.MethodGet, "/api/v1/patients/P001/prediction", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Display session.View `json:"display"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "82.0%", body.Display.Probability)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/patients/P002/prediction", "").Code)
}

func TestModelEndpoints(t *testing.T) {
	r, _ := newRouter(t, nil, fakeModel{})
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/model/health", "").Code)

	var info models.ModelInfo
	decode(t, do(t, r, http.MethodGet, "/api/v1/model/info", ""), &info)
	assert.Equal(t, "1.2.0", info.ModelVersion)

	down, _ := newRouter(t, nil, fakeModel{err: &prediction.Error{Kind: prediction.KindUnreachable, Err: errors.New("refused")}})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/api/v1/model/health", "").Code)
	assert.Equal(t, http.StatusBadGateway, do(t, down, http.MethodGet, "/api/v1/model/info", "").Code)
}

func TestAuditEndpoints(t *testing.T) {
	r, _ := newRouter(t, nil, fakeModel{})

	var logs []PredictionLogSummary
	decode(t, do(t, r, http.MethodGet, "/api/v1/audit/predictions?patient_id=P002", ""), &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, 500, logs[0].HTTPStatus)

	rec := do(t, r, http.MethodGet, "/api/v1/audit/prediction-latency", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/audit/prediction-latency?window=nope", "").Code)
}

func TestCreateSessionAtCapacity(t *testing.T) {
	manager := session.NewManager(session.Config{Patients: cohortRepo(t), MaxSessions: 1})
	t.Cleanup(manager.CloseAll)

	r := mux.NewRouter()
	NewSessionHandler(manager, nil).Register(r.PathPrefix("/api/v1").Subrouter())

	assert.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/api/v1/sessions", "").Code)
	full := do(t, r, http.MethodPost, "/api/v1/sessions", "")
	assert.Equal(t, http.StatusServiceUnavailable, full.Code)
	assert.Contains(t, full.Body.String(), "too many open sessions")
}
