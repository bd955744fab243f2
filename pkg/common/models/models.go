package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Risk and trend enums
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskUnknown  RiskLevel = "unknown"
)

// RiskLevels lists the known buckets from least to most severe.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// ParseRiskLevel is case-insensitive; "moderate" is accepted for medium.
func ParseRiskLevel(value string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return RiskLow
	case "medium", "moderate":
		return RiskMedium
	case "high":
		return RiskHigh
	case "critical":
		return RiskCritical
	default:
		return RiskUnknown
	}
}

func (r RiskLevel) Known() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh || r == RiskCritical
}

func (r *RiskLevel) UnmarshalText(text []byte) error {
	*r = ParseRiskLevel(string(text))
	return nil
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

func (t *Trend) UnmarshalText(text []byte) error {
	switch Trend(strings.ToLower(strings.TrimSpace(string(text)))) {
	case TrendImproving:
		*t = TrendImproving
	case TrendDeclining:
		*t = TrendDeclining
	default:
		*t = TrendStable
	}
	return nil
}

// Date accepts both plain calendar dates and RFC3339 timestamps.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return Date{Time: t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Patient store
type Demographics struct {
	DateOfBirth      string `json:"date_of_birth"`
	Insurance        string `json:"insurance"`
	EmergencyContact string `json:"emergency_contact"`
}

// ClinicalFeatures is the fixed feature vector the scoring service expects.
// Boolean features are encoded as 0/1.
type ClinicalFeatures struct {
	Age                     float64 `json:"age"`
	GenderMale              float64 `json:"gender_male"`
	BMI                     float64 `json:"bmi"`
	SystolicBP              float64 `json:"systolic_bp"`
	DiastolicBP             float64 `json:"diastolic_bp"`
	HasDiabetes             float64 `json:"has_diabetes"`
	HasHypertension         float64 `json:"has_hypertension"`
	HasHeartDisease         float64 `json:"has_heart_disease"`
	HasKidneyDisease        float64 `json:"has_kidney_disease"`
	HasCOPD                 float64 `json:"has_copd"`
	HasStroke               float64 `json:"has_stroke"`
	HasCancer               float64 `json:"has_cancer"`
	SmokingStatus           float64 `json:"smoking_status"`
	ComorbidityCount        float64 `json:"comorbidity_count"`
	HeartRate               float64 `json:"heart_rate"`
	Glucose                 float64 `json:"glucose"`
	HbA1c                   float64 `json:"hba1c"`
	Creatinine              float64 `json:"creatinine"`
	MedicationCount         float64 `json:"medication_count"`
	TotalEncounters         float64 `json:"total_encounters"`
	EmergencyVisits         float64 `json:"emergency_visits"`
	InpatientVisits         float64 `json:"inpatient_visits"`
	TotalConditions         float64 `json:"total_conditions"`
	PainScore               float64 `json:"pain_score"`
	DepressionScore         float64 `json:"depression_score"`
	InsuranceMedicaid       float64 `json:"insurance_medicaid"`
	InsuranceMedicare       float64 `json:"insurance_medicare"`
	InsurancePrivate        float64 `json:"insurance_private"`
	DaysSinceLastVisit      float64 `json:"days_since_last_visit"`
	HospitalizationLastYear float64 `json:"hospitalization_last_year"`
	SpecialistVisits        float64 `json:"specialist_visits"`
	LabAbnormal             float64 `json:"lab_abnormal"`
	VaccinationCurrent      float64 `json:"vaccination_current"`
	AdherenceScore          float64 `json:"adherence_score"`
}

// Flatten returns a fresh map keyed by the service's feature names.
func (f ClinicalFeatures) Flatten() map[string]float64 {
	out := make(map[string]float64, 34)
	payload, err := json.Marshal(f)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(payload, &out)
	return out
}

type PatientRecord struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Age          int              `json:"age"`
	Gender       string           `json:"gender"`
	Demographics Demographics     `json:"demographics"`
	ClinicalData ClinicalFeatures `json:"clinicalData"`
	Conditions   []string         `json:"conditions"`
	LastVisit    Date             `json:"lastVisit"`
	Notes        string           `json:"notes,omitempty"`
	RiskScore    float64          `json:"riskScore"`
	RiskLevel    RiskLevel        `json:"riskLevel"`
	Trend        Trend            `json:"trend"`
	Status       string           `json:"status,omitempty"`
}

// Prediction service contract
type PredictionRequest struct {
	PatientID   string             `json:"patient_id"`
	Features    map[string]float64 `json:"features"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

type RiskAssessment struct {
	DeteriorationProbability float64 `json:"deterioration_probability" validate:"gte=0,lte=1"`
	RiskLevel                string  `json:"risk_level"`
	Priority                 string  `json:"priority"`
	Urgency                  string  `json:"urgency"`
	Confidence               float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type ClassProbabilities struct {
	HighRisk   float64 `json:"high_risk" validate:"gte=0,lte=1"`
	MediumRisk float64 `json:"medium_risk" validate:"gte=0,lte=1"`
	LowRisk    float64 `json:"low_risk" validate:"gte=0,lte=1"`
}

func (c ClassProbabilities) Sum() float64 {
	return c.HighRisk + c.MediumRisk + c.LowRisk
}

type Recommendation struct {
	Category       string `json:"category"`
	Recommendation string `json:"recommendation"`
	Priority       string `json:"priority"`
	Rationale      string `json:"rationale"`
}

type ModelPerformance struct {
	AUROC    float64 `json:"auroc"`
	Accuracy float64 `json:"accuracy"`
}

type ModelInfo struct {
	ModelName    string           `json:"model_name"`
	ModelVersion string           `json:"model_version"`
	Performance  ModelPerformance `json:"performance"`
}

type PredictionResult struct {
	PatientID           string             `json:"patient_id" validate:"required"`
	RiskAssessment      RiskAssessment     `json:"risk_assessment"`
	ClassProbabilities  ClassProbabilities `json:"class_probabilities"`
	Recommendations     []Recommendation   `json:"recommendations"`
	ModelInfo           ModelInfo          `json:"model_info"`
	PredictionTimestamp string             `json:"prediction_timestamp"`
}

// Level is the service-reported risk level normalised to the known enum.
func (r *PredictionResult) Level() RiskLevel {
	return ParseRiskLevel(r.RiskAssessment.RiskLevel)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp parses the ISO-8601 prediction timestamp. Zone-less values are
// read as UTC.
func (r *PredictionResult) Timestamp() (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, r.PredictionTimestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Prediction outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// PredictionOutcome is emitted once per submission that reaches a terminal
// state. Superseded submissions never produce one.
type PredictionOutcome struct {
	SessionID    string             `json:"session_id"`
	Token        uint64             `json:"token"`
	PatientID    string             `json:"patient_id"`
	Timeline     string             `json:"timeline"`
	Features     map[string]float64 `json:"features"`
	Status       string             `json:"status"`
	Result       *PredictionResult  `json:"result,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	HTTPStatus   int                `json:"http_status,omitempty"`
	Latency      time.Duration      `json:"latency"`
	RecordedAt   time.Time          `json:"recorded_at"`
}

const (
	EventPredictionCompleted = "prediction.completed"
	EventPredictionFailed    = "prediction.failed"
)

// Event is the envelope published on the outcome topic.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Cohort
type SortKey string

const (
	SortNone          SortKey = ""
	SortByRiskScore   SortKey = "riskScore"
	SortByName        SortKey = "name"
	SortByLastUpdated SortKey = "lastUpdated"
)

const FilterAll = "all"

type CohortQuery struct {
	SearchTerm   string  `json:"searchTerm"`
	RiskFilter   string  `json:"riskFilter"`
	StatusFilter string  `json:"statusFilter,omitempty"`
	SortBy       SortKey `json:"sortBy"`
}

type CohortSummary struct {
	Total            int     `json:"total"`
	Low              int     `json:"low"`
	Medium           int     `json:"medium"`
	High             int     `json:"high"`
	Critical         int     `json:"critical"`
	LowPercent       int     `json:"lowPercent"`
	MediumPercent    int     `json:"mediumPercent"`
	HighPercent      int     `json:"highPercent"`
	CriticalPercent  int     `json:"criticalPercent"`
	HighOrCritical   int     `json:"highOrCritical"`
	AverageRiskScore float64 `json:"averageRiskScore"`
	AverageAdherence float64 `json:"averageAdherence"`
}

type CohortResult struct {
	Patients []PatientRecord `json:"patients"`
	Summary  CohortSummary   `json:"summary"`
}
