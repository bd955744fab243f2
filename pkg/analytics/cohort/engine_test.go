package cohort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
)

func record(id, name string, score float64, level models.RiskLevel, visit string, conditions ...string) models.PatientRecord {
	date, err := models.NewDate(visit)
	if err != nil {
		panic(err)
	}
	return models.PatientRecord{
		ID:         id,
		Name:       name,
		RiskScore:  score,
		RiskLevel:  level,
		LastVisit:  date,
		Conditions: conditions,
		Status:     "active",
	}
}

func sampleCohort() []models.PatientRecord {
	return []models.PatientRecord{
		record("P001", "John Smith", 85, models.RiskHigh, "2024-01-15", "Type 2 Diabetes", "Hypertension"),
		record("P002", "Maria Garcia", 62, models.RiskMedium, "2024-01-20", "Hypertension"),
		record("P003", "Robert Johnson", 78, models.RiskHigh, "2024-01-10", "Heart Failure"),
		record("P004", "Emily Davis", 35, models.RiskLow, "2024-01-22", "Asthma"),
		record("P005", "Michael Brown", 92, models.RiskCritical, "2024-01-17", "COPD", "Diabetes"),
	}
}

func ids(records []models.PatientRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestQueryWithoutSortKeepsInputOrder(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{RiskFilter: models.FilterAll})
	assert.Equal(t, []string{"P001", "P002", "P003", "P004", "P005"}, ids(result.Patients))
	assert.Equal(t, 5, result.Summary.Total)

	unknown := Query(sampleCohort(), models.CohortQuery{SortBy: "bogus"})
	assert.Equal(t, []string{"P001", "P002", "P003", "P004", "P005"}, ids(unknown.Patients))
}

func TestQuerySortsByRiskDescending(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{RiskFilter: models.FilterAll, SortBy: models.SortByRiskScore})

	scores := make([]float64, 0, len(result.Patients))
	for _, p := range result.Patients {
		scores = append(scores, p.RiskScore)
	}
	assert.Equal(t, []float64{92, 85, 78, 62, 35}, scores)
	assert.Equal(t, 5, result.Summary.Total)
}

func TestQuerySearchAndRiskFilter(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{
		SearchTerm: "diabetes",
		RiskFilter: "high",
		SortBy:     models.SortByRiskScore,
	})

	require.Len(t, result.Patients, 1)
	assert.Equal(t, "P001", result.Patients[0].ID)
	assert.Equal(t, 1, result.Summary.High)
	assert.Equal(t, 100, result.Summary.HighPercent)
}

func TestQuerySearchMatchesNameCaseInsensitively(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{SearchTerm: "GARCIA"})
	assert.Equal(t, []string{"P002"}, ids(result.Patients))
}

func TestQueryModerateAlias(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{RiskFilter: "Moderate"})
	assert.Equal(t, []string{"P002"}, ids(result.Patients))
}

func TestQueryStatusFilter(t *testing.T) {
	records := sampleCohort()
	records[3].Status = "inactive"

	result := Query(records, models.CohortQuery{StatusFilter: "Inactive"})
	assert.Equal(t, []string{"P004"}, ids(result.Patients))

	all := Query(records, models.CohortQuery{StatusFilter: "all"})
	assert.Len(t, all.Patients, 5)
}

func TestQueryNoMatchesIsEmptyNotError(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{SearchTerm: "zzz"})
	assert.Empty(t, result.Patients)
	assert.Equal(t, models.CohortSummary{}, result.Summary)
}

func TestSortByName(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{SortBy: models.SortByName})
	assert.Equal(t, []string{"P004", "P001", "P002", "P005", "P003"}, ids(result.Patients))
}

func TestSortByLastUpdated(t *testing.T) {
	result := Query(sampleCohort(), models.CohortQuery{SortBy: models.SortByLastUpdated})
	assert.Equal(t, []string{"P004", "P002", "P005", "P001", "P003"}, ids(result.Patients))
}

func TestSortIsStable(t *testing.T) {
	records := []models.PatientRecord{
		record("A", "Same", 50, models.RiskMedium, "2024-01-01"),
		record("B", "Same", 70, models.RiskHigh, "2024-01-01"),
		record("C", "Same", 50, models.RiskMedium, "2024-01-01"),
		record("D", "Same", 70, models.RiskHigh, "2024-01-01"),
	}

	assert.Equal(t, []string{"B", "D", "A", "C"}, ids(Query(records, models.CohortQuery{SortBy: models.SortByRiskScore}).Patients))
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(Query(records, models.CohortQuery{}).Patients))
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(Query(records, models.CohortQuery{SortBy: models.SortByName}).Patients))
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(Query(records, models.CohortQuery{SortBy: models.SortByLastUpdated}).Patients))
}

func TestQueryDoesNotReorderInput(t *testing.T) {
	records := sampleCohort()
	Query(records, models.CohortQuery{SortBy: models.SortByName})
	assert.Equal(t, []string{"P001", "P002", "P003", "P004", "P005"}, ids(records))
}

func TestQueryIsDeterministic(t *testing.T) {
	query := models.CohortQuery{SearchTerm: "h", SortBy: models.SortByName}
	assert.Equal(t, Query(sampleCohort(), query), Query(sampleCohort(), query))
}

func TestNormalizeSortKey(t *testing.T) {
	assert.Equal(t, models.SortByRiskScore, NormalizeSortKey("risk"))
	assert.Equal(t, models.SortByRiskScore, NormalizeSortKey("riskScore"))
	assert.Equal(t, models.SortNone, NormalizeSortKey(""))
	assert.Equal(t, models.SortNone, NormalizeSortKey("bogus"))
	assert.Equal(t, models.SortByName, NormalizeSortKey("Name"))
	assert.Equal(t, models.SortByLastUpdated, NormalizeSortKey("lastUpdated"))
}

func TestSummarize(t *testing.T) {
	records := sampleCohort()
	records[0].ClinicalData.AdherenceScore = 80
	records[1].ClinicalData.AdherenceScore = 90

	summary := Summarize(records)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 1, summary.Low)
	assert.Equal(t, 1, summary.Medium)
	assert.Equal(t, 2, summary.High)
	assert.Equal(t, 1, summary.Critical)
	assert.Equal(t, 20, summary.LowPercent)
	assert.Equal(t, 40, summary.HighPercent)
	assert.Equal(t, 3, summary.HighOrCritical)
	assert.InDelta(t, 70.4, summary.AverageRiskScore, 1e-9)
	assert.InDelta(t, 34.0, summary.AverageAdherence, 1e-9)
}

func TestSummarizeRoundsPercentages(t *testing.T) {
	records := []models.PatientRecord{
		{ID: "1", RiskLevel: models.RiskLow},
		{ID: "2", RiskLevel: models.RiskLow},
		{ID: "3", RiskLevel: models.RiskHigh},
	}
	summary := Summarize(records)
	assert.Equal(t, 67, summary.LowPercent)
	assert.Equal(t, 33, summary.HighPercent)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, models.CohortSummary{}, Summarize(nil))
}

func TestTopRisk(t *testing.T) {
	top := TopRisk(sampleCohort(), models.RiskHigh, 1)
	assert.Equal(t, []string{"P001"}, ids(top))

	all := TopRisk(sampleCohort(), models.RiskHigh, 0)
	assert.Equal(t, []string{"P001", "P003"}, ids(all))
}

func TestLastVisitOrderingUsesCalendarDates(t *testing.T) {
	a := record("A", "A", 1, models.RiskLow, "2024-01-15")
	b := record("B", "B", 1, models.RiskLow, "2024-01-15T23:00:00Z")
	assert.True(t, b.LastVisit.After(a.LastVisit.Time))
	assert.Equal(t, time.January, a.LastVisit.Month())
}
