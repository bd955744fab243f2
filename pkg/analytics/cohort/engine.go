package cohort

import (
	"math"
	"sort"
	"strings"

	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Query filters and orders records and summarizes the filtered subset. It has
// no hidden state: equal inputs always produce equal outputs, and the input
// slice is never reordered.
func Query(records []models.PatientRecord, query models.CohortQuery) models.CohortResult {
	matched := Filter(records, query)
	Sort(matched, query.SortBy)
	return models.CohortResult{
		Patients: matched,
		Summary:  Summarize(matched),
	}
}

// Filter returns a new slice holding the records that match the search term,
// risk filter and status filter, in input order.
func Filter(records []models.PatientRecord, query models.CohortQuery) []models.PatientRecord {
	term := strings.ToLower(strings.TrimSpace(query.SearchTerm))
	risk := riskFilter(query.RiskFilter)
	status := strings.TrimSpace(query.StatusFilter)
	if strings.EqualFold(status, models.FilterAll) {
		status = ""
	}

	out := make([]models.PatientRecord, 0, len(records))
	for _, record := range records {
		if !matchesSearch(record, term) {
			continue
		}
		if risk != "" && record.RiskLevel != risk {
			continue
		}
		if status != "" && !strings.EqualFold(record.Status, status) {
			continue
		}
		out = append(out, record)
	}
	return out
}

func riskFilter(value string) models.RiskLevel {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, models.FilterAll) {
		return ""
	}
	return models.ParseRiskLevel(value)
}

func matchesSearch(record models.PatientRecord, term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(record.Name), term) {
		return true
	}
	for _, condition := range record.Conditions {
		if strings.Contains(strings.ToLower(condition), term) {
			return true
		}
	}
	return false
}

// NormalizeSortKey maps user input onto a known key. Empty and unknown keys
// map to SortNone, which keeps input order.
func NormalizeSortKey(key models.SortKey) models.SortKey {
	switch strings.ToLower(strings.TrimSpace(string(key))) {
	case "riskscore", "risk", "risk_score":
		return models.SortByRiskScore
	case "name":
		return models.SortByName
	case "lastupdated", "last_updated", "lastvisit":
		return models.SortByLastUpdated
	default:
		return models.SortNone
	}
}

// Sort orders records in place. Ties keep their input order.
func Sort(records []models.PatientRecord, key models.SortKey) {
	switch NormalizeSortKey(key) {
	case models.SortByRiskScore:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].RiskScore > records[j].RiskScore
		})
	case models.SortByName:
		collator := collate.New(language.English)
		sort.SliceStable(records, func(i, j int) bool {
			return collator.CompareString(records[i].Name, records[j].Name) < 0
		})
	case models.SortByLastUpdated:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].LastVisit.After(records[j].LastVisit.Time)
		})
	}
}

// Summarize counts records per risk bucket. Percentages are rounded to whole
// numbers; an empty set yields a zero summary.
func Summarize(records []models.PatientRecord) models.CohortSummary {
	summary := models.CohortSummary{Total: len(records)}
	if summary.Total == 0 {
		return summary
	}

	var riskSum, adherenceSum float64
	for _, record := range records {
		switch record.RiskLevel {
		case models.RiskLow:
			summary.Low++
		case models.RiskMedium:
			summary.Medium++
		case models.RiskHigh:
			summary.High++
		case models.RiskCritical:
			summary.Critical++
		}
		riskSum += record.RiskScore
		adherenceSum += record.ClinicalData.AdherenceScore
	}

	summary.LowPercent = percent(summary.Low, summary.Total)
	summary.MediumPercent = percent(summary.Medium, summary.Total)
	summary.HighPercent = percent(summary.High, summary.Total)
	summary.CriticalPercent = percent(summary.Critical, summary.Total)
	summary.HighOrCritical = summary.High + summary.Critical
	summary.AverageRiskScore = riskSum / float64(summary.Total)
	summary.AverageAdherence = adherenceSum / float64(summary.Total)
	return summary
}

func percent(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

// TopRisk returns up to n records at the given level, highest score first.
func TopRisk(records []models.PatientRecord, level models.RiskLevel, n int) []models.PatientRecord {
	out := make([]models.PatientRecord, 0, len(records))
	for _, record := range records {
		if record.RiskLevel == level {
			out = append(out, record)
		}
	}
	Sort(out, models.SortByRiskScore)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
