package session

import (
	"fmt"
	"strings"

	"github.com/synaptica-ai/riskboard/pkg/common/models"
)

// MaxRecommendations is how many recommendations the result card shows.
const MaxRecommendations = 5

// View is the presentation of a completed prediction.
type View struct {
	Probability     string                  `json:"probability"`
	Badge           string                  `json:"badge"`
	Tone            string                  `json:"tone"`
	Confidence      string                  `json:"confidence"`
	Priority        string                  `json:"priority"`
	Urgency         string                  `json:"urgency"`
	Classes         ClassView               `json:"classes"`
	Recommendations []models.Recommendation `json:"recommendations"`
	Model           string                  `json:"model"`
	Timestamp       string                  `json:"timestamp,omitempty"`
}

type ClassView struct {
	High   string `json:"high"`
	Medium string `json:"medium"`
	Low    string `json:"low"`
}

// Display renders a result. The badge uses the service's risk_level as-is;
// it is never re-derived from the probability.
func Display(result *models.PredictionResult) View {
	if result == nil {
		return View{}
	}

	level := result.Level()
	view := View{
		Probability: Percent(result.RiskAssessment.DeteriorationProbability),
		Badge:       Badge(level),
		Tone:        Tone(level),
		Confidence:  Percent(result.RiskAssessment.Confidence),
		Priority:    result.RiskAssessment.Priority,
		Urgency:     result.RiskAssessment.Urgency,
		Classes: ClassView{
			High:   Percent(result.ClassProbabilities.HighRisk),
			Medium: Percent(result.ClassProbabilities.MediumRisk),
			Low:    Percent(result.ClassProbabilities.LowRisk),
		},
		Model: strings.TrimSpace(result.ModelInfo.ModelName + " " + result.ModelInfo.ModelVersion),
	}

	recs := result.Recommendations
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	view.Recommendations = append([]models.Recommendation{}, recs...)

	if ts, ok := result.Timestamp(); ok {
		view.Timestamp = ts.Format("2006-01-02 15:04:05")
	}
	return view
}

// Percent formats a probability in [0,1] with one decimal, e.g. "82.0%".
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func Badge(level models.RiskLevel) string {
	if !level.Known() {
		return "UNKNOWN RISK"
	}
	return strings.ToUpper(string(level)) + " RISK"
}

// Tone picks the badge colour family.
func Tone(level models.RiskLevel) string {
	switch level {
	case models.RiskCritical, models.RiskHigh:
		return "destructive"
	case models.RiskMedium:
		return "warning"
	case models.RiskLow:
		return "success"
	default:
		return "muted"
	}
}
