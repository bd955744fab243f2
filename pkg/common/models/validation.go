package models

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// ClassProbabilityTolerance bounds how far the class distribution may drift
// from 1.0.
const ClassProbabilityTolerance = 0.01

var validate = validator.New()

// Validate checks the data contract of a scoring response: probabilities and
// confidence in [0,1] and a class distribution summing to 1.
func (r *PredictionResult) Validate() error {
	if r == nil {
		return fmt.Errorf("prediction result is empty")
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid prediction result: %w", err)
	}
	if math.IsNaN(r.RiskAssessment.DeteriorationProbability) || math.IsNaN(r.RiskAssessment.Confidence) {
		return fmt.Errorf("invalid prediction result: probability is NaN")
	}
	if sum := r.ClassProbabilities.Sum(); math.Abs(sum-1) > ClassProbabilityTolerance {
		return fmt.Errorf("invalid prediction result: class probabilities sum to %.4f", sum)
	}
	return nil
}
