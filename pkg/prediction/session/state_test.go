package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/prediction"
)

func TestTransitionSelectPatient(t *testing.T) {
	next, err := Transition(Initial(), SelectPatient{PatientID: "P001"})
	require.NoError(t, err)
	assert.Equal(t, PhasePatientSelected, next.Phase())
	assert.Equal(t, Selection{PatientID: "P001", Timeline: DefaultTimeline}, next.Selected())

	cleared, err := Transition(next, SelectPatient{})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, cleared.Phase())
}

func TestTransitionSelectTimeline(t *testing.T) {
	idle, err := Transition(Initial(), SelectTimeline{Timeline: "30"})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, idle.Phase())
	assert.Equal(t, "30", idle.Selected().Timeline)

	_, err = Transition(idle, SelectTimeline{Timeline: "45"})
	assert.ErrorIs(t, err, ErrInvalidTimeline)

	done := Completed{Selection: Selection{PatientID: "P001", Timeline: "90"}, Token: 1, Result: &models.PredictionResult{}}
	next, err := Transition(done, SelectTimeline{Timeline: "180"})
	require.NoError(t, err)
	assert.Equal(t, PatientSelected{Selection{PatientID: "P001", Timeline: "180"}}, next)
}

func TestTransitionSubmitRequiresPatient(t *testing.T) {
	current := Initial()
	next, err := Transition(current, Submit{Token: 1})
	assert.ErrorIs(t, err, ErrNoPatientSelected)
	assert.Equal(t, current, next)
}

func TestTransitionSubmitWhileInFlight(t *testing.T) {
	submitting := Submitting{Selection: Selection{PatientID: "P001", Timeline: "90"}, Token: 1}
	next, err := Transition(submitting, Submit{Token: 2})
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, submitting, next)
}

func TestTransitionResolveMatchesToken(t *testing.T) {
	sel := Selection{PatientID: "P001", Timeline: "90"}
	submitting := Submitting{Selection: sel, Token: 3}
	result := &models.PredictionResult{PatientID: "P001"}

	_, err := Transition(submitting, Resolve{Token: 2, Result: result})
	assert.ErrorIs(t, err, ErrStaleResponse)

	next, err := Transition(submitting, Resolve{Token: 3, Result: result})
	require.NoError(t, err)
	assert.Equal(t, Completed{Selection: sel, Token: 3, Result: result}, next)

	_, err = Transition(next, Resolve{Token: 3, Result: result})
	assert.ErrorIs(t, err, ErrStaleResponse)
}

func TestTransitionRejectAndNilResult(t *testing.T) {
	submitting := Submitting{Selection: Selection{PatientID: "P001"}, Token: 1}

	failed, err := Transition(submitting, Reject{Token: 1, Err: &prediction.Error{Kind: prediction.KindServiceError, Status: 503}})
	require.NoError(t, err)
	assert.Equal(t, 503, failed.(Failed).Err.Status)

	empty, err := Transition(submitting, Resolve{Token: 1})
	require.NoError(t, err)
	assert.Equal(t, prediction.KindMalformedResponse, empty.(Failed).Err.Kind)

	_, err = Transition(PatientSelected{}, Reject{Token: 1})
	assert.ErrorIs(t, err, ErrStaleResponse)
}

func TestTransitionResetKeepsTimeline(t *testing.T) {
	failed := Failed{Selection: Selection{PatientID: "P001", Timeline: "60"}, Token: 1, Err: &prediction.Error{Kind: prediction.KindUnreachable}}
	next, err := Transition(failed, Reset{})
	require.NoError(t, err)
	assert.Equal(t, Idle{Selection{Timeline: "60"}}, next)
}

func TestValidTimeline(t *testing.T) {
	for _, timeline := range Timelines {
		assert.True(t, ValidTimeline(timeline))
	}
	assert.False(t, ValidTimeline("365"))
}
