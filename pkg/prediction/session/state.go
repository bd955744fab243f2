package session

import (
	"errors"

	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/prediction"
)

var (
	ErrNoPatientSelected  = errors.New("no patient selected")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrInvalidTimeline    = errors.New("unsupported prediction timeline")
	ErrSubmissionInFlight = errors.New("a prediction is already in progress")
	ErrStaleResponse      = errors.New("response belongs to a superseded submission")
	ErrClosed             = errors.New("session closed")
)

// Timelines are the prediction horizons, in days, offered to the user.
var Timelines = []string{"30", "60", "90", "180"}

const DefaultTimeline = "90"

func ValidTimeline(timeline string) bool {
	for _, t := range Timelines {
		if t == timeline {
			return true
		}
	}
	return false
}

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhasePatientSelected Phase = "patient_selected"
	PhaseSubmitting      Phase = "submitting"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
)

// Selection is what the user has chosen so far. It survives every state.
type Selection struct {
	PatientID string `json:"patientId"`
	Timeline  string `json:"timeline"`
}

func (s Selection) Selected() Selection { return s }

// State is exactly one of Idle, PatientSelected, Submitting, Completed or
// Failed.
type State interface {
	Phase() Phase
	Selected() Selection
	isState()
}

type Idle struct{ Selection }

type PatientSelected struct{ Selection }

type Submitting struct {
	Selection
	Request models.PredictionRequest
	Token   uint64
}

type Completed struct {
	Selection
	Token  uint64
	Result *models.PredictionResult
}

type Failed struct {
	Selection
	Token uint64
	Err   *prediction.Error
}

func (Idle) Phase() Phase            { return PhaseIdle }
func (PatientSelected) Phase() Phase { return PhasePatientSelected }
func (Submitting) Phase() Phase      { return PhaseSubmitting }
func (Completed) Phase() Phase       { return PhaseCompleted }
func (Failed) Phase() Phase          { return PhaseFailed }

func (Idle) isState()            {}
func (PatientSelected) isState() {}
func (Submitting) isState()      {}
func (Completed) isState()       {}
func (Failed) isState()          {}

// Initial is the state of a fresh session.
func Initial() State {
	return Idle{Selection{Timeline: DefaultTimeline}}
}

// Event drives Transition.
type Event interface{ isEvent() }

type SelectPatient struct{ PatientID string }

type SelectTimeline struct{ Timeline string }

// Submit carries a request already snapshotted by the caller and the token
// minted for it.
type Submit struct {
	Request models.PredictionRequest
	Token   uint64
}

type Resolve struct {
	Token  uint64
	Result *models.PredictionResult
}

type Reject struct {
	Token uint64
	Err   *prediction.Error
}

type Reset struct{}

func (SelectPatient) isEvent()  {}
func (SelectTimeline) isEvent() {}
func (Submit) isEvent()         {}
func (Resolve) isEvent()        {}
func (Reject) isEvent()         {}
func (Reset) isEvent()          {}

// Transition is the pure reducer behind Controller. On error the caller keeps
// the current state.
func Transition(current State, event Event) (State, error) {
	if current == nil {
		current = Initial()
	}
	sel := current.Selected()

	switch e := event.(type) {
	case SelectPatient:
		sel.PatientID = e.PatientID
		return selectionState(sel), nil

	case SelectTimeline:
		if !ValidTimeline(e.Timeline) {
			return current, ErrInvalidTimeline
		}
		sel.Timeline = e.Timeline
		return selectionState(sel), nil

	case Submit:
		if sel.PatientID == "" {
			return current, ErrNoPatientSelected
		}
		if _, busy := current.(Submitting); busy {
			return current, ErrSubmissionInFlight
		}
		return Submitting{Selection: sel, Request: e.Request, Token: e.Token}, nil

	case Resolve:
		s, ok := current.(Submitting)
		if !ok || s.Token != e.Token {
			return current, ErrStaleResponse
		}
		if e.Result == nil {
			return Failed{Selection: sel, Token: e.Token, Err: &prediction.Error{
				Kind: prediction.KindMalformedResponse,
				Err:  errors.New("empty prediction result"),
			}}, nil
		}
		return Completed{Selection: sel, Token: e.Token, Result: e.Result}, nil

	case Reject:
		s, ok := current.(Submitting)
		if !ok || s.Token != e.Token {
			return current, ErrStaleResponse
		}
		err := e.Err
		if err == nil {
			err = &prediction.Error{Kind: prediction.KindUnreachable, Err: errors.New("unknown failure")}
		}
		return Failed{Selection: sel, Token: e.Token, Err: err}, nil

	case Reset:
		return Idle{Selection{Timeline: sel.Timeline}}, nil
	}
	return current, nil
}

func selectionState(sel Selection) State {
	if sel.PatientID == "" {
		return Idle{sel}
	}
	return PatientSelected{sel}
}
