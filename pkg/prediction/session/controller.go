package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/observability/metrics"
	"github.com/synaptica-ai/riskboard/pkg/patients"
	"github.com/synaptica-ai/riskboard/pkg/prediction"
	"github.com/synaptica-ai/riskboard/pkg/prediction/progress"
)

const defaultRecordTimeout = 5 * time.Second

// OutcomeRecorder receives every submission that reaches Completed or Failed.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome models.PredictionOutcome) error
}

// Config wires a Controller to its collaborators. Progress and Recorders are
// optional. IdleTimeout and MaxSessions bound a Manager; zero disables them.
type Config struct {
	Patients      patients.Repository
	Client        prediction.Client
	Progress      *progress.Simulator
	Recorders     []OutcomeRecorder
	RecordTimeout time.Duration
	IdleTimeout   time.Duration
	MaxSessions   int
	Now           func() time.Time
}

// Controller owns the prediction workflow of one viewing session. Events are
// applied one at a time; the scoring call runs in the background and its
// result is applied only if its token is still current.
type Controller struct {
	id  string
	cfg Config

	mu       sync.Mutex
	state    State
	token    uint64
	cancel   context.CancelFunc
	ticker   *progress.Handle
	progress progress.Snapshot
	closed   bool
	touched  time.Time
}

func NewController(id string, cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = defaultRecordTimeout
	}
	return &Controller{id: id, cfg: cfg, state: Initial(), touched: cfg.Now()}
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectPatient switches the session to another patient, clearing any result
// or error and abandoning an in-flight submission. An empty id clears the
// selection.
func (c *Controller) SelectPatient(patientID string) error {
	if patientID != "" {
		if _, ok := patients.Find(c.cfg.Patients, patientID); !ok {
			return ErrPatientNotFound
		}
	}
	return c.apply(SelectPatient{PatientID: patientID})
}

// SelectTimeline changes the prediction horizon and clears any prior result.
func (c *Controller) SelectTimeline(timeline string) error {
	return c.apply(SelectTimeline{Timeline: timeline})
}

// Reset returns to Idle, keeping only the timeline preference.
func (c *Controller) Reset() {
	_ = c.apply(Reset{})
}

// Close abandons any in-flight work. Further events return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state, _ = Transition(c.state, Reset{})
	cancel, ticker := c.abandonLocked()
	c.closed = true
	c.mu.Unlock()
	stop(cancel, ticker)
}

func (c *Controller) apply(event Event) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.touched = c.cfg.Now()
	next, err := Transition(c.state, event)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	cancel, ticker := c.abandonLocked()
	c.state = next
	c.mu.Unlock()

	stop(cancel, ticker)
	return nil
}

// abandonLocked invalidates the current token and detaches the in-flight
// request and animation. The caller stops them after releasing c.mu.
func (c *Controller) abandonLocked() (context.CancelFunc, *progress.Handle) {
	if _, submitting := c.state.(Submitting); submitting {
		c.token++
	}
	cancel, ticker := c.cancel, c.ticker
	c.cancel, c.ticker = nil, nil
	c.progress = progress.Snapshot{}
	return cancel, ticker
}

// idle reports whether the session has seen no event or read since cutoff.
// A session with a submission in flight is never idle.
func (c *Controller) idle(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, submitting := c.state.(Submitting); submitting {
		return false
	}
	return c.touched.Before(cutoff)
}

func stop(cancel context.CancelFunc, ticker *progress.Handle) {
	if cancel != nil {
		cancel()
	}
	if ticker != nil {
		ticker.Stop()
	}
}

// Submission tracks one background scoring call.
type Submission struct {
	Token uint64
	done  chan struct{}
}

// Done is closed once the response has been applied or discarded and every
// recorder has run.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Submit snapshots the selected patient's features and scores them in the
// background. It fails synchronously with ErrNoPatientSelected or
// ErrSubmissionInFlight without changing state. The scoring call is detached
// from ctx cancellation but keeps its values.
func (c *Controller) Submit(ctx context.Context) (*Submission, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.touched = c.cfg.Now()

	sel := c.state.Selected()
	var req models.PredictionRequest
	if sel.PatientID != "" {
		record, ok := patients.Find(c.cfg.Patients, sel.PatientID)
		if !ok {
			c.mu.Unlock()
			return nil, ErrPatientNotFound
		}
		req = models.PredictionRequest{
			PatientID:   record.ID,
			Features:    record.ClinicalData.Flatten(),
			SubmittedAt: c.cfg.Now(),
		}
	}

	token := c.token + 1
	next, err := Transition(c.state, Submit{Request: req, Token: token})
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.token = token
	c.state = next

	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.progress = progress.Snapshot{}
	if c.cfg.Progress != nil {
		c.ticker = c.cfg.Progress.Start(func(s progress.Snapshot) { c.onProgress(token, s) })
	}
	sub := &Submission{Token: token, done: make(chan struct{})}
	c.mu.Unlock()

	metrics.IncSubmitted()
	c.log(token, sel).Info("Prediction submitted")

	go c.run(reqCtx, cancel, sub, req, sel)
	return sub, nil
}

func (c *Controller) onProgress(token uint64, snapshot progress.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.state.(Submitting); ok && s.Token == token {
		c.progress = snapshot
	}
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, sub *Submission, req models.PredictionRequest, sel Selection) {
	defer close(sub.done)
	defer cancel()

	started := c.cfg.Now()
	result, err := c.cfg.Client.Submit(ctx, req)
	if err == nil {
		if verr := result.Validate(); verr != nil {
			result, err = nil, &prediction.Error{Kind: prediction.KindMalformedResponse, Err: verr}
		}
	}
	latency := c.cfg.Now().Sub(started)

	var event Event
	if err != nil {
		event = Reject{Token: sub.Token, Err: prediction.AsError(err)}
	} else {
		event = Resolve{Token: sub.Token, Result: result}
	}

	c.mu.Lock()
	next, terr := Transition(c.state, event)
	if terr != nil {
		c.mu.Unlock()
		metrics.IncStale()
		c.log(sub.Token, sel).Debug("Discarded superseded prediction response")
		return
	}
	c.state = next
	ticker := c.ticker
	c.ticker, c.cancel = nil, nil
	c.progress = progress.Snapshot{}
	if _, ok := next.(Completed); ok {
		c.progress = progress.Snapshot{Percent: 100, Done: true}
	}
	c.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}

	outcome := models.PredictionOutcome{
		SessionID:  c.id,
		Token:      sub.Token,
		PatientID:  req.PatientID,
		Timeline:   sel.Timeline,
		Features:   req.Features,
		Latency:    latency,
		RecordedAt: c.cfg.Now().UTC(),
	}
	switch s := next.(type) {
	case Completed:
		metrics.IncCompleted()
		outcome.Status = models.OutcomeCompleted
		outcome.Result = s.Result
		c.log(sub.Token, sel).WithField("risk_level", s.Result.Level()).Info("Prediction completed")
	case Failed:
		metrics.IncFailed(string(s.Err.Kind))
		outcome.Status = models.OutcomeFailed
		outcome.ErrorKind = string(s.Err.Kind)
		outcome.ErrorMessage = s.Err.Message()
		outcome.HTTPStatus = s.Err.Status
		c.log(sub.Token, sel).WithError(s.Err).Warn("Prediction failed")
	}
	c.record(ctx, outcome)
}

func (c *Controller) record(ctx context.Context, outcome models.PredictionOutcome) {
	for _, recorder := range c.cfg.Recorders {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RecordTimeout)
		if err := recorder.Record(recordCtx, outcome); err != nil {
			metrics.IncRecordingError()
			logger.Log.WithError(err).WithFields(logrus.Fields{
				"session_id": c.id,
				"patient_id": outcome.PatientID,
			}).Error("Failed to record prediction outcome")
		}
		cancel()
	}
}

func (c *Controller) log(token uint64, sel Selection) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"session_id": c.id,
		"token":      token,
		"patient_id": sel.PatientID,
		"timeline":   sel.Timeline,
	})
}

// ErrorView is the user-facing form of a failed prediction.
type ErrorView struct {
	Kind    prediction.Kind `json:"kind"`
	Status  int             `json:"status,omitempty"`
	Message string          `json:"message"`
}

// Snapshot is a consistent read model of the session.
type Snapshot struct {
	SessionID string                   `json:"sessionId"`
	Phase     Phase                    `json:"phase"`
	Selection Selection                `json:"selection"`
	Token     uint64                   `json:"token"`
	Progress  progress.Snapshot        `json:"progress"`
	Result    *models.PredictionResult `json:"result,omitempty"`
	Display   *View                    `json:"display,omitempty"`
	Error     *ErrorView               `json:"error,omitempty"`
	CanSubmit bool                     `json:"canSubmit"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = c.cfg.Now()

	snap := Snapshot{
		SessionID: c.id,
		Phase:     c.state.Phase(),
		Selection: c.state.Selected(),
		Token:     c.token,
		Progress:  c.progress,
	}
	switch s := c.state.(type) {
	case Completed:
		view := Display(s.Result)
		snap.Result = s.Result
		snap.Display = &view
	case Failed:
		snap.Error = &ErrorView{Kind: s.Err.Kind, Status: s.Err.Status, Message: s.Err.Message()}
	}
	_, submitting := c.state.(Submitting)
	snap.CanSubmit = !c.closed && !submitting && snap.Selection.PatientID != ""
	return snap
}
