package progress

import (
	"sync"
	"time"
)

// Stage is one cosmetic step of the analysis animation.
type Stage struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
}

// DefaultStages mirror the dashboard's analysis steps, 2.2s in total.
var DefaultStages = []Stage{
	{ID: "validation", Label: "Validating patient data", Duration: 300 * time.Millisecond},
	{ID: "preprocessing", Label: "Preprocessing clinical features", Duration: 400 * time.Millisecond},
	{ID: "inference", Label: "Running risk model", Duration: 500 * time.Millisecond},
	{ID: "explanation", Label: "Computing feature contributions", Duration: 600 * time.Millisecond},
	{ID: "recommendations", Label: "Generating recommendations", Duration: 400 * time.Millisecond},
}

// Snapshot is the progress indicator at one point in time.
type Snapshot struct {
	Percent float64 `json:"percent"`
	Stage   int     `json:"stage"`
	StageID string  `json:"stageId"`
	Label   string  `json:"label"`
	Done    bool    `json:"done"`
}

// Total is the sum of all stage durations.
func Total(stages []Stage) time.Duration {
	var total time.Duration
	for _, stage := range stages {
		total += stage.Duration
	}
	return total
}

// Compute maps elapsed time onto a snapshot. Percent never decreases as
// elapsed grows and is clamped to 100.
func Compute(stages []Stage, elapsed time.Duration) Snapshot {
	if len(stages) == 0 {
		return Snapshot{Percent: 100, Done: true}
	}
	if elapsed < 0 {
		elapsed = 0
	}

	total := Total(stages)
	if total <= 0 || elapsed >= total {
		last := len(stages) - 1
		return Snapshot{Percent: 100, Stage: last, StageID: stages[last].ID, Label: stages[last].Label, Done: true}
	}

	index := 0
	var boundary time.Duration
	for i, stage := range stages {
		boundary += stage.Duration
		if elapsed < boundary {
			index = i
			break
		}
	}

	return Snapshot{
		Percent: float64(elapsed) / float64(total) * 100,
		Stage:   index,
		StageID: stages[index].ID,
		Label:   stages[index].Label,
	}
}

// Clock lets tests drive elapsed time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Simulator animates progress on a ticker. It never waits on, nor gates, the
// real prediction request.
type Simulator struct {
	Stages []Stage
	Tick   time.Duration
	Clock  Clock
}

const defaultTick = 25 * time.Millisecond

func NewSimulator(tick time.Duration) *Simulator {
	if tick <= 0 {
		tick = defaultTick
	}
	return &Simulator{Stages: DefaultStages, Tick: tick, Clock: systemClock{}}
}

// Start emits snapshots from a background goroutine until the animation
// reaches 100% or the handle is stopped.
func (s *Simulator) Start(emit func(Snapshot)) *Handle {
	h := &Handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	clock := s.Clock
	if clock == nil {
		clock = systemClock{}
	}
	tick := s.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	stages := s.Stages
	started := clock.Now()

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				snapshot := Compute(stages, clock.Now().Sub(started))
				if !h.emit(emit, snapshot) || snapshot.Done {
					return
				}
			}
		}
	}()
	return h
}

// Handle controls one running animation.
type Handle struct {
	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func (h *Handle) emit(fn func(Snapshot), snapshot Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	fn(snapshot)
	return true
}

// Stop is idempotent. After it returns no further emit begins. It must not be
// called from inside the emit callback.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.stop)
	}
}

// Done is closed once the ticker goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
