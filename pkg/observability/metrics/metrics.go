package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	predictionsSubmitted   atomic.Int64
	predictionsCompleted   atomic.Int64
	failedUnreachable      atomic.Int64
	failedServiceError     atomic.Int64
	failedMalformed        atomic.Int64
	staleResponsesDropped  atomic.Int64
	cohortQueries          atomic.Int64
	activeSessions         atomic.Int64
	outcomeRecordingErrors atomic.Int64
)

// Counts is a point-in-time copy of the counters.
type Counts struct {
	Submitted         int64
	Completed         int64
	FailedUnreachable int64
	FailedService     int64
	FailedMalformed   int64
	StaleDropped      int64
	CohortQueries     int64
	ActiveSessions    int64
	RecordingErrors   int64
}

func IncSubmitted()           { predictionsSubmitted.Add(1) }
func IncCompleted()           { predictionsCompleted.Add(1) }
func IncStale()               { staleResponsesDropped.Add(1) }
func IncCohortQuery()         { cohortQueries.Add(1) }
func IncRecordingError()      { outcomeRecordingErrors.Add(1) }
func SetActiveSessions(n int) { activeSessions.Store(int64(n)) }

// IncFailed counts a failed prediction by its error kind.
func IncFailed(kind string) {
	switch kind {
	case "unreachable":
		failedUnreachable.Add(1)
	case "service_error":
		failedServiceError.Add(1)
	default:
		failedMalformed.Add(1)
	}
}

func Snapshot() Counts {
	return Counts{
		Submitted:         predictionsSubmitted.Load(),
		Completed:         predictionsCompleted.Load(),
		FailedUnreachable: failedUnreachable.Load(),
		FailedService:     failedServiceError.Load(),
		FailedMalformed:   failedMalformed.Load(),
		StaleDropped:      staleResponsesDropped.Load(),
		CohortQueries:     cohortQueries.Load(),
		ActiveSessions:    activeSessions.Load(),
		RecordingErrors:   outcomeRecordingErrors.Load(),
	}
}

func WritePrometheus(w http.ResponseWriter) {
	c := Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP riskboard_predictions_submitted_total Number of prediction requests sent to the scoring service.\n")
	fmt.Fprintf(w, "# TYPE riskboard_predictions_submitted_total counter\n")
	fmt.Fprintf(w, "riskboard_predictions_submitted_total %d\n", c.Submitted)

	fmt.Fprintf(w, "# HELP riskboard_predictions_completed_total Number of predictions that produced a result.\n")
	fmt.Fprintf(w, "# TYPE riskboard_predictions_completed_total counter\n")
	fmt.Fprintf(w, "riskboard_predictions_completed_total %d\n", c.Completed)

	fmt.Fprintf(w, "# HELP riskboard_predictions_failed_total Number of predictions that failed, by error kind.\n")
	fmt.Fprintf(w, "# TYPE riskboard_predictions_failed_total counter\n")
	fmt.Fprintf(w, "riskboard_predictions_failed_total{kind=\"unreachable\"} %d\n", c.FailedUnreachable)
	fmt.Fprintf(w, "riskboard_predictions_failed_total{kind=\"service_error\"} %d\n", c.FailedService)
	fmt.Fprintf(w, "riskboard_predictions_failed_total{kind=\"malformed_response\"} %d\n", c.FailedMalformed)

	fmt.Fprintf(w, "# HELP riskboard_predictions_stale_total Number of responses discarded because a newer selection superseded them.\n")
	fmt.Fprintf(w, "# TYPE riskboard_predictions_stale_total counter\n")
	fmt.Fprintf(w, "riskboard_predictions_stale_total %d\n", c.StaleDropped)

	fmt.Fprintf(w, "# HELP riskboard_cohort_queries_total Number of cohort queries evaluated.\n")
	fmt.Fprintf(w, "# TYPE riskboard_cohort_queries_total counter\n")
	fmt.Fprintf(w, "riskboard_cohort_queries_total %d\n", c.CohortQueries)

	fmt.Fprintf(w, "# HELP riskboard_sessions_active Number of open prediction sessions.\n")
	fmt.Fprintf(w, "# TYPE riskboard_sessions_active gauge\n")
	fmt.Fprintf(w, "riskboard_sessions_active %d\n", c.ActiveSessions)

	fmt.Fprintf(w, "# HELP riskboard_outcome_recording_errors_total Number of outcome sinks that failed to record.\n")
	fmt.Fprintf(w, "# TYPE riskboard_outcome_recording_errors_total counter\n")
	fmt.Fprintf(w, "riskboard_outcome_recording_errors_total %d\n", c.RecordingErrors)
}
