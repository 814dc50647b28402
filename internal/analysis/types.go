package analysis

import (
	"errors"
	"time"
)

// Sentinel errors shared across packages. Callers must use errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrQueueClosed      = errors.New("queue closed")
)

// Request is a stored text awaiting genre scoring.
type Request struct {
	ID   int64
	Text string
}

// Genre is read-only reference data.
type Genre struct {
	ID       int64
	Name     string
	Keywords string
}

// GenreAssociation links a request to a genre it should be scored against,
// joined with the genre row.
type GenreAssociation struct {
	GenreID       int64
	GenreName     string
	GenreKeywords string
}

// ScoreResult is the per-genre score delivered through the callback.
type ScoreResult struct {
	GenreID            int64 `json:"genre_id"`
	ProbabilityPercent int   `json:"probability_percent"`
}

// ReportStatus marks whether a callback carries results or a failure.
type ReportStatus string

// Report statuses. The empty status is used when failure reporting is off.
const (
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// Report is what the notifier delivers for one run.
type Report struct {
	RequestID int64
	Results   []ScoreResult
	Status    ReportStatus
	Error     string
}

// Outcome is the terminal state of one orchestration run.
type Outcome string

// Run outcomes, used as metric labels and on outcome events.
const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeEmptyText        Outcome = "empty_text"
	OutcomeNoGenres         Outcome = "no_genres"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeStoreUnavailable Outcome = "store_unavailable"
	OutcomeScoringFailed    Outcome = "scoring_failed"
	OutcomeCanceled         Outcome = "canceled"
)

// OutcomeEvent is published once per run. It never carries the text or the secret.
type OutcomeEvent struct {
	RunID             string    `json:"run_id"`
	RequestID         int64     `json:"analysis_request_id"`
	Outcome           Outcome   `json:"outcome"`
	GenreCount        int       `json:"genre_count"`
	CallbackAttempted bool      `json:"callback_attempted"`
	CallbackDelivered bool      `json:"callback_delivered"`
	Error             string    `json:"error,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

// QueueItem is one accepted analysis trigger waiting for a worker.
type QueueItem struct {
	RequestID  int64
	AcceptedAt time.Time
	TraceID    string
}
