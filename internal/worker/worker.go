// Package worker implements the analysis pipeline execution loop: fetch the request,
// pause, score every associated genre, then deliver exactly one callback.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
	"github.com/JakeFAU/genre-analyzer/internal/metrics"
	"github.com/JakeFAU/genre-analyzer/internal/scoring"
)

const publishTimeout = 5 * time.Second

// Config controls Worker behavior.
type Config struct {
	DelayMin      time.Duration
	DelayMax      time.Duration
	FetchTimeout  time.Duration
	NotifyTimeout time.Duration
	OutcomeTopic  string
	// ReportFailures sends a failed-status callback instead of dropping the run silently.
	ReportFailures bool
}

// Worker consumes queue items and executes the analysis pipeline.
type Worker struct {
	queue     analysis.Queue
	store     analysis.Store
	notifier  analysis.Notifier
	publisher analysis.Publisher
	clock     analysis.Clock
	idGen     analysis.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. The publisher may be nil.
func New(
	queue analysis.Queue,
	store analysis.Store,
	notifier analysis.Notifier,
	publisher analysis.Publisher,
	clock analysis.Clock,
	idGen analysis.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	return &Worker{
		queue:     queue,
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, analysis.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.reportDepth()
		w.logger.Debug("dequeued analysis request", zap.Int64("analysis_request_id", item.RequestID))
		metrics.IncActiveWorkers()
		w.Process(ctx, item)
		metrics.DecActiveWorkers()
	}
}

// lenReporter is implemented by queues that can report their depth.
type lenReporter interface {
	Len() int
}

func (w *Worker) reportDepth() {
	if lr, ok := w.queue.(lenReporter); ok {
		metrics.SetQueueDepth(lr.Len())
	}
}

// run carries the state of one orchestration.
type run struct {
	id        string
	item      analysis.QueueItem
	started   time.Time
	logger    *zap.Logger
	genres    int
	attempted bool
	delivered bool
	errText   string
}

// Process executes one run and returns its outcome event. It never panics and never
// returns an error: every failure is terminal to the run and only logged.
func (w *Worker) Process(ctx context.Context, item analysis.QueueItem) analysis.OutcomeEvent {
	r := &run{item: item, started: w.clock.Now()}
	r.id = w.newRunID()
	r.logger = w.logger.With(
		zap.String("run_id", r.id),
		zap.Int64("analysis_request_id", item.RequestID),
	)
	if item.TraceID != "" {
		r.logger = r.logger.With(zap.String("request_id", item.TraceID))
	}
	r.logger.Info("analysis run started")

	outcome := w.safeExecute(ctx, r)

	finished := w.clock.Now()
	event := analysis.OutcomeEvent{
		RunID:             r.id,
		RequestID:         item.RequestID,
		Outcome:           outcome,
		GenreCount:        r.genres,
		CallbackAttempted: r.attempted,
		CallbackDelivered: r.delivered,
		Error:             r.errText,
		StartedAt:         r.started,
		FinishedAt:        finished,
	}
	metrics.ObserveRun(string(outcome), finished.Sub(r.started))
	w.publishOutcome(ctx, r, event)
	r.logger.Info("analysis run finished",
		zap.String("outcome", string(outcome)),
		zap.Int("genre_count", r.genres),
		zap.Bool("callback_delivered", r.delivered),
		zap.Duration("duration", finished.Sub(r.started)),
	)
	return event
}

// safeExecute runs the pipeline. A panic anywhere in it, the notifier included,
// ends the run as scoring_failed.
func (w *Worker) safeExecute(ctx context.Context, r *run) (outcome analysis.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.errText = fmt.Sprintf("panic: %v", rec)
			r.logger.Error("analysis run panicked", zap.Any("panic", rec), zap.Stack("stack"))
			outcome = analysis.OutcomeScoringFailed
		}
	}()
	return w.execute(ctx, r)
}

func (w *Worker) execute(ctx context.Context, r *run) analysis.Outcome {
	if err := ctx.Err(); err != nil {
		r.errText = err.Error()
		r.logger.Warn("analysis run canceled before start", zap.Error(err))
		return analysis.OutcomeCanceled
	}

	req, err := w.fetchRequest(ctx, r.item.RequestID)
	if err != nil {
		r.errText = err.Error()
		if ctx.Err() != nil {
			r.logger.Warn("fetch analysis request canceled", zap.Error(err))
			return analysis.OutcomeCanceled
		}
		outcome := analysis.OutcomeStoreUnavailable
		if errors.Is(err, analysis.ErrNotFound) {
			outcome = analysis.OutcomeNotFound
		}
		r.logger.Error("fetch analysis request failed", zap.String("outcome", string(outcome)), zap.Error(err))
		w.reportFailure(ctx, r, outcome)
		return outcome
	}

	if strings.TrimSpace(req.Text) == "" {
		r.logger.Error("analysis text is empty")
		w.notify(ctx, r, nil)
		return analysis.OutcomeEmptyText
	}

	delay := PacingDelay(w.cfg.DelayMin, w.cfg.DelayMax)
	metrics.ObservePacingDelay(delay)
	if err := w.clock.Sleep(ctx, delay); err != nil {
		r.errText = err.Error()
		r.logger.Warn("pacing delay interrupted", zap.Duration("delay", delay), zap.Error(err))
		return analysis.OutcomeCanceled
	}
	r.logger.Info("pacing delay finished, scoring", zap.Duration("delay", delay))

	results, err := w.scoreGenres(ctx, r, req.Text)
	if err != nil {
		r.errText = err.Error()
		if ctx.Err() != nil {
			r.logger.Warn("scoring canceled", zap.Error(err))
			return analysis.OutcomeCanceled
		}
		r.logger.Error("scoring failed", zap.Error(err))
		w.reportFailure(ctx, r, analysis.OutcomeScoringFailed)
		return analysis.OutcomeScoringFailed
	}
	if len(results) == 0 {
		r.logger.Warn("no genres associated with analysis request")
		w.notify(ctx, r, results)
		return analysis.OutcomeNoGenres
	}

	w.notify(ctx, r, results)
	return analysis.OutcomeCompleted
}

func (w *Worker) fetchRequest(ctx context.Context, id int64) (analysis.Request, error) {
	fetchCtx, cancel := w.withTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()
	req, err := w.store.FetchRequest(fetchCtx, id)
	if err != nil {
		return analysis.Request{}, fmt.Errorf("fetch request: %w", err)
	}
	return req, nil
}

// scoreGenres fetches the associations and scores each one in fetch order.
// A panic inside scoring is converted to an error so one bad run cannot kill the worker.
func (w *Worker) scoreGenres(ctx context.Context, r *run, text string) (results []analysis.ScoreResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			results = nil
			err = fmt.Errorf("panic while scoring: %v", rec)
		}
	}()

	fetchCtx, cancel := w.withTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()
	assocs, err := w.store.FetchGenreAssociations(fetchCtx, r.item.RequestID)
	if err != nil {
		return nil, fmt.Errorf("fetch genre associations: %w", err)
	}

	results = make([]analysis.ScoreResult, 0, len(assocs))
	for _, a := range assocs {
		percent := 0
		if a.GenreKeywords != "" {
			percent = scoring.Score(text, a.GenreKeywords)
		}
		results = append(results, analysis.ScoreResult{GenreID: a.GenreID, ProbabilityPercent: percent})
		r.logger.Debug("genre scored",
			zap.Int64("genre_id", a.GenreID),
			zap.String("genre_name", a.GenreName),
			zap.Int("probability_percent", percent),
		)
	}
	r.genres = len(results)
	metrics.AddGenresScored(len(results))
	return results, nil
}

func (w *Worker) reportFailure(ctx context.Context, r *run, outcome analysis.Outcome) {
	if !w.cfg.ReportFailures {
		return
	}
	w.send(ctx, r, analysis.Report{
		RequestID: r.item.RequestID,
		Results:   []analysis.ScoreResult{},
		Status:    analysis.ReportFailed,
		Error:     string(outcome),
	})
}

func (w *Worker) notify(ctx context.Context, r *run, results []analysis.ScoreResult) {
	if results == nil {
		results = []analysis.ScoreResult{}
	}
	w.send(ctx, r, analysis.Report{
		RequestID: r.item.RequestID,
		Results:   results,
		Status:    analysis.ReportCompleted,
	})
}

// send makes the single callback attempt of a run. Shutdown does not cancel a callback
// already in progress; the notify timeout bounds it instead.
func (w *Worker) send(ctx context.Context, r *run, report analysis.Report) {
	if r.attempted {
		r.logger.Error("callback already attempted for run")
		return
	}
	r.attempted = true

	notifyCtx, cancel := w.withTimeout(context.WithoutCancel(ctx), w.cfg.NotifyTimeout)
	defer cancel()
	if err := w.notifier.Notify(notifyCtx, report); err != nil {
		metrics.ObserveCallback(false)
		r.errText = err.Error()
		r.logger.Error("callback failed", zap.Int("result_count", len(report.Results)), zap.Error(err))
		return
	}
	metrics.ObserveCallback(true)
	r.delivered = true
	r.logger.Info("callback delivered", zap.Int("result_count", len(report.Results)))
}

func (w *Worker) publishOutcome(ctx context.Context, r *run, event analysis.OutcomeEvent) {
	if w.publisher == nil || w.cfg.OutcomeTopic == "" {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("publish outcome event panicked", zap.Any("panic", rec))
		}
	}()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := w.publisher.Publish(pubCtx, w.cfg.OutcomeTopic, event); err != nil {
		r.logger.Warn("publish outcome event failed", zap.String("topic", w.cfg.OutcomeTopic), zap.Error(err))
	}
}

func (w *Worker) newRunID() string {
	if w.idGen == nil {
		return ""
	}
	id, err := w.idGen.NewID()
	if err != nil {
		w.logger.Warn("generate run id failed", zap.Error(err))
		return ""
	}
	return id
}

func (w *Worker) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// PacingDelay picks a uniformly random duration in [lo, hi].
func PacingDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		if lo < 0 {
			return 0
		}
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
