package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
	"github.com/JakeFAU/genre-analyzer/internal/metrics"
	memorypub "github.com/JakeFAU/genre-analyzer/internal/publisher/memory"
	memqueue "github.com/JakeFAU/genre-analyzer/internal/queue/memory"
	memstore "github.com/JakeFAU/genre-analyzer/internal/storage/memory"
)

const testTopic = "genre-analysis-outcomes"

func TestProcessNotFoundSendsNoCallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 404})

	assert.Equal(t, analysis.OutcomeNotFound, event.Outcome)
	assert.False(t, event.CallbackAttempted)
	assert.Empty(t, h.notifier.Reports())
	assert.Zero(t, h.clock.Slept())
}

func TestProcessEmptyTextSendsEmptyList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.putRequest(1, "   \n\t")
	h.putGenre(10, "rock", "guitar")
	require.NoError(t, h.store.Associate(1, 10))

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 1})

	assert.Equal(t, analysis.OutcomeEmptyText, event.Outcome)
	reports := h.notifier.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, int64(1), reports[0].RequestID)
	assert.NotNil(t, reports[0].Results)
	assert.Empty(t, reports[0].Results)
	assert.Zero(t, h.clock.Slept(), "empty text should skip the pacing delay")
}

func TestProcessNoAssociationsSendsEmptyList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.putRequest(2, "some words here")

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 2})

	assert.Equal(t, analysis.OutcomeNoGenres, event.Outcome)
	reports := h.notifier.Reports()
	require.Len(t, reports, 1)
	assert.NotNil(t, reports[0].Results)
	assert.Empty(t, reports[0].Results)
	assert.True(t, event.CallbackDelivered)
}

func TestProcessScoresEveryGenreInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{DelayMin: 5 * time.Second, DelayMax: 5 * time.Second})
	h.putRequest(3, "guitar drums bass")
	h.putGenre(30, "jazz", "saxophone")
	h.putGenre(10, "rock", "guitar,drums")
	h.putGenre(20, "empty", "")
	for _, id := range []int64{30, 10, 20} {
		require.NoError(t, h.store.Associate(3, id))
	}

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 3, TraceID: "trace"})

	assert.Equal(t, analysis.OutcomeCompleted, event.Outcome)
	assert.Equal(t, 3, event.GenreCount)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, 5*time.Second, h.clock.Slept())

	reports := h.notifier.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, []analysis.ScoreResult{
		{GenreID: 10, ProbabilityPercent: 67},
		{GenreID: 20, ProbabilityPercent: 0},
		{GenreID: 30, ProbabilityPercent: 0},
	}, reports[0].Results)
	assert.Equal(t, analysis.ReportCompleted, reports[0].Status)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, testTopic, msgs[0].Topic)
	published, ok := msgs[0].Payload.(analysis.OutcomeEvent)
	require.True(t, ok)
	assert.Equal(t, event, published)
}

func TestProcessStoreUnavailableIsSilentByDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.worker.store = &failingStore{err: analysis.ErrStoreUnavailable}

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 5})

	assert.Equal(t, analysis.OutcomeStoreUnavailable, event.Outcome)
	assert.Empty(t, h.notifier.Reports())
	assert.Contains(t, event.Error, "store unavailable")
}

func TestProcessAssociationFailureIsScoringFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.worker.store = &failingStore{
		request:  analysis.Request{ID: 6, Text: "words"},
		assocErr: analysis.ErrStoreUnavailable,
	}

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 6})

	assert.Equal(t, analysis.OutcomeScoringFailed, event.Outcome)
	assert.Empty(t, h.notifier.Reports())
}

func TestProcessReportFailuresSendsFailedStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ReportFailures: true})

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 404})

	assert.Equal(t, analysis.OutcomeNotFound, event.Outcome)
	reports := h.notifier.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, analysis.ReportFailed, reports[0].Status)
	assert.Equal(t, string(analysis.OutcomeNotFound), reports[0].Error)
	assert.Empty(t, reports[0].Results)
}

func TestProcessCallbackFailureIsRecorded(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.notifier.err = errors.New("connection refused")
	h.putRequest(7, "text")

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 7})

	assert.Equal(t, analysis.OutcomeNoGenres, event.Outcome)
	assert.True(t, event.CallbackAttempted)
	assert.False(t, event.CallbackDelivered)
	assert.Equal(t, "connection refused", event.Error)
	assert.Len(t, h.notifier.Reports(), 1, "callback is attempted exactly once")
}

func TestProcessCanceledDuringDelaySendsNoCallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{DelayMin: time.Second, DelayMax: time.Second})
	h.clock.sleepErr = context.Canceled
	h.putRequest(8, "text")

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 8})

	assert.Equal(t, analysis.OutcomeCanceled, event.Outcome)
	assert.Empty(t, h.notifier.Reports())
}

func TestProcessPublishFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.publisher.FailWith(errors.New("pubsub down"))
	h.putRequest(9, "text")

	event := h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 9})

	assert.Equal(t, analysis.OutcomeNoGenres, event.Outcome)
	assert.Len(t, h.notifier.Reports(), 1)
}

func TestProcessRecoversFromNotifierPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.worker.notifier = panickingNotifier{}
	h.putRequest(11, "  ")

	var event analysis.OutcomeEvent
	require.NotPanics(t, func() {
		event = h.worker.Process(context.Background(), analysis.QueueItem{RequestID: 11})
	})

	assert.Equal(t, analysis.OutcomeScoringFailed, event.Outcome)
	assert.True(t, event.CallbackAttempted)
	assert.False(t, event.CallbackDelivered)
	assert.Contains(t, event.Error, "panic: notifier exploded")

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1, "outcome event is still published after a panic")
	published, ok := msgs[0].Payload.(analysis.OutcomeEvent)
	require.True(t, ok)
	assert.Equal(t, analysis.OutcomeScoringFailed, published.Outcome)
}

func TestProcessCanceledContextSkipsRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ReportFailures: true})
	h.putRequest(12, "guitar")
	h.putGenre(10, "rock", "guitar")
	require.NoError(t, h.store.Associate(12, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	event := h.worker.Process(ctx, analysis.QueueItem{RequestID: 12})

	assert.Equal(t, analysis.OutcomeCanceled, event.Outcome)
	assert.False(t, event.CallbackAttempted)
	assert.Empty(t, h.notifier.Reports())
	assert.Zero(t, h.clock.Slept())
}

func TestProcessFetchCanceledIsNotStoreUnavailable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ReportFailures: true})
	ctx, cancel := context.WithCancel(context.Background())
	h.worker.store = &cancelingStore{cancel: cancel}

	event := h.worker.Process(ctx, analysis.QueueItem{RequestID: 13})

	assert.Equal(t, analysis.OutcomeCanceled, event.Outcome)
	assert.Empty(t, h.notifier.Reports(), "a canceled run reports nothing")
}

func TestRunSurvivesPanickingRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.worker.notifier = panickingNotifier{}
	h.putRequest(1, "")
	h.putRequest(2, "")

	queue := memqueue.NewQueue(4)
	h.worker.queue = queue
	require.NoError(t, queue.Enqueue(context.Background(), analysis.QueueItem{RequestID: 1}))
	require.NoError(t, queue.Enqueue(context.Background(), analysis.QueueItem{RequestID: 2}))

	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(h.publisher.Messages()) == 2
	}, time.Second, 10*time.Millisecond)

	queue.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

// Not parallel: the queue depth gauge is process-wide.
func TestRunUpdatesQueueDepthOnDequeue(t *testing.T) {
	metrics.SetQueueDepth(7)

	h := newHarness(t, Config{})
	h.putRequest(1, "alpha")
	h.putRequest(2, "beta")

	queue := memqueue.NewQueue(4)
	h.worker.queue = queue
	require.NoError(t, queue.Enqueue(context.Background(), analysis.QueueItem{RequestID: 1}))
	require.NoError(t, queue.Enqueue(context.Background(), analysis.QueueItem{RequestID: 2}))

	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(h.notifier.Reports()) == 2
	}, time.Second, 10*time.Millisecond)
	queue.Close()
	<-done

	assert.Contains(t, scrapeMetrics(t), "\ngenre_analysis_queue_depth 0\n")
}

func TestRunProcessesQueueUntilClosed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.putRequest(1, "alpha")
	h.putRequest(2, "beta")

	queue := memqueue.NewQueue(4)
	h.worker.queue = queue
	require.NoError(t, queue.Enqueue(context.Background(), analysis.QueueItem{RequestID: 1}))
	require.NoError(t, queue.Enqueue(context.Background(), analysis.QueueItem{RequestID: 2}))

	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(h.notifier.Reports()) == 2
	}, time.Second, 10*time.Millisecond)

	queue.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.worker.queue = memqueue.NewQueue(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestPacingDelayWithinBounds(t *testing.T) {
	t.Parallel()

	lo, hi := 5*time.Second, 10*time.Second
	for range 1000 {
		d := PacingDelay(lo, hi)
		require.GreaterOrEqual(t, d, lo)
		require.LessOrEqual(t, d, hi)
	}
	assert.Equal(t, 3*time.Second, PacingDelay(3*time.Second, time.Second))
	assert.Zero(t, PacingDelay(-time.Second, -time.Second))
}

type harness struct {
	worker    *Worker
	store     *memstore.Store
	notifier  *fakeNotifier
	publisher *memorypub.Publisher
	clock     *fakeClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	cfg.OutcomeTopic = testTopic
	h := &harness{
		store:     memstore.NewStore(),
		notifier:  &fakeNotifier{},
		publisher: memorypub.New(),
		clock:     &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.worker = New(nil, h.store, h.notifier, h.publisher, h.clock, &seqIDGen{}, cfg, zap.NewNop())
	return h
}

func (h *harness) putRequest(id int64, text string) {
	h.store.PutRequest(analysis.Request{ID: id, Text: text})
}

func (h *harness) putGenre(id int64, name, keywords string) {
	h.store.PutGenre(analysis.Genre{ID: id, Name: name, Keywords: keywords})
}

type fakeNotifier struct {
	mu      sync.Mutex
	reports []analysis.Report
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, report analysis.Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
	return n.err
}

func (n *fakeNotifier) Reports() []analysis.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]analysis.Report(nil), n.reports...)
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, analysis.Report) error {
	panic("notifier exploded")
}

func scrapeMetrics(t *testing.T) string {
	t.Helper()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return "\n" + strings.TrimSpace(string(body)) + "\n"
}

type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	slept    time.Duration
	sleepErr error
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sleepErr != nil {
		return c.sleepErr
	}
	c.slept += d
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type failingStore struct {
	request  analysis.Request
	err      error
	assocErr error
}

func (s *failingStore) FetchRequest(_ context.Context, _ int64) (analysis.Request, error) {
	if s.err != nil {
		return analysis.Request{}, s.err
	}
	return s.request, nil
}

func (s *failingStore) FetchGenreAssociations(_ context.Context, _ int64) ([]analysis.GenreAssociation, error) {
	return nil, s.assocErr
}

func (s *failingStore) Ping(_ context.Context) error {
	return s.err
}

// cancelingStore cancels the run context while the request is being fetched.
type cancelingStore struct {
	cancel context.CancelFunc
}

func (s *cancelingStore) FetchRequest(ctx context.Context, _ int64) (analysis.Request, error) {
	s.cancel()
	return analysis.Request{}, fmt.Errorf("%w: %w", analysis.ErrStoreUnavailable, ctx.Err())
}

func (s *cancelingStore) FetchGenreAssociations(context.Context, int64) ([]analysis.GenreAssociation, error) {
	return nil, nil
}

func (s *cancelingStore) Ping(context.Context) error {
	return nil
}
