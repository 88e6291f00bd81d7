// Package orchestrator drives batch execution of work items against model
// backends: sequential fixed-size batches, a bounded worker pool inside
// each batch, and a progress event after every batch. A failing item never
// aborts its job; successes are saved and failures reported.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/storyloom/orchestrator/internal/backend"
	"github.com/storyloom/orchestrator/internal/breaker"
	"github.com/storyloom/orchestrator/internal/cache"
	"github.com/storyloom/orchestrator/internal/classifier"
	"github.com/storyloom/orchestrator/internal/domain"
	"github.com/storyloom/orchestrator/internal/retry"
	"github.com/storyloom/orchestrator/internal/router"
	"github.com/storyloom/orchestrator/internal/session"
	"github.com/storyloom/orchestrator/internal/storage"
)

const (
	DefaultBatchSize   = 5
	DefaultMaxWorkers  = 4
	DefaultCallTimeout = 60 * time.Second
)

// Config bounds the orchestrator's concurrency and per-call timeout.
// Concurrency is intentionally capped: backend throttling is the dominant
// failure mode, and uncontrolled parallelism degrades the success rate.
type Config struct {
	BatchSize   int
	MaxWorkers  int
	CallTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
}

// Orchestrator coordinates the classify→route→authorize→gate→call pipeline
// for every work item. All collaborators are injected; multiple independent
// instances can coexist in tests.
type Orchestrator struct {
	classifier *classifier.Classifier
	router     *router.Router
	breaker    *breaker.Breaker
	retry      *retry.Policy
	cache      *cache.Cache
	sessions   *session.Manager
	backends   backend.Directory
	store      storage.JobStore
	logger     *slog.Logger
	tracer     trace.Tracer
	cfg        Config

	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.RWMutex
	jobs map[string]*Job

	semMu sync.Mutex
	sems  map[string]*semaphore.Weighted
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists job lifecycle records to the given store.
func WithStore(store storage.JobStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithConfig overrides the concurrency and timeout bounds.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithSleep overrides backoff sleeping, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// New wires an orchestrator from its collaborators.
func New(
	cls *classifier.Classifier,
	rt *router.Router,
	brk *breaker.Breaker,
	rp *retry.Policy,
	ch *cache.Cache,
	sessions *session.Manager,
	backends backend.Directory,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		classifier: cls,
		router:     rt,
		breaker:    brk,
		retry:      rp,
		cache:      ch,
		sessions:   sessions,
		backends:   backends,
		logger:     slog.Default(),
		tracer:     otel.Tracer("orchestrator"),
		jobs:       make(map[string]*Job),
		sems:       make(map[string]*semaphore.Weighted),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg.applyDefaults()
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit validates the collection and starts processing in the background.
// Job-level configuration errors abort before any item is dispatched;
// per-item validation failures are recorded as outcomes without stopping
// the job.
func (o *Orchestrator) Submit(ctx context.Context, sessionID string, items []domain.WorkItem) (*Job, error) {
	if len(items) == 0 {
		return nil, &domain.ValidationError{Reason: "empty work item collection"}
	}
	if err := o.checkJobConfig(items); err != nil {
		return nil, err
	}

	batches := (len(items) + o.cfg.BatchSize - 1) / o.cfg.BatchSize
	job := newJob(uuid.New().String(), sessionID, items, batches)

	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	if o.store != nil {
		rec := &storage.JobRecord{
			ID:        job.ID,
			SessionID: sessionID,
			Status:    string(domain.JobPending),
			Total:     len(items),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := o.store.CreateJob(ctx, rec); err != nil {
			o.logger.Warn("persist job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}

	o.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("session_id", sessionID),
		slog.Int("items", len(items)),
		slog.Int("batches", batches))

	go o.run(job)
	return job, nil
}

// checkJobConfig surfaces deployment problems that would fail every item,
// before anything is dispatched.
func (o *Orchestrator) checkJobConfig(items []domain.WorkItem) error {
	snap := o.router.Registry().Snapshot()
	if snap.Len() == 0 {
		return &domain.ConfigurationError{Reason: "no backends registered"}
	}
	for _, item := range items {
		if item.RequiresVisual() {
			if _, ok := snap.VisualCapable(); !ok {
				return &domain.ConfigurationError{
					Reason: "collection contains visual work items but no backend is tagged \"visual\"",
				}
			}
			break
		}
	}
	return nil
}

// Get returns the job handle for id.
func (o *Orchestrator) Get(jobID string) (*Job, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	j, ok := o.jobs[jobID]
	return j, ok
}

// Cancel requests cooperative cancellation: in-flight items finish, no new
// items are dispatched, and the job moves to Cancelled.
func (o *Orchestrator) Cancel(jobID string) error {
	job, ok := o.Get(jobID)
	if !ok {
		return fmt.Errorf("unknown job %q", jobID)
	}
	job.cancelled.Store(true)
	o.logger.Info("job cancellation requested", slog.String("job_id", jobID))
	return nil
}

// run processes the job's batches sequentially. Batch N+1 does not start
// until every item dispatched in batch N has resolved, which keeps progress
// events monotonic and batch-aligned.
func (o *Orchestrator) run(job *Job) {
	ctx := context.Background()
	job.setStatus(domain.JobRunning)
	o.persistJob(ctx, job, domain.JobRunning)

	total := len(job.items)
	batchNum := 0
	for start := 0; start < total; start += o.cfg.BatchSize {
		if job.cancelled.Load() {
			break
		}
		end := start + o.cfg.BatchSize
		if end > total {
			end = total
		}
		batchNum++

		failedBefore := snapshotFailed(job)

		g := new(errgroup.Group)
		g.SetLimit(o.cfg.MaxWorkers)
		for _, item := range job.items[start:end] {
			item := item
			g.Go(func() error {
				outcome := o.processItem(ctx, job, item)
				job.record(outcome)
				o.persistOutcome(ctx, job.ID, outcome)
				return nil
			})
		}
		_ = g.Wait()

		completed, failed := job.counts()
		event := domain.ProgressEvent{
			JobID:             job.ID,
			Batch:             batchNum,
			Completed:         completed,
			Failed:            failed,
			Total:             total,
			LastBatchFailures: failed - failedBefore,
		}
		job.progress <- event
		o.persistJob(ctx, job, domain.JobRunning)
		o.logger.Debug("batch complete",
			slog.String("job_id", job.ID),
			slog.Int("batch", batchNum),
			slog.Int("completed", completed),
			slog.Int("failed", failed))
	}

	final := domain.JobCompleted
	if job.cancelled.Load() {
		final = domain.JobCancelled
	}
	job.setStatus(final)
	o.persistJob(ctx, job, final)
	close(job.progress)
	close(job.done)

	completed, failed := job.counts()
	o.logger.Info("job finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(final)),
		slog.Int("completed", completed),
		slog.Int("failed", failed))
}

func snapshotFailed(job *Job) int {
	_, failed := job.counts()
	return failed
}

func (o *Orchestrator) persistJob(ctx context.Context, job *Job, status domain.JobStatus) {
	if o.store == nil {
		return
	}
	completed, failed := job.counts()
	if err := o.store.UpdateJob(ctx, job.ID, string(status), completed, failed); err != nil {
		o.logger.Warn("persist job update failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) persistOutcome(ctx context.Context, jobID string, outcome domain.Outcome) {
	if o.store == nil {
		return
	}
	rec := &storage.OutcomeRecord{
		JobID:     jobID,
		ItemID:    outcome.ItemID,
		BackendID: outcome.BackendID,
		OK:        outcome.OK,
		ErrorKind: string(outcome.ErrorKind),
		Message:   outcome.Message,
		Attempts:  outcome.Attempts,
		CacheHit:  outcome.CacheHit,
		Response:  outcome.Response,
		CreatedAt: time.Now(),
	}
	if err := o.store.RecordOutcome(ctx, rec); err != nil {
		o.logger.Warn("persist outcome failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}
