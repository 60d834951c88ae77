package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	batch "abstraction-billing/internal/batch/domain"
	"abstraction-billing/internal/observability/metrics"
	"abstraction-billing/internal/pipeline/notify"
)

// Dispatcher claims due jobs, executes their stages and advances batches
// along the stage graph. Failures retry with exponential backoff until the
// stage's attempts run out; then the job goes to the dead letter queue and
// the batch is marked errored with the stage's error code.
type Dispatcher struct {
	store    JobStore
	dlq      DLQStore
	batches  batch.Repository
	registry *Registry
	graph    *Graph
	config   Config
	notifier notify.Notifier
	clock    func() time.Time
	logger   *zap.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(store JobStore, dlq DLQStore, batches batch.Repository, registry *Registry, graph *Graph, config Config, notifier notify.Notifier, logger *zap.Logger) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("pipeline: nil job store")
	}
	if batches == nil {
		return nil, errors.New("pipeline: nil batch repository")
	}
	if registry == nil || graph == nil {
		return nil, errors.New("pipeline: nil registry or graph")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:    store,
		dlq:      dlq,
		batches:  batches,
		registry: registry,
		graph:    graph,
		config:   config,
		notifier: notifier,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}, nil
}

// WithClock overrides the dispatcher clock, for tests.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	if clock != nil {
		d.clock = clock
	}
	return d
}

// Enqueue inserts the first job of a stage for a batch. The singleton key
// makes repeated triggers collapse; it reports whether a job was inserted.
func (d *Dispatcher) Enqueue(ctx context.Context, stage, batchID string, payload json.RawMessage, delay time.Duration) (bool, error) {
	return d.enqueue(ctx, stage, batchID, "", payload, delay)
}

func (d *Dispatcher) enqueue(ctx context.Context, stage, batchID, discriminator string, payload json.RawMessage, delay time.Duration) (bool, error) {
	now := d.clock()
	policy := d.config.StagePolicy(stage)
	job := Job{
		ID:           uuid.NewString(),
		Stage:        stage,
		BatchID:      batchID,
		SingletonKey: SingletonKey(stage, batchID, discriminator),
		Payload:      payload,
		Status:       JobPending,
		MaxAttempts:  policy.MaxAttempts,
		NextRunAt:    now.Add(delay),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inserted, err := d.store.Enqueue(ctx, job)
	if err != nil {
		return false, err
	}
	if !inserted {
		d.logger.Debug("job deduplicated",
			zap.String("stage", stage),
			zap.String("batch_id", batchID),
		)
	}
	return inserted, nil
}

// Dispatch claims and executes due jobs once. It returns the number of
// jobs executed.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	jobs, err := d.store.ClaimDue(ctx, d.clock(), d.config.ClaimLimit)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		d.run(ctx, job)
	}
	return len(jobs), nil
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	stage, ok := d.registry.Resolve(job.Stage)
	if !ok {
		d.logger.Error("unknown stage", zap.String("stage", job.Stage), zap.String("job_id", job.ID))
		_ = d.store.MarkDead(ctx, job.ID, "unknown stage "+job.Stage)
		return
	}

	started := d.clock()
	result, err := stage.Execute(ctx, job)
	elapsed := d.clock().Sub(started)
	if err != nil {
		metrics.ObservePipelineJob(job.Stage, metrics.ResultError, elapsed)
		d.fail(ctx, stage, job, err)
		return
	}
	metrics.ObservePipelineJob(job.Stage, metrics.ResultSuccess, elapsed)

	if err := d.store.MarkCompleted(ctx, job.ID); err != nil {
		d.logger.Error("mark completed failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	d.advance(ctx, stage, job, result)
}

// fail reschedules a job with exponential backoff or, once the attempts
// are spent, records it on the DLQ and errors the batch.
func (d *Dispatcher) fail(ctx context.Context, stage Stage, job Job, cause error) {
	attempts := job.Attempts + 1
	policy := d.config.StagePolicy(job.Stage)
	// A failed status gate is an invariant breach, not a transient fault;
	// retrying cannot change the batch's status.
	if !batch.IsStatusError(cause) && attempts < policy.MaxAttempts {
		backoff := policy.Backoff << (attempts - 1)
		metrics.IncPipelineRetry(job.Stage)
		d.logger.Warn("stage failed, retrying",
			zap.String("stage", job.Stage),
			zap.String("batch_id", job.BatchID),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(cause),
		)
		if err := d.store.Reschedule(ctx, job.ID, attempts, d.clock().Add(backoff), cause.Error()); err != nil {
			d.logger.Error("reschedule failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	metrics.IncPipelineDead(job.Stage)
	d.logger.Error("stage failed permanently",
		zap.String("stage", job.Stage),
		zap.String("batch_id", job.BatchID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	if err := d.store.MarkDead(ctx, job.ID, cause.Error()); err != nil {
		d.logger.Error("mark dead failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if d.dlq != nil {
		if err := d.dlq.RecordFailure(ctx, job, cause); err != nil {
			d.logger.Error("dlq record failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	d.errorBatch(ctx, job.BatchID, stage.ErrorCode())
	d.notify(ctx, notify.Event{
		BatchID:    job.BatchID,
		Stage:      job.Stage,
		Outcome:    "error",
		Error:      cause.Error(),
		OccurredAt: d.clock(),
	})
}

func (d *Dispatcher) errorBatch(ctx context.Context, batchID string, code batch.ErrorCode) {
	b, err := d.batches.Get(ctx, batchID)
	if err != nil {
		d.logger.Error("load batch for error status failed", zap.String("batch_id", batchID), zap.Error(err))
		return
	}
	if err := b.SetErrorStatus(code, d.clock()); err != nil {
		d.logger.Warn("batch already terminal", zap.String("batch_id", batchID), zap.Error(err))
		return
	}
	if err := d.batches.UpdateStatus(ctx, b.ID, b.Status, b.ErrorCode); err != nil {
		d.logger.Error("persist error status failed", zap.String("batch_id", batchID), zap.Error(err))
		return
	}
	metrics.IncBatchTransition(string(batch.StatusError))
}

// advance enqueues the follow-up work the graph prescribes.
func (d *Dispatcher) advance(ctx context.Context, stage Stage, job Job, result Result) {
	d.notify(ctx, notify.Event{
		BatchID:    job.BatchID,
		Stage:      job.Stage,
		Outcome:    string(result.Outcome),
		OccurredAt: d.clock(),
	})

	b, err := d.batches.Get(ctx, job.BatchID)
	if err != nil {
		d.logger.Error("load batch for advance failed", zap.String("batch_id", job.BatchID), zap.Error(err))
		return
	}
	next, ok := d.graph.Next(job.Stage, b.Type, result.Outcome)
	if !ok {
		return
	}

	if result.Outcome == OutcomeFanOut {
		for i, payload := range result.FanOut {
			discriminator := fanOutDiscriminator(payload, i)
			if _, err := d.enqueue(ctx, next, job.BatchID, discriminator, payload, result.Delay); err != nil {
				d.logger.Error("fan-out enqueue failed",
					zap.String("stage", next),
					zap.String("batch_id", job.BatchID),
					zap.Error(err),
				)
			}
		}
		return
	}
	if _, err := d.enqueue(ctx, next, job.BatchID, "", nil, result.Delay); err != nil {
		d.logger.Error("enqueue next stage failed",
			zap.String("stage", next),
			zap.String("batch_id", job.BatchID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) notify(ctx context.Context, event notify.Event) {
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(ctx, event)
}

// fanOutDiscriminator keeps fan-out jobs distinct under the singleton key.
// Payloads carrying an id use it; anything else falls back to the index.
func fanOutDiscriminator(payload json.RawMessage, index int) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.ID != "" {
		return probe.ID
	}
	return strconv.Itoa(index)
}
