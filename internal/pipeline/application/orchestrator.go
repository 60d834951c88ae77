package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
	invoice "abstraction-billing/internal/invoice/domain"
	"abstraction-billing/internal/pipeline"
	transaction "abstraction-billing/internal/transaction/domain"
	volapp "abstraction-billing/internal/volume/application"
	volume "abstraction-billing/internal/volume/domain"
)

// BillRunDeleter is the slice of the charging authority client the
// orchestrator needs when tearing a batch down.
type BillRunDeleter interface {
	Delete(ctx context.Context, billRunID string) error
}

// Orchestrator drives the batch lifecycle from the outside: it creates
// batches, resumes them after review, triggers sending and deletes them.
// The pipeline worker does everything in between.
type Orchestrator struct {
	batches      *batchapp.Service
	dispatcher   *pipeline.Dispatcher
	reviewer     *volapp.Reviewer
	client       BillRunDeleter
	jobs         pipeline.JobStore
	transactions transaction.Repository
	invoices     invoice.Repository
	workset      batch.ChargeVersionYearRepository
	volumes      volume.Repository
	logger       *zap.Logger
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(
	batches *batchapp.Service,
	dispatcher *pipeline.Dispatcher,
	reviewer *volapp.Reviewer,
	client BillRunDeleter,
	jobs pipeline.JobStore,
	transactions transaction.Repository,
	invoices invoice.Repository,
	workset batch.ChargeVersionYearRepository,
	volumes volume.Repository,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if batches == nil || dispatcher == nil || reviewer == nil || client == nil ||
		jobs == nil || transactions == nil || invoices == nil || workset == nil || volumes == nil {
		return nil, errors.New("orchestrator: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		batches:      batches,
		dispatcher:   dispatcher,
		reviewer:     reviewer,
		client:       client,
		jobs:         jobs,
		transactions: transactions,
		invoices:     invoices,
		workset:      workset,
		volumes:      volumes,
		logger:       logger,
	}, nil
}

// CreateBatch creates a queued batch and schedules its first pipeline job.
func (o *Orchestrator) CreateBatch(ctx context.Context, region string, batchType batch.Type, endYear charge.FinancialYear, isSummer bool, yearSpan int) (*batch.Batch, error) {
	b, err := o.batches.Create(ctx, region, batchType, endYear, isSummer, yearSpan)
	if err != nil {
		return nil, err
	}
	if _, err := o.dispatcher.Enqueue(ctx, pipeline.StageCreateBillRun, b.ID, nil, 0); err != nil {
		return nil, fmt.Errorf("orchestrator: schedule batch %s: %w", b.ID, err)
	}
	return b, nil
}

// ResumeAfterReview approves all billing volumes of a reviewed batch and
// restarts charge version processing. Fails when any volume still carries
// an unresolved matching error.
func (o *Orchestrator) ResumeAfterReview(ctx context.Context, batchID string) (*batch.Batch, error) {
	if _, err := o.batches.AssertStatus(ctx, batchID, batch.StatusReview); err != nil {
		return nil, err
	}
	if err := o.reviewer.ApproveBatch(ctx, batchID); err != nil {
		return nil, err
	}
	b, err := o.batches.SetStatus(ctx, batchID, batch.StatusProcessing)
	if err != nil {
		return nil, err
	}
	if _, err := o.dispatcher.Enqueue(ctx, pipeline.StageProcessChargeVersions, batchID, nil, 0); err != nil {
		return nil, fmt.Errorf("orchestrator: resume batch %s: %w", batchID, err)
	}
	o.logger.Info("batch resumed after review", zap.String("batch_id", batchID))
	return b, nil
}

// SendBatch moves a ready batch to sending and schedules the send stage.
func (o *Orchestrator) SendBatch(ctx context.Context, batchID string) (*batch.Batch, error) {
	if _, err := o.batches.AssertStatus(ctx, batchID, batch.StatusReady); err != nil {
		return nil, err
	}
	b, err := o.batches.SetStatus(ctx, batchID, batch.StatusSending)
	if err != nil {
		return nil, err
	}
	if _, err := o.dispatcher.Enqueue(ctx, pipeline.StageSendBatch, batchID, nil, 0); err != nil {
		return nil, fmt.Errorf("orchestrator: send batch %s: %w", batchID, err)
	}
	return b, nil
}

// DeleteBatch removes an unsent batch and everything generated for it.
// Approved billing volumes survive so review decisions carry over to the
// next batch. Sent and sending batches cannot be deleted.
func (o *Orchestrator) DeleteBatch(ctx context.Context, batchID string) error {
	b, err := o.batches.AssertStatus(ctx, batchID,
		batch.StatusQueued, batch.StatusProcessing, batch.StatusReview,
		batch.StatusReady, batch.StatusEmpty, batch.StatusError)
	if err != nil {
		return err
	}

	if b.ExternalID != "" {
		// Best effort; the authority reaps orphaned unsent bill runs.
		if err := o.client.Delete(ctx, b.ExternalID); err != nil {
			o.logger.Warn("failed to delete remote bill run",
				zap.String("batch_id", batchID),
				zap.String("bill_run_id", b.ExternalID),
				zap.Error(err),
			)
		}
	}

	cleanups := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"jobs", o.jobs.DeleteByBatch},
		{"transactions", o.transactions.DeleteByBatch},
		{"invoices", o.invoices.DeleteByBatch},
		{"charge version years", o.workset.DeleteByBatch},
		{"billing volumes", o.volumes.DeleteByBatch},
	}
	for _, c := range cleanups {
		if err := c.fn(ctx, batchID); err != nil {
			return fmt.Errorf("orchestrator: delete %s of batch %s: %w", c.name, batchID, err)
		}
	}
	if err := o.batches.Delete(ctx, batchID); err != nil {
		return err
	}
	o.logger.Info("batch deleted", zap.String("batch_id", batchID))
	return nil
}
