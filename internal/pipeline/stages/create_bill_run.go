package stages

import (
	"context"
	"errors"

	"go.uber.org/zap"

	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	"abstraction-billing/internal/pipeline"
)

// CreateBillRun opens the batch's bill run at the charging authority and
// moves the batch from queued to processing.
type CreateBillRun struct {
	batches *batchapp.Service
	client  BillRunClient
	ruleset string
	logger  *zap.Logger
}

// NewCreateBillRun constructs the stage.
func NewCreateBillRun(batches *batchapp.Service, client BillRunClient, ruleset string, logger *zap.Logger) (*CreateBillRun, error) {
	if batches == nil || client == nil {
		return nil, errors.New("create bill run stage: nil dependency")
	}
	if ruleset == "" {
		ruleset = "wrls"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreateBillRun{batches: batches, client: client, ruleset: ruleset, logger: logger}, nil
}

func (s *CreateBillRun) Name() string { return pipeline.StageCreateBillRun }

func (s *CreateBillRun) ErrorCode() batch.ErrorCode { return batch.ErrorFailedToCreateBillRun }

// Execute is idempotent across retries: a batch that already holds an
// external id skips the create call.
func (s *CreateBillRun) Execute(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	b, err := s.batches.AssertStatus(ctx, job.BatchID, batch.StatusQueued, batch.StatusProcessing)
	if err != nil {
		return pipeline.Result{}, err
	}
	if b.Status == batch.StatusQueued {
		if b, err = s.batches.SetStatus(ctx, b.ID, batch.StatusProcessing); err != nil {
			return pipeline.Result{}, err
		}
	}
	if b.ExternalID != "" {
		return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
	}

	billRun, err := s.client.CreateBillRun(ctx, b.Region, s.ruleset)
	if err != nil {
		return pipeline.Result{}, err
	}
	if err := s.batches.SetExternalID(ctx, b.ID, billRun.ID); err != nil {
		return pipeline.Result{}, err
	}
	s.logger.Info("bill run created",
		zap.String("batch_id", b.ID),
		zap.String("bill_run_id", billRun.ID),
		zap.Int("bill_run_number", billRun.Number),
	)
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}
