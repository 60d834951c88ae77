package stages

import (
	"context"
	"errors"

	"go.uber.org/zap"

	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	invapp "abstraction-billing/internal/invoice/application"
	"abstraction-billing/internal/observability/metrics"
	"abstraction-billing/internal/pipeline"
)

// SendBatch approves and sends the bill run at the charging authority,
// then records the invoice numbers the authority assigned.
type SendBatch struct {
	batches   *batchapp.Service
	assembler *invapp.Assembler
	client    BillRunClient
	logger    *zap.Logger
}

// NewSendBatch constructs the stage.
func NewSendBatch(batches *batchapp.Service, assembler *invapp.Assembler, client BillRunClient, logger *zap.Logger) (*SendBatch, error) {
	if batches == nil || assembler == nil || client == nil {
		return nil, errors.New("send batch stage: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendBatch{batches: batches, assembler: assembler, client: client, logger: logger}, nil
}

func (s *SendBatch) Name() string { return pipeline.StageSendBatch }

func (s *SendBatch) ErrorCode() batch.ErrorCode { return batch.ErrorFailedToGetBillRunSummary }

// Execute assumes the orchestrator has already moved the batch to sending;
// approve and send are idempotent at the authority, so a retried job that
// failed between the calls converges.
func (s *SendBatch) Execute(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	b, err := s.batches.AssertStatus(ctx, job.BatchID, batch.StatusSending)
	if err != nil {
		return pipeline.Result{}, err
	}

	if err := s.client.Approve(ctx, b.ExternalID); err != nil {
		return pipeline.Result{}, err
	}
	if err := s.client.Send(ctx, b.ExternalID); err != nil {
		return pipeline.Result{}, err
	}

	// The sent bill run carries the assigned invoice numbers as
	// per-invoice transaction references.
	summary, err := s.client.GetSummary(ctx, b.ExternalID)
	if err != nil {
		return pipeline.Result{}, err
	}
	numbers := make(map[string]string, len(summary.Invoices))
	for _, inv := range summary.Invoices {
		if inv.TransactionReference != "" {
			numbers[inv.AccountNumber] = inv.TransactionReference
		}
	}
	if err := s.assembler.AssignInvoiceNumbers(ctx, b.ID, numbers); err != nil {
		return pipeline.Result{}, err
	}

	if _, err := s.batches.SetStatus(ctx, b.ID, batch.StatusSent); err != nil {
		return pipeline.Result{}, err
	}
	metrics.IncBatchTransition(string(batch.StatusSent))
	s.logger.Info("batch sent",
		zap.String("batch_id", b.ID),
		zap.String("bill_run_id", b.ExternalID),
		zap.Int("invoices", len(summary.Invoices)),
	)
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}
