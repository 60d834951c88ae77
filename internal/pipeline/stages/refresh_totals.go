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

// RefreshTotals polls the charging authority until the bill run's charges
// are calculated, then copies the per-invoice totals onto the batch's
// invoices and marks the batch ready for review and sending.
type RefreshTotals struct {
	batches   *batchapp.Service
	assembler *invapp.Assembler
	client    BillRunClient
	logger    *zap.Logger
}

// NewRefreshTotals constructs the stage.
func NewRefreshTotals(batches *batchapp.Service, assembler *invapp.Assembler, client BillRunClient, logger *zap.Logger) (*RefreshTotals, error) {
	if batches == nil || assembler == nil || client == nil {
		return nil, errors.New("refresh totals stage: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshTotals{batches: batches, assembler: assembler, client: client, logger: logger}, nil
}

func (s *RefreshTotals) Name() string { return pipeline.StageRefreshTotals }

func (s *RefreshTotals) ErrorCode() batch.ErrorCode { return batch.ErrorFailedToGetBillRunSummary }

func (s *RefreshTotals) Execute(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	b, err := s.batches.AssertStatus(ctx, job.BatchID, batch.StatusProcessing)
	if err != nil {
		return pipeline.Result{}, err
	}

	summary, err := s.client.GetSummary(ctx, b.ExternalID)
	if err != nil {
		return pipeline.Result{}, err
	}
	if !summary.Generated() {
		s.logger.Debug("bill run still generating",
			zap.String("batch_id", b.ID),
			zap.String("bill_run_id", b.ExternalID),
			zap.String("status", summary.Status),
		)
		return pipeline.Result{Outcome: pipeline.OutcomePending}, nil
	}

	totals := make([]invapp.Total, 0, len(summary.Invoices))
	for _, inv := range summary.Invoices {
		totals = append(totals, invapp.Total{
			InvoiceAccountNumber: inv.AccountNumber,
			NetAmount:            inv.NetAmount,
			IsDeMinimis:          inv.DeMinimis,
		})
	}
	if err := s.assembler.ApplyTotals(ctx, b.ID, totals); err != nil {
		return pipeline.Result{}, err
	}

	if _, err := s.batches.SetStatus(ctx, b.ID, batch.StatusReady); err != nil {
		return pipeline.Result{}, err
	}
	metrics.IncBatchTransition(string(batch.StatusReady))
	s.logger.Info("batch ready",
		zap.String("batch_id", b.ID),
		zap.String("bill_run_id", b.ExternalID),
		zap.Int("invoices", summary.InvoiceCount),
		zap.String("net_total", summary.NetAmount.String()),
	)
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}
