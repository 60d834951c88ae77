package stages

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
	invapp "abstraction-billing/internal/invoice/application"
	"abstraction-billing/internal/observability/metrics"
	"abstraction-billing/internal/pipeline"
	supapp "abstraction-billing/internal/supplementary/application"
	txapp "abstraction-billing/internal/transaction/application"
	transaction "abstraction-billing/internal/transaction/domain"
	volume "abstraction-billing/internal/volume/domain"
)

// ProcessChargeVersions turns working set rows into persisted candidate
// transactions. A job without a payload fans out into one job per row;
// each fan-out unit processes its row and the last one done advances the
// batch.
type ProcessChargeVersions struct {
	batches        *batchapp.Service
	chargeVersions charge.Repository
	workset        batch.ChargeVersionYearRepository
	generator      *txapp.Generator
	assembler      *invapp.Assembler
	reconciler     *supapp.Reconciler
	transactions   transaction.Repository
	volumes        volume.Repository
	logger         *zap.Logger
}

// NewProcessChargeVersions constructs the stage.
func NewProcessChargeVersions(
	batches *batchapp.Service,
	chargeVersions charge.Repository,
	workset batch.ChargeVersionYearRepository,
	generator *txapp.Generator,
	assembler *invapp.Assembler,
	reconciler *supapp.Reconciler,
	transactions transaction.Repository,
	volumes volume.Repository,
	logger *zap.Logger,
) (*ProcessChargeVersions, error) {
	if batches == nil || chargeVersions == nil || workset == nil || generator == nil ||
		assembler == nil || reconciler == nil || transactions == nil || volumes == nil {
		return nil, errors.New("process charge versions stage: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessChargeVersions{
		batches:        batches,
		chargeVersions: chargeVersions,
		workset:        workset,
		generator:      generator,
		assembler:      assembler,
		reconciler:     reconciler,
		transactions:   transactions,
		volumes:        volumes,
		logger:         logger,
	}, nil
}

func (s *ProcessChargeVersions) Name() string { return pipeline.StageProcessChargeVersions }

func (s *ProcessChargeVersions) ErrorCode() batch.ErrorCode {
	return batch.ErrorFailedToProcessChargeVersions
}

func (s *ProcessChargeVersions) Execute(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	b, err := s.batches.AssertStatus(ctx, job.BatchID, batch.StatusProcessing)
	if err != nil {
		return pipeline.Result{}, err
	}

	rowID, ok := decodeUnit(job.Payload)
	if !ok {
		return s.fanOut(ctx, b)
	}
	return s.processUnit(ctx, b, rowID)
}

func (s *ProcessChargeVersions) fanOut(ctx context.Context, b *batch.Batch) (pipeline.Result, error) {
	rows, err := s.workset.ListByBatch(ctx, b.ID)
	if err != nil {
		return pipeline.Result{}, err
	}
	var payloads []json.RawMessage
	for _, row := range rows {
		if row.Status != batch.ChargeVersionYearProcessing {
			continue
		}
		payloads = append(payloads, encodeUnit(row.ID))
	}
	if len(payloads) == 0 {
		// Everything already processed; advance directly.
		return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
	}
	return pipeline.Result{Outcome: pipeline.OutcomeFanOut, FanOut: payloads}, nil
}

func (s *ProcessChargeVersions) processUnit(ctx context.Context, b *batch.Batch, rowID string) (pipeline.Result, error) {
	row, err := s.workset.Get(ctx, rowID)
	if err != nil {
		return pipeline.Result{}, err
	}
	if row.Status == batch.ChargeVersionYearProcessing {
		if err := s.generateForRow(ctx, b, row); err != nil {
			_ = s.workset.SetStatus(ctx, row.ID, batch.ChargeVersionYearError)
			return pipeline.Result{}, err
		}
		if err := s.workset.SetStatus(ctx, row.ID, batch.ChargeVersionYearReady); err != nil {
			return pipeline.Result{}, err
		}
	}

	remaining, err := s.workset.CountRemaining(ctx, b.ID)
	if err != nil {
		return pipeline.Result{}, err
	}
	if remaining > 0 {
		return pipeline.Result{Outcome: pipeline.OutcomeWaiting}, nil
	}
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}

func (s *ProcessChargeVersions) generateForRow(ctx context.Context, b *batch.Batch, row *batch.ChargeVersionYear) error {
	version, err := s.chargeVersions.Get(ctx, row.ChargeVersionID)
	if err != nil {
		return err
	}

	// Approved billing volumes override the authorised quantity on
	// two-part tariff supplementary transactions.
	tptVolume := func(element charge.ChargeElement) (decimal.Decimal, bool) {
		v, err := s.volumes.FindByKey(ctx, element.ID, row.FinancialYear.Ending(), b.IsSummer)
		if err != nil || v.Volume == nil {
			return decimal.Decimal{}, false
		}
		return *v.Volume, true
	}

	candidates, err := s.generator.GenerateForYear(b, row.FinancialYear, *version, tptVolume)
	if err != nil {
		return err
	}

	account := invapp.Account{ID: version.InvoiceAccountID, Number: version.InvoiceAccountNumber}
	invoiceLicenceID, err := s.assembler.AttachLicence(ctx, b.ID, row.FinancialYear.Ending(), account, version.LicenceID, version.Licence.LicenceNumber)
	if err != nil {
		return err
	}
	for i := range candidates {
		candidates[i].InvoiceLicenceID = invoiceLicenceID
	}

	billable, err := s.reconciler.Reconcile(ctx, b, version.Licence.LicenceNumber, candidates)
	if err != nil {
		return err
	}
	if err := s.transactions.SaveBatch(ctx, billable); err != nil {
		return err
	}

	countTransactions(billable)
	s.logger.Debug("charge version year processed",
		zap.String("batch_id", b.ID),
		zap.String("charge_version_id", version.ID),
		zap.Int("financial_year_ending", row.FinancialYear.Ending()),
		zap.Int("transactions", len(billable)),
	)
	return nil
}

func countTransactions(transactions []transaction.Transaction) {
	counts := map[string]int{}
	for _, t := range transactions {
		switch {
		case t.IsCredit:
			counts["credit"]++
		case t.IsCompensationCharge:
			counts["compensation"]++
		case t.IsTwoPartTariffSupplementary:
			counts["two_part_tariff_supplementary"]++
		default:
			counts["standard"]++
		}
	}
	for chargeType, count := range counts {
		metrics.AddTransactionsGenerated(chargeType, count)
	}
}
