package stages

import (
	"context"
	"errors"

	"go.uber.org/zap"

	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	"abstraction-billing/internal/chargemodule"
	invoice "abstraction-billing/internal/invoice/domain"
	"abstraction-billing/internal/observability/metrics"
	"abstraction-billing/internal/pipeline"
	transaction "abstraction-billing/internal/transaction/domain"
)

// PrepareTransactions submits candidate transactions to the charging
// authority and asks it to generate the bill run. A batch with nothing to
// bill is closed out as empty and its remote bill run deleted.
type PrepareTransactions struct {
	batches      *batchapp.Service
	transactions transaction.Repository
	invoices     invoice.Repository
	client       BillRunClient
	logger       *zap.Logger
}

// NewPrepareTransactions constructs the stage.
func NewPrepareTransactions(
	batches *batchapp.Service,
	transactions transaction.Repository,
	invoices invoice.Repository,
	client BillRunClient,
	logger *zap.Logger,
) (*PrepareTransactions, error) {
	if batches == nil || transactions == nil || invoices == nil || client == nil {
		return nil, errors.New("prepare transactions stage: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrepareTransactions{
		batches:      batches,
		transactions: transactions,
		invoices:     invoices,
		client:       client,
		logger:       logger,
	}, nil
}

func (s *PrepareTransactions) Name() string { return pipeline.StagePrepareTransactions }

func (s *PrepareTransactions) ErrorCode() batch.ErrorCode {
	return batch.ErrorFailedToProcessChargeVersions
}

// Execute is safe to retry: transactions already pushed to the authority
// carry status charge_created and are skipped on the next attempt.
func (s *PrepareTransactions) Execute(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	b, err := s.batches.AssertStatus(ctx, job.BatchID, batch.StatusProcessing)
	if err != nil {
		return pipeline.Result{}, err
	}

	all, err := s.transactions.ListByBatch(ctx, b.ID)
	if err != nil {
		return pipeline.Result{}, err
	}
	if len(all) == 0 {
		return s.closeEmpty(ctx, b)
	}

	lookup := newBillingContextLookup(s.invoices)
	pushed := 0
	for _, t := range all {
		if t.Status != transaction.StatusCandidate {
			continue
		}
		bc, err := lookup.resolve(ctx, t.InvoiceLicenceID)
		if err != nil {
			return pipeline.Result{}, err
		}
		externalID, err := s.client.CreateTransaction(ctx, b.ExternalID, wireTransaction(t, bc))
		if err != nil {
			return pipeline.Result{}, err
		}
		if err := s.transactions.UpdateStatus(ctx, t.ID, transaction.StatusChargeCreated, externalID); err != nil {
			return pipeline.Result{}, err
		}
		pushed++
	}

	if err := s.client.Generate(ctx, b.ExternalID); err != nil {
		return pipeline.Result{}, err
	}
	s.logger.Info("bill run generation requested",
		zap.String("batch_id", b.ID),
		zap.String("bill_run_id", b.ExternalID),
		zap.Int("transactions_pushed", pushed),
	)
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}

func (s *PrepareTransactions) closeEmpty(ctx context.Context, b *batch.Batch) (pipeline.Result, error) {
	// Best effort: an orphaned remote bill run is harmless, an empty
	// batch stuck in processing is not.
	if b.ExternalID != "" {
		if err := s.client.Delete(ctx, b.ExternalID); err != nil {
			s.logger.Warn("failed to delete empty bill run",
				zap.String("batch_id", b.ID),
				zap.String("bill_run_id", b.ExternalID),
				zap.Error(err),
			)
		}
	}
	if _, err := s.batches.SetStatus(ctx, b.ID, batch.StatusEmpty); err != nil {
		return pipeline.Result{}, err
	}
	metrics.IncBatchTransition(string(batch.StatusEmpty))
	return pipeline.Result{Outcome: pipeline.OutcomeEmpty}, nil
}

// billingContext is the invoice account and licence a transaction bills to.
type billingContext struct {
	accountNumber string
	licenceNumber string
}

// billingContextLookup caches invoice licence resolution; batches routinely
// carry many transactions per invoice licence.
type billingContextLookup struct {
	invoices invoice.Repository
	cache    map[string]billingContext
}

func newBillingContextLookup(invoices invoice.Repository) *billingContextLookup {
	return &billingContextLookup{invoices: invoices, cache: map[string]billingContext{}}
}

func (l *billingContextLookup) resolve(ctx context.Context, invoiceLicenceID string) (billingContext, error) {
	if bc, ok := l.cache[invoiceLicenceID]; ok {
		return bc, nil
	}
	licence, err := l.invoices.GetLicence(ctx, invoiceLicenceID)
	if err != nil {
		return billingContext{}, err
	}
	inv, err := l.invoices.Get(ctx, licence.InvoiceID)
	if err != nil {
		return billingContext{}, err
	}
	bc := billingContext{accountNumber: inv.InvoiceAccountNumber, licenceNumber: licence.LicenceNumber}
	l.cache[invoiceLicenceID] = bc
	return bc, nil
}

func wireTransaction(t transaction.Transaction, bc billingContext) chargemodule.Transaction {
	return chargemodule.Transaction{
		ClientID:           t.ID,
		LicenceNumber:      bc.licenceNumber,
		AccountNumber:      bc.accountNumber,
		PeriodStart:        t.ChargePeriod.Start(),
		PeriodEnd:          t.ChargePeriod.End(),
		AuthorisedDays:     t.AuthorisedDays,
		BillableDays:       t.BillableDays,
		Volume:             t.Volume.String(),
		Season:             t.Season,
		Loss:               t.Loss,
		Source:             t.Source,
		Credit:             t.IsCredit,
		CompensationCharge: t.IsCompensationCharge,
		TwoPartTariff:      t.IsTwoPartTariffSupplementary,
		Description:        t.Description,
	}
}
