package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	batch "abstraction-billing/internal/batch/domain"
	txapp "abstraction-billing/internal/transaction/application"
	transaction "abstraction-billing/internal/transaction/domain"
)

// InvoiceLicenceResolver attaches credits to an invoice licence in the
// current batch. Historical transactions may belong to invoices outside the
// batch's working set, so their invoice context has to be re-fetched and,
// when missing, recreated under the current batch.
type InvoiceLicenceResolver interface {
	EnsureInvoiceLicence(ctx context.Context, batchID, historicalInvoiceLicenceID string) (string, error)
}

// Reconciler diffs the transactions newly generated for a supplementary
// batch against what was already billed, dropping re-charges and crediting
// anything billed before that no longer applies.
type Reconciler struct {
	transactions transaction.Repository
	invoices     InvoiceLicenceResolver
	ids          txapp.IDFactory
	logger       *zap.Logger
}

// NewReconciler constructs a reconciler.
func NewReconciler(transactions transaction.Repository, invoices InvoiceLicenceResolver, ids txapp.IDFactory, logger *zap.Logger) (*Reconciler, error) {
	if transactions == nil {
		return nil, errors.New("supplementary reconciler: nil transaction repository")
	}
	if invoices == nil {
		return nil, errors.New("supplementary reconciler: nil invoice licence resolver")
	}
	if ids == nil {
		ids = txapp.UUIDFactory{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{transactions: transactions, invoices: invoices, ids: ids, logger: logger}, nil
}

// Reconcile returns the billable transaction set for one licence of a
// supplementary batch: candidates minus those already billed, plus credits
// reversing historical transactions with no current counterpart. De-minimis
// historical transactions are never credited. Non-supplementary batches
// pass through unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, b *batch.Batch, licenceNumber string, candidates []transaction.Transaction) ([]transaction.Transaction, error) {
	if b == nil {
		return nil, errors.New("supplementary reconciler: nil batch")
	}
	if b.Type != batch.TypeSupplementary {
		return candidates, nil
	}

	historical, err := r.transactions.ListHistoricalByLicence(ctx, licenceNumber, b.StartYear.Ending(), b.EndYear.Ending(), b.ID)
	if err != nil {
		return nil, err
	}

	// Multiset of historical content keys: each occurrence cancels at most
	// one candidate with the same chargeable content.
	unmatched := make(map[string]int, len(historical))
	for _, h := range historical {
		unmatched[h.ContentKey()]++
	}

	var result []transaction.Transaction
	for _, candidate := range candidates {
		key := candidate.ContentKey()
		if unmatched[key] > 0 {
			unmatched[key]--
			continue
		}
		result = append(result, candidate)
	}

	credits := 0
	for _, h := range historical {
		key := h.ContentKey()
		if unmatched[key] <= 0 {
			continue
		}
		unmatched[key]--
		if h.IsDeMinimis {
			continue
		}
		credit := h.AsCredit(r.ids.NewID(), b.ID)
		invoiceLicenceID, err := r.invoices.EnsureInvoiceLicence(ctx, b.ID, h.InvoiceLicenceID)
		if err != nil {
			return nil, err
		}
		credit.InvoiceLicenceID = invoiceLicenceID
		result = append(result, credit)
		credits++
	}

	r.logger.Info("supplementary reconciliation complete",
		zap.String("batch_id", b.ID),
		zap.String("licence", licenceNumber),
		zap.Int("candidates", len(candidates)),
		zap.Int("historical", len(historical)),
		zap.Int("billable", len(result)),
		zap.Int("credits", credits),
	)
	return result, nil
}
