package memory

import (
	"context"
	"sync"

	transaction "abstraction-billing/internal/transaction/domain"
)

// TransactionRepository is an in-memory transaction store for tests. The
// historical lookup matches on licence number via a caller-registered
// mapping of invoice licence ids.
type TransactionRepository struct {
	mu           sync.RWMutex
	transactions []transaction.Transaction
	licences     map[string]string // invoice licence id -> licence number
}

// NewTransactionRepository constructs an empty store.
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{licences: make(map[string]string)}
}

// RegisterInvoiceLicence associates an invoice licence id with a licence number.
func (r *TransactionRepository) RegisterInvoiceLicence(invoiceLicenceID, licenceNumber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.licences[invoiceLicenceID] = licenceNumber
}

// SaveBatch appends transactions.
func (r *TransactionRepository) SaveBatch(_ context.Context, transactions []transaction.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, transactions...)
	return nil
}

// ListByBatch returns transactions of a batch.
func (r *TransactionRepository) ListByBatch(_ context.Context, batchID string) ([]transaction.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []transaction.Transaction
	for _, t := range r.transactions {
		if t.BatchID == batchID {
			result = append(result, t)
		}
	}
	return result, nil
}

// ListHistoricalByLicence returns charge_created transactions for a licence.
func (r *TransactionRepository) ListHistoricalByLicence(_ context.Context, licenceNumber string, _, _ int, excludeBatchID string) ([]transaction.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []transaction.Transaction
	for _, t := range r.transactions {
		if t.Status != transaction.StatusChargeCreated || t.BatchID == excludeBatchID {
			continue
		}
		if r.licences[t.InvoiceLicenceID] != licenceNumber {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

// UpdateStatus sets status and external id.
func (r *TransactionRepository) UpdateStatus(_ context.Context, id string, status transaction.Status, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.transactions {
		if r.transactions[i].ID == id {
			r.transactions[i].Status = status
			if externalID != "" {
				r.transactions[i].ExternalID = externalID
			}
			return nil
		}
	}
	return transaction.ErrTransactionNotFound
}

// DeleteByBatch removes transactions of a batch.
func (r *TransactionRepository) DeleteByBatch(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.transactions[:0]
	for _, t := range r.transactions {
		if t.BatchID != batchID {
			kept = append(kept, t)
		}
	}
	r.transactions = kept
	return nil
}
