package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	invoice "abstraction-billing/internal/invoice/domain"
)

// InvoiceRepository is an in-memory invoice store for tests.
type InvoiceRepository struct {
	mu       sync.RWMutex
	invoices map[string]invoice.Invoice
	licences map[string]invoice.InvoiceLicence
}

// NewInvoiceRepository constructs an empty store.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{
		invoices: make(map[string]invoice.Invoice),
		licences: make(map[string]invoice.InvoiceLicence),
	}
}

// Get returns an invoice by id.
func (r *InvoiceRepository) Get(_ context.Context, id string) (*invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, invoice.ErrInvoiceNotFound
	}
	copied := inv
	return &copied, nil
}

// FindByAccount returns the batch's invoice for an account and year.
func (r *InvoiceRepository) FindByAccount(_ context.Context, batchID, invoiceAccountID string, financialYearEnding int) (*invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inv := range r.invoices {
		if inv.BatchID == batchID && inv.InvoiceAccountID == invoiceAccountID && inv.FinancialYearEnding == financialYearEnding {
			copied := inv
			return &copied, nil
		}
	}
	return nil, invoice.ErrInvoiceNotFound
}

// ListByBatch returns invoices of a batch.
func (r *InvoiceRepository) ListByBatch(_ context.Context, batchID string) ([]invoice.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []invoice.Invoice
	for _, inv := range r.invoices {
		if inv.BatchID == batchID {
			result = append(result, inv)
		}
	}
	return result, nil
}

// Save upserts an invoice.
func (r *InvoiceRepository) Save(_ context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.ID] = *inv
	return nil
}

// UpdateTotals writes the financial summary of an invoice.
func (r *InvoiceRepository) UpdateTotals(_ context.Context, id string, netAmount decimal.Decimal, isCredit, isDeMinimis bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return invoice.ErrInvoiceNotFound
	}
	inv.NetAmount = netAmount
	inv.IsCredit = isCredit
	inv.IsDeMinimis = isDeMinimis
	r.invoices[id] = inv
	return nil
}

// SetInvoiceNumber records the issued invoice number.
func (r *InvoiceRepository) SetInvoiceNumber(_ context.Context, id, invoiceNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return invoice.ErrInvoiceNotFound
	}
	inv.InvoiceNumber = invoiceNumber
	r.invoices[id] = inv
	return nil
}

// DeleteByBatch removes a batch's invoices and their licences.
func (r *InvoiceRepository) DeleteByBatch(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, inv := range r.invoices {
		if inv.BatchID != batchID {
			continue
		}
		for lid, il := range r.licences {
			if il.InvoiceID == id {
				delete(r.licences, lid)
			}
		}
		delete(r.invoices, id)
	}
	return nil
}

// GetLicence returns an invoice licence by id.
func (r *InvoiceRepository) GetLicence(_ context.Context, id string) (*invoice.InvoiceLicence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	il, ok := r.licences[id]
	if !ok {
		return nil, invoice.ErrInvoiceLicenceNotFound
	}
	copied := il
	return &copied, nil
}

// FindLicence returns the invoice licence for a licence under an invoice.
func (r *InvoiceRepository) FindLicence(_ context.Context, invoiceID, licenceID string) (*invoice.InvoiceLicence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, il := range r.licences {
		if il.InvoiceID == invoiceID && il.LicenceID == licenceID {
			copied := il
			return &copied, nil
		}
	}
	return nil, invoice.ErrInvoiceLicenceNotFound
}

// ListLicences returns the licences of an invoice.
func (r *InvoiceRepository) ListLicences(_ context.Context, invoiceID string) ([]invoice.InvoiceLicence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []invoice.InvoiceLicence
	for _, il := range r.licences {
		if il.InvoiceID == invoiceID {
			result = append(result, il)
		}
	}
	return result, nil
}

// SaveLicence upserts an invoice licence.
func (r *InvoiceRepository) SaveLicence(_ context.Context, il *invoice.InvoiceLicence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.licences[il.ID] = *il
	return nil
}
