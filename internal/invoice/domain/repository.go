package invoice

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvoiceNotFound is returned when no invoice matches.
var ErrInvoiceNotFound = errors.New("invoice: not found")

// ErrInvoiceLicenceNotFound is returned when no invoice licence matches.
var ErrInvoiceLicenceNotFound = errors.New("invoice: licence not found")

// Repository persists invoices and their licences.
type Repository interface {
	Get(ctx context.Context, id string) (*Invoice, error)
	FindByAccount(ctx context.Context, batchID, invoiceAccountID string, financialYearEnding int) (*Invoice, error)
	ListByBatch(ctx context.Context, batchID string) ([]Invoice, error)
	Save(ctx context.Context, inv *Invoice) error
	UpdateTotals(ctx context.Context, id string, netAmount decimal.Decimal, isCredit, isDeMinimis bool) error
	SetInvoiceNumber(ctx context.Context, id, invoiceNumber string) error
	DeleteByBatch(ctx context.Context, batchID string) error

	GetLicence(ctx context.Context, id string) (*InvoiceLicence, error)
	FindLicence(ctx context.Context, invoiceID, licenceID string) (*InvoiceLicence, error)
	ListLicences(ctx context.Context, invoiceID string) ([]InvoiceLicence, error)
	SaveLicence(ctx context.Context, il *InvoiceLicence) error
}
