package application

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	invoice "abstraction-billing/internal/invoice/domain"
	txapp "abstraction-billing/internal/transaction/application"
)

// Account identifies the invoice account a charge version bills to.
type Account struct {
	ID     string
	Number string
}

// Total is one invoice's financial summary as reported by the charging
// authority, keyed by invoice account number.
type Total struct {
	InvoiceAccountNumber string
	NetAmount            decimal.Decimal
	IsDeMinimis          bool
}

// Assembler builds and maintains the invoice structure of a batch:
// invoices per account and year, invoice licences per licence, totals and
// invoice numbers from the charging authority.
type Assembler struct {
	invoices invoice.Repository
	ids      txapp.IDFactory
	logger   *zap.Logger
}

// NewAssembler constructs an assembler.
func NewAssembler(invoices invoice.Repository, ids txapp.IDFactory, logger *zap.Logger) (*Assembler, error) {
	if invoices == nil {
		return nil, errors.New("invoice assembler: nil invoice repository")
	}
	if ids == nil {
		ids = txapp.UUIDFactory{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{invoices: invoices, ids: ids, logger: logger}, nil
}

// AttachLicence finds or creates the invoice for the account and year and
// the invoice licence under it, returning the invoice licence id that
// transactions should reference.
func (a *Assembler) AttachLicence(ctx context.Context, batchID string, financialYearEnding int, account Account, licenceID, licenceNumber string) (string, error) {
	inv, err := a.invoices.FindByAccount(ctx, batchID, account.ID, financialYearEnding)
	if errors.Is(err, invoice.ErrInvoiceNotFound) {
		inv = &invoice.Invoice{
			ID:                   a.ids.NewID(),
			BatchID:              batchID,
			InvoiceAccountID:     account.ID,
			InvoiceAccountNumber: account.Number,
			FinancialYearEnding:  financialYearEnding,
		}
		err = a.invoices.Save(ctx, inv)
	}
	if err != nil {
		return "", err
	}

	il, err := a.invoices.FindLicence(ctx, inv.ID, licenceID)
	if errors.Is(err, invoice.ErrInvoiceLicenceNotFound) {
		il = &invoice.InvoiceLicence{
			ID:            a.ids.NewID(),
			InvoiceID:     inv.ID,
			LicenceID:     licenceID,
			LicenceNumber: licenceNumber,
		}
		err = a.invoices.SaveLicence(ctx, il)
	}
	if err != nil {
		return "", err
	}
	return il.ID, nil
}

// EnsureInvoiceLicence re-fetches the invoice context of a historical
// invoice licence and recreates it under the current batch. Supplementary
// credits use this to land on an invoice the batch actually owns.
func (a *Assembler) EnsureInvoiceLicence(ctx context.Context, batchID, historicalInvoiceLicenceID string) (string, error) {
	il, err := a.invoices.GetLicence(ctx, historicalInvoiceLicenceID)
	if err != nil {
		return "", err
	}
	inv, err := a.invoices.Get(ctx, il.InvoiceID)
	if err != nil {
		return "", err
	}
	account := Account{ID: inv.InvoiceAccountID, Number: inv.InvoiceAccountNumber}
	return a.AttachLicence(ctx, batchID, inv.FinancialYearEnding, account, il.LicenceID, il.LicenceNumber)
}

// ApplyTotals writes the charging authority's per-invoice summaries onto
// the batch's invoices. Unknown account numbers are ignored: the authority
// reports zero-value invoices this service never created.
func (a *Assembler) ApplyTotals(ctx context.Context, batchID string, totals []Total) error {
	invoices, err := a.invoices.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	byAccount := make(map[string]invoice.Invoice, len(invoices))
	for _, inv := range invoices {
		byAccount[inv.InvoiceAccountNumber] = inv
	}
	for _, total := range totals {
		inv, ok := byAccount[total.InvoiceAccountNumber]
		if !ok {
			a.logger.Warn("summary for unknown invoice account",
				zap.String("batch_id", batchID),
				zap.String("account_number", total.InvoiceAccountNumber),
			)
			continue
		}
		isCredit := total.NetAmount.IsNegative()
		if err := a.invoices.UpdateTotals(ctx, inv.ID, total.NetAmount, isCredit, total.IsDeMinimis); err != nil {
			return err
		}
	}
	return nil
}

// AssignInvoiceNumbers records the invoice numbers issued at send time,
// keyed by invoice account number.
func (a *Assembler) AssignInvoiceNumbers(ctx context.Context, batchID string, numbers map[string]string) error {
	invoices, err := a.invoices.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		number, ok := numbers[inv.InvoiceAccountNumber]
		if !ok {
			continue
		}
		if err := a.invoices.SetInvoiceNumber(ctx, inv.ID, number); err != nil {
			return err
		}
	}
	return nil
}
