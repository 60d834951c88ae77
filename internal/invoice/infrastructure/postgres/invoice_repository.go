package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	invoice "abstraction-billing/internal/invoice/domain"
)

// InvoiceRepository is the Postgres invoice store.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, batch_id, invoice_account_id, invoice_account_number,
	financial_year_ending, net_amount, is_credit, is_de_minimis, invoice_number`

// Get returns an invoice by id.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM billing_invoices
WHERE id = $1`, id)
	return scanInvoice(row)
}

// FindByAccount returns the batch's invoice for an account and year.
func (r *InvoiceRepository) FindByAccount(ctx context.Context, batchID, invoiceAccountID string, financialYearEnding int) (*invoice.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM billing_invoices
WHERE batch_id = $1 AND invoice_account_id = $2 AND financial_year_ending = $3`,
		batchID, invoiceAccountID, financialYearEnding)
	return scanInvoice(row)
}

// ListByBatch returns invoices of a batch.
func (r *InvoiceRepository) ListByBatch(ctx context.Context, batchID string) ([]invoice.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+invoiceColumns+`
FROM billing_invoices
WHERE batch_id = $1
ORDER BY invoice_account_number ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}
	return result, rows.Err()
}

// Save inserts an invoice.
func (r *InvoiceRepository) Save(ctx context.Context, inv *invoice.Invoice) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO billing_invoices (
	id, batch_id, invoice_account_id, invoice_account_number,
	financial_year_ending, net_amount, is_credit, is_de_minimis, invoice_number, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		inv.ID, inv.BatchID, inv.InvoiceAccountID, inv.InvoiceAccountNumber,
		inv.FinancialYearEnding, inv.NetAmount.String(), inv.IsCredit, inv.IsDeMinimis,
		nullString(inv.InvoiceNumber), time.Now().UTC(),
	)
	return err
}

// UpdateTotals writes the financial summary of an invoice.
func (r *InvoiceRepository) UpdateTotals(ctx context.Context, id string, netAmount decimal.Decimal, isCredit, isDeMinimis bool) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE billing_invoices
SET net_amount = $1, is_credit = $2, is_de_minimis = $3
WHERE id = $4`, netAmount.String(), isCredit, isDeMinimis, id)
	if err != nil {
		return err
	}
	return requireRow(result, invoice.ErrInvoiceNotFound)
}

// SetInvoiceNumber records the issued invoice number.
func (r *InvoiceRepository) SetInvoiceNumber(ctx context.Context, id, invoiceNumber string) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE billing_invoices
SET invoice_number = $1
WHERE id = $2`, invoiceNumber, id)
	if err != nil {
		return err
	}
	return requireRow(result, invoice.ErrInvoiceNotFound)
}

// DeleteByBatch removes a batch's invoices and their licences.
func (r *InvoiceRepository) DeleteByBatch(ctx context.Context, batchID string) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
DELETE FROM billing_invoice_licences
WHERE invoice_id IN (SELECT id FROM billing_invoices WHERE batch_id = $1)`, batchID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM billing_invoices WHERE batch_id = $1`, batchID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetLicence returns an invoice licence by id.
func (r *InvoiceRepository) GetLicence(ctx context.Context, id string) (*invoice.InvoiceLicence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, invoice_id, licence_id, licence_number
FROM billing_invoice_licences
WHERE id = $1`, id)
	return scanInvoiceLicence(row)
}

// FindLicence returns the invoice licence for a licence under an invoice.
func (r *InvoiceRepository) FindLicence(ctx context.Context, invoiceID, licenceID string) (*invoice.InvoiceLicence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, invoice_id, licence_id, licence_number
FROM billing_invoice_licences
WHERE invoice_id = $1 AND licence_id = $2`, invoiceID, licenceID)
	return scanInvoiceLicence(row)
}

// ListLicences returns the licences of an invoice.
func (r *InvoiceRepository) ListLicences(ctx context.Context, invoiceID string) ([]invoice.InvoiceLicence, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, invoice_id, licence_id, licence_number
FROM billing_invoice_licences
WHERE invoice_id = $1
ORDER BY licence_number ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []invoice.InvoiceLicence
	for rows.Next() {
		il, err := scanInvoiceLicence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *il)
	}
	return result, rows.Err()
}

// SaveLicence inserts an invoice licence.
func (r *InvoiceRepository) SaveLicence(ctx context.Context, il *invoice.InvoiceLicence) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO billing_invoice_licences (id, invoice_id, licence_id, licence_number)
VALUES ($1,$2,$3,$4)`, il.ID, il.InvoiceID, il.LicenceID, il.LicenceNumber)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	var netAmount string
	var invoiceNumber sql.NullString
	err := row.Scan(
		&inv.ID, &inv.BatchID, &inv.InvoiceAccountID, &inv.InvoiceAccountNumber,
		&inv.FinancialYearEnding, &netAmount, &inv.IsCredit, &inv.IsDeMinimis, &invoiceNumber,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(netAmount)
	if err != nil {
		return nil, err
	}
	inv.NetAmount = parsed
	inv.InvoiceNumber = invoiceNumber.String
	return &inv, nil
}

func scanInvoiceLicence(row rowScanner) (*invoice.InvoiceLicence, error) {
	var il invoice.InvoiceLicence
	err := row.Scan(&il.ID, &il.InvoiceID, &il.LicenceID, &il.LicenceNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.ErrInvoiceLicenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &il, nil
}

func requireRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
