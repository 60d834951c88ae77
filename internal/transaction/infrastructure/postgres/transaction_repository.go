package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	charge "abstraction-billing/internal/charge/domain"
	transaction "abstraction-billing/internal/transaction/domain"
)

// TransactionRepository is the Postgres transaction store.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository constructs a repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, batch_id, invoice_licence_id, charge_element_id,
	period_start, period_end, authorised_days, billable_days, volume, season, loss, source,
	is_credit, is_compensation_charge, is_two_part_tariff_supplementary, is_de_minimis,
	status, agreements, description, external_id`

// transactionColumnsT qualifies every column with the billing_transactions
// alias; joined queries need it because billing_invoice_licences also has id.
const transactionColumnsT = `t.id, t.batch_id, t.invoice_licence_id, t.charge_element_id,
	t.period_start, t.period_end, t.authorised_days, t.billable_days, t.volume, t.season, t.loss, t.source,
	t.is_credit, t.is_compensation_charge, t.is_two_part_tariff_supplementary, t.is_de_minimis,
	t.status, t.agreements, t.description, t.external_id`

// SaveBatch inserts transactions in one database transaction.
func (r *TransactionRepository) SaveBatch(ctx context.Context, transactions []transaction.Transaction) error {
	if r == nil || r.db == nil {
		return errors.New("transaction repo: nil db")
	}
	if len(transactions) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, t := range transactions {
		_, err := tx.ExecContext(ctx, `
INSERT INTO billing_transactions (
	id, batch_id, invoice_licence_id, charge_element_id,
	period_start, period_end, authorised_days, billable_days, volume, season, loss, source,
	is_credit, is_compensation_charge, is_two_part_tariff_supplementary, is_de_minimis,
	status, agreements, description, external_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
			t.ID, t.BatchID, nullString(t.InvoiceLicenceID), t.ChargeElementID,
			t.ChargePeriod.Start(), t.ChargePeriod.End(), t.AuthorisedDays, t.BillableDays,
			t.Volume.String(), t.Season, t.Loss, t.Source,
			t.IsCredit, t.IsCompensationCharge, t.IsTwoPartTariffSupplementary, t.IsDeMinimis,
			string(t.Status), strings.Join(t.Agreements, ","), t.Description, nullString(t.ExternalID), now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListByBatch returns all transactions of a batch.
func (r *TransactionRepository) ListByBatch(ctx context.Context, batchID string) ([]transaction.Transaction, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transaction repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM billing_transactions
WHERE batch_id = $1
ORDER BY created_at ASC, id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListHistoricalByLicence returns previously billed transactions for a
// licence across the year range, excluding the current batch.
func (r *TransactionRepository) ListHistoricalByLicence(ctx context.Context, licenceNumber string, startYear, endYear int, excludeBatchID string) ([]transaction.Transaction, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transaction repo: nil db")
	}
	start := charge.FinancialYear(startYear).Start()
	end := charge.FinancialYear(endYear).End()
	rows, err := r.db.QueryContext(ctx, `
SELECT `+transactionColumnsT+`
FROM billing_transactions t
JOIN billing_invoice_licences il ON il.id = t.invoice_licence_id
WHERE il.licence_number = $1
	AND t.status = 'charge_created'
	AND t.period_start >= $2 AND t.period_end <= $3
	AND t.batch_id <> $4
ORDER BY t.created_at ASC, t.id ASC`, licenceNumber, start, end, excludeBatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// UpdateStatus sets status and, when given, the external transaction id.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status transaction.Status, externalID string) error {
	if r == nil || r.db == nil {
		return errors.New("transaction repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE billing_transactions
SET status = $1, external_id = COALESCE($2, external_id)
WHERE id = $3`, string(status), nullString(externalID), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return transaction.ErrTransactionNotFound
	}
	return nil
}

// DeleteByBatch removes all transactions of a batch.
func (r *TransactionRepository) DeleteByBatch(ctx context.Context, batchID string) error {
	if r == nil || r.db == nil {
		return errors.New("transaction repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM billing_transactions WHERE batch_id = $1`, batchID)
	return err
}

func collectTransactions(rows *sql.Rows) ([]transaction.Transaction, error) {
	var result []transaction.Transaction
	for rows.Next() {
		var t transaction.Transaction
		var invoiceLicenceID, externalID sql.NullString
		var periodStart, periodEnd time.Time
		var volume, status, agreements string
		err := rows.Scan(
			&t.ID, &t.BatchID, &invoiceLicenceID, &t.ChargeElementID,
			&periodStart, &periodEnd, &t.AuthorisedDays, &t.BillableDays,
			&volume, &t.Season, &t.Loss, &t.Source,
			&t.IsCredit, &t.IsCompensationCharge, &t.IsTwoPartTariffSupplementary, &t.IsDeMinimis,
			&status, &agreements, &t.Description, &externalID,
		)
		if err != nil {
			return nil, err
		}
		t.InvoiceLicenceID = invoiceLicenceID.String
		t.ExternalID = externalID.String
		t.Status = transaction.Status(status)
		parsed, err := decimal.NewFromString(volume)
		if err != nil {
			return nil, err
		}
		t.Volume = parsed
		period, err := charge.NewDateRange(periodStart, periodEnd)
		if err != nil {
			return nil, err
		}
		t.ChargePeriod = period
		if agreements != "" {
			t.Agreements = strings.Split(agreements, ",")
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
