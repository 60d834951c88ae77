package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
)

// ChargeVersionYearRepository is the Postgres working set store.
type ChargeVersionYearRepository struct {
	db *sql.DB
}

// NewChargeVersionYearRepository constructs a repository.
func NewChargeVersionYearRepository(db *sql.DB) *ChargeVersionYearRepository {
	return &ChargeVersionYearRepository{db: db}
}

// SaveAll inserts working set rows in one database transaction.
func (r *ChargeVersionYearRepository) SaveAll(ctx context.Context, rows []batch.ChargeVersionYear) error {
	if r == nil || r.db == nil {
		return errors.New("charge version year repo: nil db")
	}
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, row := range rows {
		_, err := tx.ExecContext(ctx, `
INSERT INTO billing_batch_charge_version_years (id, batch_id, charge_version_id, financial_year_ending, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (batch_id, charge_version_id, financial_year_ending) DO NOTHING`,
			row.ID, row.BatchID, row.ChargeVersionID, row.FinancialYear.Ending(), row.Status, now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Get returns a working set row by id.
func (r *ChargeVersionYearRepository) Get(ctx context.Context, id string) (*batch.ChargeVersionYear, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("charge version year repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, batch_id, charge_version_id, financial_year_ending, status
FROM billing_batch_charge_version_years
WHERE id = $1`, id)
	return scanChargeVersionYear(row)
}

// ListByBatch returns the working set of a batch.
func (r *ChargeVersionYearRepository) ListByBatch(ctx context.Context, batchID string) ([]batch.ChargeVersionYear, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("charge version year repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, batch_id, charge_version_id, financial_year_ending, status
FROM billing_batch_charge_version_years
WHERE batch_id = $1
ORDER BY financial_year_ending ASC, charge_version_id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []batch.ChargeVersionYear
	for rows.Next() {
		row, err := scanChargeVersionYear(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

// SetStatus updates one row's status.
func (r *ChargeVersionYearRepository) SetStatus(ctx context.Context, id, status string) error {
	if r == nil || r.db == nil {
		return errors.New("charge version year repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE billing_batch_charge_version_years
SET status = $1
WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return batch.ErrChargeVersionYearNotFound
	}
	return nil
}

// CountRemaining counts rows still in processing.
func (r *ChargeVersionYearRepository) CountRemaining(ctx context.Context, batchID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("charge version year repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM billing_batch_charge_version_years
WHERE batch_id = $1 AND status = $2`, batchID, batch.ChargeVersionYearProcessing).Scan(&count)
	return count, err
}

// DeleteByBatch removes the working set of a batch.
func (r *ChargeVersionYearRepository) DeleteByBatch(ctx context.Context, batchID string) error {
	if r == nil || r.db == nil {
		return errors.New("charge version year repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM billing_batch_charge_version_years WHERE batch_id = $1`, batchID)
	return err
}

type cvyScanner interface {
	Scan(dest ...any) error
}

func scanChargeVersionYear(row cvyScanner) (*batch.ChargeVersionYear, error) {
	var result batch.ChargeVersionYear
	var yearEnding int
	err := row.Scan(&result.ID, &result.BatchID, &result.ChargeVersionID, &yearEnding, &result.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, batch.ErrChargeVersionYearNotFound
	}
	if err != nil {
		return nil, err
	}
	result.FinancialYear = charge.FinancialYear(yearEnding)
	return &result, nil
}
