package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
)

// BatchRepository is the Postgres batch store.
type BatchRepository struct {
	db *sql.DB
}

// NewBatchRepository constructs a repository.
func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, region, batch_type, status, error_code, is_summer,
	start_year, end_year, external_id, created_at, updated_at`

// Get fetches a batch by id.
func (r *BatchRepository) Get(ctx context.Context, id string) (*batch.Batch, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("batch repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+batchColumns+`
FROM billing_batches
WHERE id = $1`, id)
	return scanBatch(row)
}

// Save inserts a new batch.
func (r *BatchRepository) Save(ctx context.Context, b *batch.Batch) error {
	if r == nil || r.db == nil {
		return errors.New("batch repo: nil db")
	}
	if b == nil {
		return batch.ErrInvalidBatch
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO billing_batches (
	id, region, batch_type, status, error_code, is_summer,
	start_year, end_year, external_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.Region, string(b.Type), string(b.Status), nullString(string(b.ErrorCode)), b.IsSummer,
		b.StartYear.Ending(), b.EndYear.Ending(), nullString(b.ExternalID), b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// UpdateStatus overwrites status and error code. Last writer wins; the
// status gate upstream prevents two stages racing on the same batch.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status batch.Status, errorCode batch.ErrorCode) error {
	if r == nil || r.db == nil {
		return errors.New("batch repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE billing_batches
SET status = $1, error_code = $2, updated_at = $3
WHERE id = $4`, string(status), nullString(string(errorCode)), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetExternalID records the bill run id assigned by the external authority.
func (r *BatchRepository) SetExternalID(ctx context.Context, id, externalID string) error {
	if r == nil || r.db == nil {
		return errors.New("batch repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE billing_batches
SET external_id = $1, updated_at = $2
WHERE id = $3`, externalID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListLiveByRegion returns queued/processing/review batches for a region.
func (r *BatchRepository) ListLiveByRegion(ctx context.Context, region string) ([]*batch.Batch, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("batch repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+batchColumns+`
FROM billing_batches
WHERE region = $1 AND status IN ('queued','processing','review')
ORDER BY created_at ASC`, region)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*batch.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// Delete removes the batch row. Dependent rows cascade in the schema.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("batch repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM billing_batches WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*batch.Batch, error) {
	var b batch.Batch
	var batchType, status string
	var errorCode, externalID sql.NullString
	var startYear, endYear int
	err := row.Scan(
		&b.ID, &b.Region, &batchType, &status, &errorCode, &b.IsSummer,
		&startYear, &endYear, &externalID, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, batch.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Type = batch.Type(batchType)
	b.Status = batch.Status(status)
	b.ErrorCode = batch.ErrorCode(errorCode.String)
	b.ExternalID = externalID.String
	b.StartYear = charge.FinancialYear(startYear)
	b.EndYear = charge.FinancialYear(endYear)
	return &b, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return batch.ErrBatchNotFound
	}
	return nil
}
