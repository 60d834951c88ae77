package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	volume "abstraction-billing/internal/volume/domain"
)

// BillingVolumeRepository is the Postgres billing volume store.
type BillingVolumeRepository struct {
	db *sql.DB
}

// NewBillingVolumeRepository constructs a repository.
func NewBillingVolumeRepository(db *sql.DB) *BillingVolumeRepository {
	return &BillingVolumeRepository{db: db}
}

const volumeColumns = `id, batch_id, charge_element_id, financial_year_ending, is_summer,
	calculated_volume, volume, two_part_tariff_error, error_reason, source, is_approved`

// FindByKey returns the volume for a charge element, year and season.
func (r *BillingVolumeRepository) FindByKey(ctx context.Context, chargeElementID string, financialYearEnding int, isSummer bool) (*volume.BillingVolume, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("volume repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+volumeColumns+`
FROM billing_volumes
WHERE charge_element_id = $1 AND financial_year_ending = $2 AND is_summer = $3`,
		chargeElementID, financialYearEnding, isSummer)
	v, err := scanVolume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, volume.ErrVolumeNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListByBatch returns all volumes of a batch.
func (r *BillingVolumeRepository) ListByBatch(ctx context.Context, batchID string) ([]volume.BillingVolume, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("volume repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+volumeColumns+`
FROM billing_volumes
WHERE batch_id = $1
ORDER BY charge_element_id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []volume.BillingVolume
	for rows.Next() {
		v, err := scanVolume(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

// Save upserts a volume on its (element, year, season) key.
func (r *BillingVolumeRepository) Save(ctx context.Context, v *volume.BillingVolume) error {
	if r == nil || r.db == nil {
		return errors.New("volume repo: nil db")
	}
	var overridden sql.NullString
	if v.Volume != nil {
		overridden = sql.NullString{String: v.Volume.String(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO billing_volumes (
	id, batch_id, charge_element_id, financial_year_ending, is_summer,
	calculated_volume, volume, two_part_tariff_error, error_reason, source, is_approved, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (charge_element_id, financial_year_ending, is_summer) DO UPDATE SET
	batch_id = EXCLUDED.batch_id,
	calculated_volume = EXCLUDED.calculated_volume,
	volume = EXCLUDED.volume,
	two_part_tariff_error = EXCLUDED.two_part_tariff_error,
	error_reason = EXCLUDED.error_reason,
	source = EXCLUDED.source,
	is_approved = EXCLUDED.is_approved,
	updated_at = EXCLUDED.updated_at`,
		v.ID, v.BatchID, v.ChargeElementID, v.FinancialYearEnding, v.IsSummer,
		v.CalculatedVolume.String(), overridden, v.TwoPartTariffError,
		nullString(string(v.ErrorReason)), string(v.Source), v.IsApproved, time.Now().UTC(),
	)
	return err
}

// ApproveByBatch marks every volume of a batch approved.
func (r *BillingVolumeRepository) ApproveByBatch(ctx context.Context, batchID string) error {
	if r == nil || r.db == nil {
		return errors.New("volume repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE billing_volumes
SET is_approved = TRUE, updated_at = $1
WHERE batch_id = $2`, time.Now().UTC(), batchID)
	return err
}

// DeleteByBatch removes volumes of a batch. Approved volumes survive so
// that manual review decisions are not lost when a batch is rebuilt.
func (r *BillingVolumeRepository) DeleteByBatch(ctx context.Context, batchID string) error {
	if r == nil || r.db == nil {
		return errors.New("volume repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
DELETE FROM billing_volumes
WHERE batch_id = $1 AND is_approved = FALSE`, batchID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVolume(row rowScanner) (*volume.BillingVolume, error) {
	var v volume.BillingVolume
	var calculated string
	var overridden, reason sql.NullString
	var source string
	err := row.Scan(
		&v.ID, &v.BatchID, &v.ChargeElementID, &v.FinancialYearEnding, &v.IsSummer,
		&calculated, &overridden, &v.TwoPartTariffError, &reason, &source, &v.IsApproved,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(calculated)
	if err != nil {
		return nil, err
	}
	v.CalculatedVolume = parsed
	if overridden.Valid {
		value, err := decimal.NewFromString(overridden.String)
		if err != nil {
			return nil, err
		}
		v.Volume = &value
	}
	v.ErrorReason = volume.MatchError(reason.String)
	v.Source = volume.Source(source)
	return &v, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
