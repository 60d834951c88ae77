package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	charge "abstraction-billing/internal/charge/domain"
)

// ChargeVersionRepository reads licence charge data from Postgres. The
// tables are replicated from the licensing service and treated read-only.
type ChargeVersionRepository struct {
	db *sql.DB
}

// NewChargeVersionRepository constructs a repository.
func NewChargeVersionRepository(db *sql.DB) *ChargeVersionRepository {
	return &ChargeVersionRepository{db: db}
}

const chargeVersionColumns = `cv.id, cv.licence_id, cv.start_date, cv.end_date, cv.status,
	cv.invoice_account_id, cv.invoice_account_number,
	l.licence_number, l.region, l.start_date, l.expiry_date, l.revoked_date, l.lapsed_date,
	l.is_water_undertaker`

// Get returns a charge version with its licence, agreements and elements.
func (r *ChargeVersionRepository) Get(ctx context.Context, id string) (*charge.ChargeVersion, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("charge version repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+chargeVersionColumns+`
FROM charge_versions cv
JOIN licences l ON l.id = cv.licence_id
WHERE cv.id = $1`, id)
	version, err := scanChargeVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, charge.ErrChargeVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attach(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// ListByRegion returns current charge versions touching any of the years.
func (r *ChargeVersionRepository) ListByRegion(ctx context.Context, region string, years []charge.FinancialYear) ([]charge.ChargeVersion, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("charge version repo: nil db")
	}
	if len(years) == 0 {
		return nil, nil
	}
	start := years[0]
	end := years[0]
	for _, year := range years[1:] {
		if year < start {
			start = year
		}
		if year > end {
			end = year
		}
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chargeVersionColumns+`
FROM charge_versions cv
JOIN licences l ON l.id = cv.licence_id
WHERE l.region = $1
	AND cv.status = 'current'
	AND cv.start_date <= $2
	AND (cv.end_date IS NULL OR cv.end_date >= $3)
ORDER BY l.licence_number ASC, cv.start_date ASC`,
		region, end.End(), start.Start())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []charge.ChargeVersion
	for rows.Next() {
		version, err := scanChargeVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *version)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := r.attach(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// attach loads the version's elements and the licence's agreements.
func (r *ChargeVersionRepository) attach(ctx context.Context, version *charge.ChargeVersion) error {
	elements, err := r.listElements(ctx, version.ID)
	if err != nil {
		return err
	}
	version.Elements = elements
	agreements, err := r.listAgreements(ctx, version.Licence.ID)
	if err != nil {
		return err
	}
	version.Licence.Agreements = agreements
	return nil
}

func (r *ChargeVersionRepository) listElements(ctx context.Context, chargeVersionID string) ([]charge.ChargeElement, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT e.id, e.description,
	e.abstraction_start_day, e.abstraction_start_month, e.abstraction_end_day, e.abstraction_end_month,
	e.purpose_code, e.purpose_description, e.purpose_two_part_tariff,
	e.source, e.season, e.loss,
	e.authorised_annual_quantity, e.billable_annual_quantity,
	e.time_limited_start_date, e.time_limited_end_date
FROM charge_elements e
WHERE e.charge_version_id = $1
ORDER BY e.created_at ASC, e.id ASC`, chargeVersionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var elements []charge.ChargeElement
	for rows.Next() {
		var e charge.ChargeElement
		var startDay, startMonth, endDay, endMonth int
		var authorised string
		var billable sql.NullString
		var timeLimitedStart, timeLimitedEnd sql.NullTime
		err := rows.Scan(
			&e.ID, &e.Description,
			&startDay, &startMonth, &endDay, &endMonth,
			&e.Purpose.Code, &e.Purpose.Description, &e.Purpose.IsTwoPartTariff,
			&e.Source, &e.Season, &e.Loss,
			&authorised, &billable,
			&timeLimitedStart, &timeLimitedEnd,
		)
		if err != nil {
			return nil, err
		}
		e.ChargeVersionID = chargeVersionID
		period, err := charge.NewAbstractionPeriod(startDay, time.Month(startMonth), endDay, time.Month(endMonth))
		if err != nil {
			return nil, err
		}
		e.AbstractionPeriod = period
		parsed, err := decimal.NewFromString(authorised)
		if err != nil {
			return nil, err
		}
		e.AuthorisedAnnualQuantity = parsed
		if billable.Valid {
			value, err := decimal.NewFromString(billable.String)
			if err != nil {
				return nil, err
			}
			e.BillableAnnualQuantity = &value
		}
		if timeLimitedStart.Valid && timeLimitedEnd.Valid {
			limit, err := charge.NewDateRange(timeLimitedStart.Time, timeLimitedEnd.Time)
			if err != nil {
				return nil, err
			}
			e.TimeLimited = &limit
		}
		elements = append(elements, e)
	}
	return elements, rows.Err()
}

func (r *ChargeVersionRepository) listAgreements(ctx context.Context, licenceID string) ([]charge.Agreement, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT a.code, a.start_date, a.end_date
FROM licence_agreements a
WHERE a.licence_id = $1
ORDER BY a.start_date ASC`, licenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agreements []charge.Agreement
	for rows.Next() {
		var a charge.Agreement
		var start time.Time
		var end sql.NullTime
		if err := rows.Scan(&a.Code, &start, &end); err != nil {
			return nil, err
		}
		var agreementRange charge.DateRange
		if end.Valid {
			agreementRange, err = charge.NewDateRange(start, end.Time)
		} else {
			agreementRange, err = charge.NewOpenDateRange(start)
		}
		if err != nil {
			return nil, err
		}
		a.Range = agreementRange
		agreements = append(agreements, a)
	}
	return agreements, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChargeVersion(row rowScanner) (*charge.ChargeVersion, error) {
	var v charge.ChargeVersion
	var versionStart time.Time
	var versionEnd sql.NullTime
	var licenceStart time.Time
	var expiry, revoked, lapsed sql.NullTime
	err := row.Scan(
		&v.ID, &v.LicenceID, &versionStart, &versionEnd, &v.Status,
		&v.InvoiceAccountID, &v.InvoiceAccountNumber,
		&v.Licence.LicenceNumber, &v.Licence.Region, &licenceStart,
		&expiry, &revoked, &lapsed, &v.Licence.IsWaterUndertaker,
	)
	if err != nil {
		return nil, err
	}
	v.Licence.ID = v.LicenceID
	v.Licence.StartDate = licenceStart
	if expiry.Valid {
		value := expiry.Time
		v.Licence.ExpiryDate = &value
	}
	if revoked.Valid {
		value := revoked.Time
		v.Licence.RevokedDate = &value
	}
	if lapsed.Valid {
		value := lapsed.Time
		v.Licence.LapsedDate = &value
	}
	var versionRange charge.DateRange
	if versionEnd.Valid {
		versionRange, err = charge.NewDateRange(versionStart, versionEnd.Time)
	} else {
		versionRange, err = charge.NewOpenDateRange(versionStart)
	}
	if err != nil {
		return nil, err
	}
	v.Range = versionRange
	return &v, nil
}
