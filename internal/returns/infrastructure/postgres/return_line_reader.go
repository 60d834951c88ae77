package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	charge "abstraction-billing/internal/charge/domain"
	returns "abstraction-billing/internal/returns/domain"
)

// ReturnLineReader reads return lines from the replicated returns schema.
// The returns service owns the data; this reader never writes.
type ReturnLineReader struct {
	db *sql.DB
}

// NewReturnLineReader constructs a reader.
func NewReturnLineReader(db *sql.DB) *ReturnLineReader {
	return &ReturnLineReader{db: db}
}

// ListLines returns the lines reported against a licence whose date range
// overlaps the charge period and whose season matches.
func (r *ReturnLineReader) ListLines(ctx context.Context, licenceNumber string, period charge.DateRange, isSummer bool) ([]returns.Line, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("returns reader: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT l.id, l.return_id, l.purpose_code, l.start_date, l.end_date,
	l.quantity, r.status, l.is_summer, l.under_query
FROM return_lines l
JOIN returns r ON r.id = l.return_id
WHERE r.licence_number = $1
  AND l.is_summer = $2
  AND l.start_date <= $3
  AND l.end_date >= $4
  AND r.status <> $5
ORDER BY l.start_date ASC`,
		licenceNumber, isSummer, period.End(), period.Start(), returns.StatusVoid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []returns.Line
	for rows.Next() {
		var (
			line       returns.Line
			start, end time.Time
			quantity   string
		)
		if err := rows.Scan(&line.ID, &line.ReturnID, &line.PurposeCode, &start, &end,
			&quantity, &line.Status, &line.IsSummer, &line.UnderQuery); err != nil {
			return nil, err
		}
		rng, err := charge.NewDateRange(start, end)
		if err != nil {
			return nil, err
		}
		line.Range = rng
		line.Quantity, err = decimal.NewFromString(quantity)
		if err != nil {
			return nil, err
		}
		result = append(result, line)
	}
	return result, rows.Err()
}
