package returns

import (
	"context"

	"github.com/shopspring/decimal"

	charge "abstraction-billing/internal/charge/domain"
)

// Line status values as reported by the returns collaborator.
const (
	StatusDue       = "due"
	StatusReceived  = "received"
	StatusCompleted = "completed"
	StatusVoid      = "void"
)

// Line is a single measured or estimated abstraction volume reported
// against a licence for a date range.
type Line struct {
	ID          string
	ReturnID    string
	PurposeCode string
	Range       charge.DateRange
	Quantity    decimal.Decimal
	Status      string
	IsSummer    bool
	UnderQuery  bool
}

// IsDue reports whether the return the line belongs to is still outstanding.
func (l Line) IsDue() bool { return l.Status == StatusDue }

// Reader loads return lines for matching. The returns service itself is an
// external collaborator; the engine only depends on this read model.
type Reader interface {
	ListLines(ctx context.Context, licenceNumber string, period charge.DateRange, isSummer bool) ([]Line, error)
}
