package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	charge "abstraction-billing/internal/charge/domain"
)

// Status of a transaction within the pipeline.
type Status string

const (
	StatusCandidate     Status = "candidate"
	StatusChargeCreated Status = "charge_created"
	StatusError         Status = "error"
)

// Transaction is a single financial line generated for a charge element in
// a charge period. Once persisted only status and two-part tariff volume
// corrections may change.
type Transaction struct {
	ID                           string
	BatchID                      string
	InvoiceLicenceID             string
	ChargeElementID              string
	ChargePeriod                 charge.DateRange
	AuthorisedDays               int
	BillableDays                 int
	Volume                       decimal.Decimal
	Season                       string
	Loss                         string
	Source                       string
	IsCredit                     bool
	IsCompensationCharge         bool
	IsTwoPartTariffSupplementary bool
	IsDeMinimis                  bool
	Status                       Status
	Agreements                   []string
	Description                  string
	ExternalID                   string
}

// ContentKey is a stable digest of the chargeable content of a transaction.
// Supplementary reconciliation matches historical and current transactions
// on this key; identifiers and status are deliberately excluded.
func (t Transaction) ContentKey() string {
	agreements := append([]string(nil), t.Agreements...)
	sort.Strings(agreements)
	parts := []string{
		t.ChargeElementID,
		t.ChargePeriod.String(),
		fmt.Sprintf("%d/%d", t.AuthorisedDays, t.BillableDays),
		t.Volume.Abs().String(),
		fmt.Sprintf("%t/%t", t.IsCompensationCharge, t.IsTwoPartTariffSupplementary),
		strings.Join(agreements, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// AsCredit returns a reversal of the transaction: same chargeable content,
// opposite sign, fresh candidate status.
func (t Transaction) AsCredit(id, batchID string) Transaction {
	credit := t
	credit.ID = id
	credit.BatchID = batchID
	credit.InvoiceLicenceID = ""
	credit.IsCredit = !t.IsCredit
	credit.Status = StatusCandidate
	credit.ExternalID = ""
	credit.Agreements = append([]string(nil), t.Agreements...)
	return credit
}
