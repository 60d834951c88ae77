package application

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
	transaction "abstraction-billing/internal/transaction/domain"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("tx-%03d", s.n)
}

func testBatch(t *testing.T, batchType batch.Type) *batch.Batch {
	t.Helper()
	b, err := batch.New("batch-1", "anglian", batchType, charge.FinancialYear(2020), false, 1, time.Now())
	if err != nil {
		t.Fatalf("new batch: %v", err)
	}
	return b
}

func testVersion(t *testing.T, elements ...charge.ChargeElement) charge.ChargeVersion {
	t.Helper()
	r, err := charge.NewOpenDateRange(charge.Date(2019, time.April, 1))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(elements) == 0 {
		elements = []charge.ChargeElement{{
			ID:                       "element-1",
			AbstractionPeriod:        charge.AllYear(),
			AuthorisedAnnualQuantity: decimal.NewFromInt(100),
			Season:                   charge.SeasonAllYear,
			Loss:                     charge.LossMedium,
		}}
	}
	return charge.ChargeVersion{
		ID:       "cv-1",
		Range:    r,
		Elements: elements,
		Licence: charge.Licence{
			ID:            "lic-1",
			LicenceNumber: "01/123",
			StartDate:     charge.Date(2010, time.January, 1),
		},
	}
}

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(&seqIDs{})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return g
}

func TestAnnualBatchFullYear(t *testing.T) {
	g := newGenerator(t)
	got, err := g.GenerateForYear(testBatch(t, batch.TypeAnnual), charge.FinancialYear(2020), testVersion(t), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected standard + compensation, got %d transactions", len(got))
	}
	for _, tx := range got {
		if tx.BillableDays != 366 || tx.AuthorisedDays != 366 {
			t.Fatalf("expected 366/366 days, got %d/%d", tx.AuthorisedDays, tx.BillableDays)
		}
		if tx.Status != transaction.StatusCandidate {
			t.Fatalf("expected candidate status, got %s", tx.Status)
		}
	}
	if got[0].IsCompensationCharge || !got[1].IsCompensationCharge {
		t.Fatal("expected standard first, compensation second")
	}
}

func TestChargeVersionEndClipsPeriod(t *testing.T) {
	g := newGenerator(t)
	version := testVersion(t)
	r, err := charge.NewDateRange(charge.Date(2019, time.April, 1), charge.Date(2019, time.December, 31))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	version.Range = r

	got, err := g.GenerateForYear(testBatch(t, batch.TypeAnnual), charge.FinancialYear(2020), version, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	for _, tx := range got {
		if !tx.ChargePeriod.End().Equal(charge.Date(2019, time.December, 31)) {
			t.Fatalf("unexpected period end %s", tx.ChargePeriod.End())
		}
		if tx.BillableDays != 275 {
			t.Fatalf("expected 275 billable days, got %d", tx.BillableDays)
		}
	}
}

func TestTimeLimitedElementOutsideYear(t *testing.T) {
	g := newGenerator(t)
	limit, _ := charge.NewDateRange(charge.Date(2000, time.January, 1), charge.Date(2005, time.January, 1))
	version := testVersion(t, charge.ChargeElement{
		ID:                "element-1",
		AbstractionPeriod: charge.AllYear(),
		TimeLimited:       &limit,
	})
	got, err := g.GenerateForYear(testBatch(t, batch.TypeAnnual), charge.FinancialYear(2020), version, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no transactions, got %d", len(got))
	}
}

func TestLapsedLicenceClipsDays(t *testing.T) {
	g := newGenerator(t)
	version := testVersion(t)
	expiry := charge.Date(2019, time.October, 1)
	revoked := charge.Date(2019, time.September, 1)
	lapsed := charge.Date(2019, time.August, 1)
	version.Licence.ExpiryDate = &expiry
	version.Licence.RevokedDate = &revoked
	version.Licence.LapsedDate = &lapsed

	got, err := g.GenerateForYear(testBatch(t, batch.TypeAnnual), charge.FinancialYear(2020), version, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].BillableDays != 123 {
		t.Fatalf("expected 123 billable days to lapse date, got %d", got[0].BillableDays)
	}
}

func TestWaterUndertakerSkipsCompensation(t *testing.T) {
	g := newGenerator(t)
	version := testVersion(t)
	version.Licence.IsWaterUndertaker = true

	got, err := g.GenerateForYear(testBatch(t, batch.TypeAnnual), charge.FinancialYear(2020), version, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected standard only, got %d", len(got))
	}
	if got[0].IsCompensationCharge {
		t.Fatal("water undertaker must not get a compensation charge")
	}
}

func TestTwoPartTariffSupplementaryRequiresAgreementAndPurpose(t *testing.T) {
	g := newGenerator(t)
	s127, _ := charge.NewOpenDateRange(charge.Date(2015, time.January, 1))
	version := testVersion(t, charge.ChargeElement{
		ID:                       "element-1",
		AbstractionPeriod:        charge.AllYear(),
		AuthorisedAnnualQuantity: decimal.NewFromInt(100),
		Purpose:                  charge.PurposeUse{Code: "400", Description: "Spray Irrigation", IsTwoPartTariff: true},
	})
	version.Licence.Agreements = []charge.Agreement{{Code: charge.AgreementTwoPartTariff, Range: s127}}

	volume := decimal.NewFromInt(42)
	got, err := g.GenerateForYear(testBatch(t, batch.TypeTwoPartTariff), charge.FinancialYear(2020), version,
		func(charge.ChargeElement) (decimal.Decimal, bool) { return volume, true })
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one two-part tariff transaction, got %d", len(got))
	}
	tx := got[0]
	if !tx.IsTwoPartTariffSupplementary {
		t.Fatal("expected two-part tariff supplementary flag")
	}
	if !tx.Volume.Equal(volume) {
		t.Fatalf("expected matched volume 42, got %s", tx.Volume)
	}
	if tx.Description != "Second Part Spray Irrigation Charge" {
		t.Fatalf("unexpected description %q", tx.Description)
	}

	// Without the agreement no two-part tariff transaction is generated.
	version.Licence.Agreements = nil
	got, err = g.GenerateForYear(testBatch(t, batch.TypeTwoPartTariff), charge.FinancialYear(2020), version, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected none without S127, got %d", len(got))
	}
}

func TestGenerateIsIdempotentUpToIDs(t *testing.T) {
	version := testVersion(t)
	b := testBatch(t, batch.TypeAnnual)

	first, err := newGenerator(t).GenerateForYear(b, charge.FinancialYear(2020), version, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := newGenerator(t).GenerateForYear(b, charge.FinancialYear(2020), version, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected equal set sizes, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ContentKey() != second[i].ContentKey() {
			t.Fatalf("transaction %d differs between runs", i)
		}
	}
}
