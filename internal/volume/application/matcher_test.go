package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	charge "abstraction-billing/internal/charge/domain"
	returns "abstraction-billing/internal/returns/domain"
	volume "abstraction-billing/internal/volume/domain"
)

type stubVolumeRepo struct {
	byKey map[string]*volume.BillingVolume
	saved []volume.BillingVolume
}

func newStubVolumeRepo() *stubVolumeRepo {
	return &stubVolumeRepo{byKey: map[string]*volume.BillingVolume{}}
}

func (s *stubVolumeRepo) FindByKey(_ context.Context, chargeElementID string, _ int, _ bool) (*volume.BillingVolume, error) {
	if v, ok := s.byKey[chargeElementID]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, volume.ErrVolumeNotFound
}

func (s *stubVolumeRepo) ListByBatch(context.Context, string) ([]volume.BillingVolume, error) {
	return s.saved, nil
}

func (s *stubVolumeRepo) Save(_ context.Context, v *volume.BillingVolume) error {
	s.saved = append(s.saved, *v)
	return nil
}

func (s *stubVolumeRepo) ApproveByBatch(context.Context, string) error { return nil }
func (s *stubVolumeRepo) DeleteByBatch(context.Context, string) error  { return nil }

type stubReturnsReader struct {
	lines []returns.Line
	err   error
}

func (s *stubReturnsReader) ListLines(context.Context, string, charge.DateRange, bool) ([]returns.Line, error) {
	return s.lines, s.err
}

func summerPeriod(t *testing.T) charge.AbstractionPeriod {
	t.Helper()
	// 1 April to 31 October.
	period, err := charge.NewAbstractionPeriod(1, 4, 31, 10)
	if err != nil {
		t.Fatalf("NewAbstractionPeriod: %v", err)
	}
	return period
}

func tptElement(t *testing.T, id string, authorised int64) charge.ChargeElement {
	t.Helper()
	return charge.ChargeElement{
		ID:                       id,
		AbstractionPeriod:        summerPeriod(t),
		Purpose:                  charge.PurposeUse{Code: "400", Description: "Spray Irrigation - Direct", IsTwoPartTariff: true},
		Season:                   charge.SeasonSummer,
		Loss:                     charge.LossHigh,
		AuthorisedAnnualQuantity: decimal.NewFromInt(authorised),
	}
}

func tptVersion(t *testing.T, elements ...charge.ChargeElement) charge.ChargeVersion {
	t.Helper()
	r, err := charge.NewOpenDateRange(charge.Date(2020, 4, 1))
	if err != nil {
		t.Fatalf("NewOpenDateRange: %v", err)
	}
	return charge.ChargeVersion{
		ID:        "cv-1",
		LicenceID: "lic-1",
		Licence: charge.Licence{
			ID:            "lic-1",
			LicenceNumber: "01/123",
			StartDate:     charge.Date(2010, 4, 1),
		},
		Range:    r,
		Status:   "current",
		Elements: elements,
	}
}

func receivedLine(t *testing.T, id string, quantity int64) returns.Line {
	t.Helper()
	r, err := charge.NewDateRange(charge.Date(2020, 4, 1), charge.Date(2020, 10, 31))
	if err != nil {
		t.Fatalf("NewDateRange: %v", err)
	}
	return returns.Line{
		ID:       id,
		ReturnID: "ret-1",
		Range:    r,
		Quantity: decimal.NewFromInt(quantity),
		Status:   returns.StatusCompleted,
		IsSummer: true,
	}
}

func newTestMatcher(t *testing.T, repo *stubVolumeRepo, reader *stubReturnsReader, precedence SeasonPrecedence) *Matcher {
	t.Helper()
	m, err := NewMatcher(repo, reader, precedence, nil)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return m
}

func TestMatchAllocatesWithinCapacity(t *testing.T) {
	repo := newStubVolumeRepo()
	reader := &stubReturnsReader{lines: []returns.Line{receivedLine(t, "line-1", 80)}}
	m := newTestMatcher(t, repo, reader, PrecedenceWRLS)

	version := tptVersion(t, tptElement(t, "el-1", 100))
	volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if len(volumes) != 1 {
		t.Fatalf("expected 1 volume, got %d", len(volumes))
	}
	v := volumes[0]
	if v.TwoPartTariffError {
		t.Fatalf("unexpected error flag: %s", v.ErrorReason)
	}
	if v.Volume == nil || !v.Volume.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected volume 80, got %v", v.Volume)
	}
	if !v.CalculatedVolume.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected calculated volume 80, got %s", v.CalculatedVolume)
	}
	if v.Source != volume.SourceWRLS {
		t.Fatalf("expected wrls source, got %s", v.Source)
	}
}

func TestMatchOverAbstractionFlagsLastElement(t *testing.T) {
	repo := newStubVolumeRepo()
	reader := &stubReturnsReader{lines: []returns.Line{receivedLine(t, "line-1", 250)}}
	m := newTestMatcher(t, repo, reader, PrecedenceWRLS)

	version := tptVersion(t,
		tptElement(t, "el-1", 100),
		tptElement(t, "el-2", 100),
	)
	volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if len(volumes) != 2 {
		t.Fatalf("expected 2 volumes, got %d", len(volumes))
	}

	first := volumes[0]
	if first.TwoPartTariffError {
		t.Fatalf("first element should not carry the error")
	}
	if first.Volume == nil || !first.Volume.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected first volume 100, got %v", first.Volume)
	}

	last := volumes[1]
	if !last.TwoPartTariffError || last.ErrorReason != volume.ErrorOverAbstraction {
		t.Fatalf("expected over-abstraction on last element, got %+v", last)
	}
	if last.Volume != nil {
		t.Fatalf("errored element must have nil volume, got %s", *last.Volume)
	}
	if !last.CalculatedVolume.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected attempted 150 retained, got %s", last.CalculatedVolume)
	}
	if !NeedsReview(volumes) {
		t.Fatalf("over-abstraction must route the batch to review")
	}
}

func TestMatchNoReturns(t *testing.T) {
	repo := newStubVolumeRepo()
	reader := &stubReturnsReader{}
	m := newTestMatcher(t, repo, reader, PrecedenceWRLS)

	version := tptVersion(t, tptElement(t, "el-1", 100))
	volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if len(volumes) != 1 {
		t.Fatalf("expected 1 volume, got %d", len(volumes))
	}
	v := volumes[0]
	if !v.TwoPartTariffError || v.ErrorReason != volume.ErrorNoReturnsForMatching {
		t.Fatalf("expected ERROR_NO_RETURNS_FOR_MATCHING, got %+v", v)
	}
	if v.Volume != nil {
		t.Fatalf("expected nil volume on batch-level error")
	}
}

func TestMatchSomeReturnsDue(t *testing.T) {
	due := receivedLine(t, "line-2", 40)
	due.Status = returns.StatusDue
	repo := newStubVolumeRepo()
	reader := &stubReturnsReader{lines: []returns.Line{receivedLine(t, "line-1", 40), due}}
	m := newTestMatcher(t, repo, reader, PrecedenceWRLS)

	version := tptVersion(t, tptElement(t, "el-1", 100))
	volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if volumes[0].ErrorReason != volume.ErrorSomeReturnsDue {
		t.Fatalf("expected ERROR_SOME_RETURNS_DUE, got %s", volumes[0].ErrorReason)
	}
	if volumes[0].Volume != nil {
		t.Fatalf("expected nil volume while returns are outstanding")
	}
}

func TestMatchKeepsApprovedVolume(t *testing.T) {
	approved := decimal.NewFromInt(55)
	repo := newStubVolumeRepo()
	repo.byKey["el-1"] = &volume.BillingVolume{
		ID:                  "bv-1",
		ChargeElementID:     "el-1",
		FinancialYearEnding: 2021,
		IsSummer:            true,
		CalculatedVolume:    decimal.NewFromInt(90),
		Volume:              &approved,
		Source:              volume.SourceWRLS,
		IsApproved:          true,
	}
	reader := &stubReturnsReader{lines: []returns.Line{receivedLine(t, "line-1", 90)}}
	m := newTestMatcher(t, repo, reader, PrecedenceWRLS)

	version := tptVersion(t, tptElement(t, "el-1", 100))
	volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if len(volumes) != 1 {
		t.Fatalf("expected the approved volume only, got %d", len(volumes))
	}
	if !volumes[0].IsApproved || volumes[0].Volume == nil || !volumes[0].Volume.Equal(approved) {
		t.Fatalf("approved override must survive re-runs, got %+v", volumes[0])
	}
	if len(repo.saved) != 0 {
		t.Fatalf("approved volume must not be rewritten")
	}
}

func TestMatchNALDPrecedenceKeepsLegacyVolume(t *testing.T) {
	legacy := decimal.NewFromInt(42)
	repo := newStubVolumeRepo()
	repo.byKey["el-1"] = &volume.BillingVolume{
		ID:                  "bv-nald",
		ChargeElementID:     "el-1",
		FinancialYearEnding: 2021,
		IsSummer:            true,
		CalculatedVolume:    legacy,
		Volume:              &legacy,
		Source:              volume.SourceNALD,
	}
	reader := &stubReturnsReader{lines: []returns.Line{receivedLine(t, "line-1", 90)}}

	m := newTestMatcher(t, repo, reader, PrecedenceNALD)
	version := tptVersion(t, tptElement(t, "el-1", 100))
	volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if volumes[0].Source != volume.SourceNALD || !volumes[0].Volume.Equal(legacy) {
		t.Fatalf("nald precedence must keep the legacy volume, got %+v", volumes[0])
	}

	m = newTestMatcher(t, newStubVolumeRepo(), reader, PrecedenceWRLS)
	volumes, err = m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if volumes[0].Source != volume.SourceWRLS {
		t.Fatalf("wrls precedence must recompute, got source %s", volumes[0].Source)
	}
}

func TestMatchNeverExceedsMaxAllocatable(t *testing.T) {
	for _, reported := range []int64{0, 10, 99, 100, 101, 500, 10000} {
		repo := newStubVolumeRepo()
		reader := &stubReturnsReader{lines: []returns.Line{receivedLine(t, "line-1", reported)}}
		m := newTestMatcher(t, repo, reader, PrecedenceWRLS)

		version := tptVersion(t, tptElement(t, "el-1", 100))
		volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
		if err != nil {
			t.Fatalf("MatchChargeVersion(%d): %v", reported, err)
		}
		for _, v := range volumes {
			if v.Volume != nil && v.Volume.GreaterThan(decimal.NewFromInt(100)) {
				t.Fatalf("reported %d: volume %s exceeds maximum allocatable", reported, v.Volume)
			}
		}
	}
}

func TestMatchSkipsWrongSeasonElements(t *testing.T) {
	winter := tptElement(t, "el-winter", 100)
	winter.Season = charge.SeasonWinter
	period, err := charge.NewAbstractionPeriod(1, 11, 31, 3)
	if err != nil {
		t.Fatalf("NewAbstractionPeriod: %v", err)
	}
	winter.AbstractionPeriod = period

	repo := newStubVolumeRepo()
	reader := &stubReturnsReader{lines: []returns.Line{receivedLine(t, "line-1", 50)}}
	m := newTestMatcher(t, repo, reader, PrecedenceWRLS)

	version := tptVersion(t, tptElement(t, "el-summer", 100), winter)
	volumes, err := m.MatchChargeVersion(context.Background(), "batch-1", version, charge.FinancialYear(2021), true)
	if err != nil {
		t.Fatalf("MatchChargeVersion: %v", err)
	}
	if len(volumes) != 1 || volumes[0].ChargeElementID != "el-summer" {
		t.Fatalf("expected only the summer element to be matched, got %+v", volumes)
	}
}
