package batch

import (
	"errors"
	"testing"
	"time"

	charge "abstraction-billing/internal/charge/domain"
)

func newTestBatch(t *testing.T, batchType Type) *Batch {
	t.Helper()
	b, err := New("batch-1", "anglian", batchType, charge.FinancialYear(2020), false, 1, time.Now())
	if err != nil {
		t.Fatalf("new batch: %v", err)
	}
	return b
}

func TestNewBatchStartsQueued(t *testing.T) {
	b := newTestBatch(t, TypeAnnual)
	if b.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", b.Status)
	}
	if b.StartYear != b.EndYear {
		t.Fatal("annual batch must cover a single year")
	}
}

func TestSupplementaryBatchSpansYears(t *testing.T) {
	b, err := New("batch-2", "anglian", TypeSupplementary, charge.FinancialYear(2021), false, 6, time.Now())
	if err != nil {
		t.Fatalf("new batch: %v", err)
	}
	years := b.Years()
	if len(years) != 6 {
		t.Fatalf("expected 6 years, got %d", len(years))
	}
	if years[0] != charge.FinancialYear(2016) || years[5] != charge.FinancialYear(2021) {
		t.Fatalf("unexpected span %v", years)
	}
	if !b.OverlapsYears(charge.FinancialYear(2016), charge.FinancialYear(2016)) {
		t.Fatal("expected overlap with first year")
	}
	if b.OverlapsYears(charge.FinancialYear(2022), charge.FinancialYear(2025)) {
		t.Fatal("expected no overlap with later years")
	}
}

func TestLifecycleEdges(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusQueued, StatusReady, false},
		{StatusProcessing, StatusReview, true},
		{StatusProcessing, StatusReady, true},
		{StatusProcessing, StatusEmpty, true},
		{StatusReview, StatusProcessing, true},
		{StatusReview, StatusReady, true},
		{StatusReady, StatusSending, true},
		{StatusSending, StatusSent, true},
		{StatusSent, StatusSending, false},
		{StatusReady, StatusProcessing, false},
		{StatusEmpty, StatusSending, false},
		{StatusSending, StatusError, true},
		{StatusSent, StatusError, false},
		{StatusError, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestAssertStatusFailsBeforeMutation(t *testing.T) {
	b := newTestBatch(t, TypeAnnual)
	err := b.AssertStatus(StatusProcessing, StatusReview)
	if err == nil {
		t.Fatal("expected status error")
	}
	var statusErr *WrongStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected WrongStatusError, got %T", err)
	}
	if statusErr.Actual != StatusQueued {
		t.Fatalf("unexpected actual status %s", statusErr.Actual)
	}
	if b.Status != StatusQueued {
		t.Fatal("assert must not mutate the batch")
	}
	if err := b.AssertStatus(StatusQueued); err != nil {
		t.Fatalf("expected queued assert to pass: %v", err)
	}
}

func TestSetStatusRejectsIllegalEdge(t *testing.T) {
	b := newTestBatch(t, TypeAnnual)
	if err := b.SetStatus(StatusSent, time.Now()); err == nil {
		t.Fatal("expected error jumping queued -> sent")
	}
	if b.Status != StatusQueued {
		t.Fatal("failed transition must not mutate status")
	}
	if err := b.SetStatus(StatusProcessing, time.Now()); err != nil {
		t.Fatalf("queued -> processing: %v", err)
	}
}

func TestSetErrorStatus(t *testing.T) {
	b := newTestBatch(t, TypeTwoPartTariff)
	if err := b.SetErrorStatus(ErrorFailedToProcessTwoPartTariff, time.Now()); err != nil {
		t.Fatalf("set error status: %v", err)
	}
	if b.Status != StatusError || b.ErrorCode != ErrorFailedToProcessTwoPartTariff {
		t.Fatalf("unexpected state %s/%s", b.Status, b.ErrorCode)
	}

	sent := newTestBatch(t, TypeAnnual)
	sent.Status = StatusSent
	if err := sent.SetErrorStatus(ErrorFailedToCreateBillRun, time.Now()); err == nil {
		t.Fatal("sent batch must not become error")
	}
}
