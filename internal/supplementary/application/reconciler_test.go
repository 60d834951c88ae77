package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
	transaction "abstraction-billing/internal/transaction/domain"
	memory "abstraction-billing/internal/transaction/infrastructure/memory"
)

type seqIDs struct {
	n int
}

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type stubResolver struct {
	calls []string
}

func (s *stubResolver) EnsureInvoiceLicence(_ context.Context, batchID, historicalInvoiceLicenceID string) (string, error) {
	s.calls = append(s.calls, historicalInvoiceLicenceID)
	return "il-" + batchID, nil
}

func supplementaryBatch(t *testing.T) *batch.Batch {
	t.Helper()
	b, err := batch.New("batch-2", "anglian", batch.TypeSupplementary, charge.FinancialYear(2021), false, 1, time.Now())
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	return b
}

func billedTransaction(t *testing.T, id, elementID string, volume int64, deMinimis bool) transaction.Transaction {
	t.Helper()
	period, err := charge.NewDateRange(charge.Date(2020, 4, 1), charge.Date(2021, 3, 31))
	if err != nil {
		t.Fatalf("NewDateRange: %v", err)
	}
	return transaction.Transaction{
		ID:               id,
		BatchID:          "batch-1",
		InvoiceLicenceID: "il-old",
		ChargeElementID:  elementID,
		ChargePeriod:     period,
		AuthorisedDays:   365,
		BillableDays:     365,
		Volume:           decimal.NewFromInt(volume),
		Season:           charge.SeasonAllYear,
		Loss:             charge.LossMedium,
		Status:           transaction.StatusChargeCreated,
		IsDeMinimis:      deMinimis,
		Description:      "Abstraction Charge",
	}
}

func newTestReconciler(t *testing.T, repo *memory.TransactionRepository, resolver *stubResolver) *Reconciler {
	t.Helper()
	r, err := NewReconciler(repo, resolver, &seqIDs{}, nil)
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	return r
}

func TestReconcileDropsAlreadyBilledAndCreditsTheRest(t *testing.T) {
	repo := memory.NewTransactionRepository()
	repo.RegisterInvoiceLicence("il-old", "01/123")
	billedSame := billedTransaction(t, "hist-1", "el-1", 100, false)
	billedGone := billedTransaction(t, "hist-2", "el-2", 50, false)
	if err := repo.SaveBatch(context.Background(), []transaction.Transaction{billedSame, billedGone}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	resolver := &stubResolver{}
	r := newTestReconciler(t, repo, resolver)
	b := supplementaryBatch(t)

	// Current run regenerates el-1 identically; el-2 no longer applies.
	candidate := billedSame
	candidate.ID = "cand-1"
	candidate.BatchID = b.ID
	candidate.InvoiceLicenceID = ""
	candidate.Status = transaction.StatusCandidate

	result, err := r.Reconcile(context.Background(), b, "01/123", []transaction.Transaction{candidate})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected only the credit, got %d transactions", len(result))
	}
	credit := result[0]
	if !credit.IsCredit {
		t.Fatalf("expected a credit, got %+v", credit)
	}
	if credit.ChargeElementID != "el-2" || !credit.Volume.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("credit must reverse the vanished historical transaction, got %+v", credit)
	}
	if credit.BatchID != b.ID || credit.Status != transaction.StatusCandidate {
		t.Fatalf("credit must join the current batch as a candidate, got %+v", credit)
	}
	if credit.InvoiceLicenceID != "il-"+b.ID {
		t.Fatalf("credit must use the re-fetched invoice licence, got %q", credit.InvoiceLicenceID)
	}
	if len(resolver.calls) != 1 || resolver.calls[0] != "il-old" {
		t.Fatalf("expected one invoice context re-fetch for il-old, got %v", resolver.calls)
	}
}

func TestReconcileNeverCreditsDeMinimis(t *testing.T) {
	repo := memory.NewTransactionRepository()
	repo.RegisterInvoiceLicence("il-old", "01/123")
	small := billedTransaction(t, "hist-1", "el-1", 1, true)
	if err := repo.SaveBatch(context.Background(), []transaction.Transaction{small}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	resolver := &stubResolver{}
	r := newTestReconciler(t, repo, resolver)
	b := supplementaryBatch(t)

	result, err := r.Reconcile(context.Background(), b, "01/123", nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("de-minimis historical transactions must not be credited, got %+v", result)
	}
	if len(resolver.calls) != 0 {
		t.Fatalf("no invoice context should be fetched for de-minimis, got %v", resolver.calls)
	}
}

func TestReconcileMatchesCreditsAgainstDebits(t *testing.T) {
	// A historical debit and a current candidate with the same content key
	// cancel even though the signs and identifiers differ.
	repo := memory.NewTransactionRepository()
	repo.RegisterInvoiceLicence("il-old", "01/123")
	billed := billedTransaction(t, "hist-1", "el-1", 100, false)
	if err := repo.SaveBatch(context.Background(), []transaction.Transaction{billed}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	r := newTestReconciler(t, repo, &stubResolver{})
	b := supplementaryBatch(t)

	candidate := billed
	candidate.ID = "cand-1"
	candidate.BatchID = b.ID
	candidate.Status = transaction.StatusCandidate

	result, err := r.Reconcile(context.Background(), b, "01/123", []transaction.Transaction{candidate})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("identical content must cancel, got %+v", result)
	}
}

func TestReconcilePassesThroughNonSupplementaryBatches(t *testing.T) {
	repo := memory.NewTransactionRepository()
	r := newTestReconciler(t, repo, &stubResolver{})
	b, err := batch.New("batch-3", "anglian", batch.TypeAnnual, charge.FinancialYear(2021), false, 1, time.Now())
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}

	candidate := billedTransaction(t, "cand-1", "el-1", 100, false)
	candidate.BatchID = b.ID
	candidate.Status = transaction.StatusCandidate

	result, err := r.Reconcile(context.Background(), b, "01/123", []transaction.Transaction{candidate})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result) != 1 || result[0].ID != "cand-1" {
		t.Fatalf("annual batches must pass through unchanged, got %+v", result)
	}
}
