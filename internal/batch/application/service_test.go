package application

import (
	"context"
	"testing"
	"time"

	batch "abstraction-billing/internal/batch/domain"
	"abstraction-billing/internal/batch/infrastructure/memory"
	charge "abstraction-billing/internal/charge/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newService(t *testing.T) (*Service, *memory.BatchRepository) {
	t.Helper()
	repo := memory.NewBatchRepository()
	svc, err := NewService(repo, fixedClock{now: time.Date(2026, time.April, 10, 9, 0, 0, 0, time.UTC)}, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func TestCreateRejectsOverlappingLiveBatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.Create(ctx, "anglian", batch.TypeAnnual, charge.FinancialYear(2020), false, 1)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	_, err = svc.Create(ctx, "anglian", batch.TypeSupplementary, charge.FinancialYear(2021), false, 6)
	if !batch.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// A different region is unaffected.
	if _, err := svc.Create(ctx, "midlands", batch.TypeAnnual, charge.FinancialYear(2020), false, 1); err != nil {
		t.Fatalf("create other region: %v", err)
	}

	// Once the first batch reaches a terminal state the region is free.
	if _, err := svc.SetStatus(ctx, first.ID, batch.StatusProcessing); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if err := svc.SetErrorStatus(ctx, first.ID, batch.ErrorFailedToCreateBillRun); err != nil {
		t.Fatalf("to error: %v", err)
	}
	if _, err := svc.Create(ctx, "anglian", batch.TypeAnnual, charge.FinancialYear(2020), false, 1); err != nil {
		t.Fatalf("create after terminal: %v", err)
	}
}

func TestCreateAllowsNonOverlappingYears(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	if _, err := svc.Create(ctx, "anglian", batch.TypeAnnual, charge.FinancialYear(2020), false, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "anglian", batch.TypeAnnual, charge.FinancialYear(2021), false, 1); err != nil {
		t.Fatalf("expected disjoint years to be allowed: %v", err)
	}
}

func TestAssertStatusGate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	created, err := svc.Create(ctx, "anglian", batch.TypeAnnual, charge.FinancialYear(2020), false, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.AssertStatus(ctx, created.ID, batch.StatusQueued); err != nil {
		t.Fatalf("queued gate: %v", err)
	}
	if _, err := svc.AssertStatus(ctx, created.ID, batch.StatusProcessing); !batch.IsStatusError(err) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSetStatusPersists(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	created, err := svc.Create(ctx, "anglian", batch.TypeAnnual, charge.FinancialYear(2020), false, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SetStatus(ctx, created.ID, batch.StatusProcessing); err != nil {
		t.Fatalf("set status: %v", err)
	}
	stored, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != batch.StatusProcessing {
		t.Fatalf("expected processing persisted, got %s", stored.Status)
	}
}
