package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	batchmem "abstraction-billing/internal/batch/infrastructure/memory"
	charge "abstraction-billing/internal/charge/domain"
	invoice "abstraction-billing/internal/invoice/domain"
	invmem "abstraction-billing/internal/invoice/infrastructure/memory"
	"abstraction-billing/internal/pipeline"
	pipeapp "abstraction-billing/internal/pipeline/application"
	jobmem "abstraction-billing/internal/pipeline/infrastructure/memory"
	txmem "abstraction-billing/internal/transaction/infrastructure/memory"
	volapp "abstraction-billing/internal/volume/application"
	volume "abstraction-billing/internal/volume/domain"
	volmem "abstraction-billing/internal/volume/infrastructure/memory"
)

type stubDeleter struct{ deleted []string }

func (d *stubDeleter) Delete(_ context.Context, billRunID string) error {
	d.deleted = append(d.deleted, billRunID)
	return nil
}

type noopStage struct{ name string }

func (s noopStage) Name() string               { return s.name }
func (s noopStage) ErrorCode() batch.ErrorCode { return batch.ErrorFailedToProcessChargeVersions }
func (s noopStage) Execute(context.Context, pipeline.Job) (pipeline.Result, error) {
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type handlerFixture struct {
	handler *Handler
	batches *batchmem.BatchRepository
	volumes *volmem.BillingVolumeRepository
	jobs    *jobmem.JobStore
	now     time.Time
}

func newHandler(t *testing.T) *handlerFixture {
	t.Helper()
	fx := &handlerFixture{
		batches: batchmem.NewBatchRepository(),
		volumes: volmem.NewBillingVolumeRepository(),
		jobs:    jobmem.NewJobStore(),
		now:     time.Date(2022, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	invoices := invmem.NewInvoiceRepository()
	transactions := txmem.NewTransactionRepository()

	svc, err := batchapp.NewService(fx.batches, fixedClock(fx.now), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	registry, err := pipeline.NewRegistry(
		noopStage{pipeline.StageCreateBillRun},
		noopStage{pipeline.StageProcessChargeVersions},
		noopStage{pipeline.StageSendBatch},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	dispatcher, err := pipeline.NewDispatcher(fx.jobs, jobmem.NewDLQStore(), fx.batches, registry, pipeline.DefaultGraph(), pipeline.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	reviewer, err := volapp.NewReviewer(fx.volumes, nil)
	if err != nil {
		t.Fatalf("NewReviewer: %v", err)
	}
	orchestrator, err := pipeapp.NewOrchestrator(svc, dispatcher, reviewer, &stubDeleter{}, fx.jobs, transactions, invoices, batchmem.NewChargeVersionYearRepository(), fx.volumes, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	handler, err := NewHandler(svc, orchestrator, reviewer, fx.volumes, invoices, transactions, nil, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	fx.handler = handler
	return fx
}

func (fx *handlerFixture) seedBatch(t *testing.T, status batch.Status) *batch.Batch {
	t.Helper()
	year, err := charge.NewFinancialYear(2022)
	if err != nil {
		t.Fatalf("NewFinancialYear: %v", err)
	}
	b, err := batch.New("batch-1", "A", batch.TypeTwoPartTariff, year, true, 1, fx.now)
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	path := map[batch.Status][]batch.Status{
		batch.StatusProcessing: {batch.StatusProcessing},
		batch.StatusReview:     {batch.StatusProcessing, batch.StatusReview},
		batch.StatusReady:      {batch.StatusProcessing, batch.StatusReady},
	}
	for _, step := range path[status] {
		if err := b.SetStatus(step, fx.now); err != nil {
			t.Fatalf("SetStatus(%s): %v", step, err)
		}
	}
	b.ExternalID = "br-1"
	if err := fx.batches.Save(context.Background(), b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return b
}

func TestCreateBatchEndpoint(t *testing.T) {
	fx := newHandler(t)
	body := `{"region":"A","type":"annual","financial_year_ending":2022}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(body))
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", resp.Code, resp.Body.String())
	}
	var got struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Region string `json:"region"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != "queued" || got.Region != "A" || got.ID == "" {
		t.Fatalf("response = %+v", got)
	}

	// A queued batch blocks a second one for the same region and year.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(body))
	resp = httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", resp.Code)
	}
}

func TestCreateBatchRejectsUnknownType(t *testing.T) {
	fx := newHandler(t)
	body := `{"region":"A","type":"quarterly","financial_year_ending":2022}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(body))
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestGetBatchEndpoint(t *testing.T) {
	fx := newHandler(t)
	fx.seedBatch(t, batch.StatusProcessing)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/batch-1", nil)
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/batches/no-such-batch", nil)
	resp = httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing batch status = %d, want 404", resp.Code)
	}
}

func TestApproveVolumeEndpoint(t *testing.T) {
	fx := newHandler(t)
	fx.seedBatch(t, batch.StatusReview)
	v := &volume.BillingVolume{
		ID: "vol-1", BatchID: "batch-1", ChargeElementID: "el-1", FinancialYearEnding: 2022,
		IsSummer: true, CalculatedVolume: decimal.NewFromInt(150), TwoPartTariffError: true,
		ErrorReason: volume.ErrorOverAbstraction, Source: volume.SourceWRLS,
	}
	if err := fx.volumes.Save(context.Background(), v); err != nil {
		t.Fatalf("Save volume: %v", err)
	}

	body := `{"charge_element_id":"el-1","financial_year_ending":2022,"is_summer":true,"volume":"120.5"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches/batch-1/volumes/approve", strings.NewReader(body))
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.Code, resp.Body.String())
	}
	var got volumeResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.IsApproved || got.Volume == nil || *got.Volume != "120.5" || got.TwoPartTariffError {
		t.Fatalf("response = %+v", got)
	}
}

func TestApproveBatchEndpointUnresolvedVolume(t *testing.T) {
	fx := newHandler(t)
	fx.seedBatch(t, batch.StatusReview)
	v := &volume.BillingVolume{
		ID: "vol-1", BatchID: "batch-1", ChargeElementID: "el-1", FinancialYearEnding: 2022,
		IsSummer: true, TwoPartTariffError: true, ErrorReason: volume.ErrorOverAbstraction,
		Source: volume.SourceWRLS,
	}
	if err := fx.volumes.Save(context.Background(), v); err != nil {
		t.Fatalf("Save volume: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches/batch-1/approve", nil)
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", resp.Code, resp.Body.String())
	}
}

func TestSendBatchEndpoint(t *testing.T) {
	fx := newHandler(t)
	fx.seedBatch(t, batch.StatusReady)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches/batch-1/send", nil)
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.Code, resp.Body.String())
	}
	var got struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != "sending" {
		t.Fatalf("status = %q, want sending", got.Status)
	}

	// Sending again conflicts with the status gate.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/batches/batch-1/send", nil)
	resp = httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("second send status = %d, want 409", resp.Code)
	}
}

func TestDeleteBatchEndpoint(t *testing.T) {
	fx := newHandler(t)
	fx.seedBatch(t, batch.StatusProcessing)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/batches/batch-1", nil)
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", resp.Code, resp.Body.String())
	}
	if _, err := fx.batches.Get(context.Background(), "batch-1"); err == nil {
		t.Fatal("batch still present after delete")
	}
}

func TestExportEndpointsServeAttachments(t *testing.T) {
	fx := newHandler(t)
	fx.seedBatch(t, batch.StatusReady)
	inv := &invoice.Invoice{
		ID: "inv-1", BatchID: "batch-1", InvoiceAccountID: "acc-1",
		InvoiceAccountNumber: "A11111111A", FinancialYearEnding: 2022,
		NetAmount: decimal.NewFromInt(1000),
	}
	if err := fx.handler.invoices.Save(context.Background(), inv); err != nil {
		t.Fatalf("Save invoice: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/batch-1/export.pdf", nil)
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("pdf status = %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("pdf content type = %q", got)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("empty pdf body")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/batches/batch-1/export.xlsx", nil)
	resp = httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("xlsx status = %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.Len() == 0 {
		t.Fatal("empty xlsx body")
	}
}
