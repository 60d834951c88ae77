package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"abstraction-billing/internal/audit"
	"abstraction-billing/internal/auth"
	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
	invoice "abstraction-billing/internal/invoice/domain"
	invifaces "abstraction-billing/internal/invoice/interfaces"
	"abstraction-billing/internal/observability/metrics"
	pipeapp "abstraction-billing/internal/pipeline/application"
	transaction "abstraction-billing/internal/transaction/domain"
	volapp "abstraction-billing/internal/volume/application"
	volume "abstraction-billing/internal/volume/domain"
)

const timeLayout = time.RFC3339

// Handler serves billing batch endpoints under /api/v1/batches.
type Handler struct {
	batches      *batchapp.Service
	orchestrator *pipeapp.Orchestrator
	reviewer     *volapp.Reviewer
	volumes      volume.Repository
	invoices     invoice.Repository
	transactions transaction.Repository
	auditLogger  audit.Logger
	logger       *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(
	batches *batchapp.Service,
	orchestrator *pipeapp.Orchestrator,
	reviewer *volapp.Reviewer,
	volumes volume.Repository,
	invoices invoice.Repository,
	transactions transaction.Repository,
	auditLogger audit.Logger,
	logger *zap.Logger,
) (*Handler, error) {
	if batches == nil || orchestrator == nil || reviewer == nil ||
		volumes == nil || invoices == nil || transactions == nil {
		return nil, errors.New("batch handler: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		batches:      batches,
		orchestrator: orchestrator,
		reviewer:     reviewer,
		volumes:      volumes,
		invoices:     invoices,
		transactions: transactions,
		auditLogger:  auditLogger,
		logger:       logger,
	}, nil
}

// ServeHTTP routes batch requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/batches" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCreate(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/batches/")
	if path == r.URL.Path {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 1 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	batchID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, batchID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, batchID)
	case len(parts) == 2 && parts[1] == "approve" && r.Method == http.MethodPost:
		h.handleApprove(w, r, batchID)
	case len(parts) == 2 && parts[1] == "send" && r.Method == http.MethodPost:
		h.handleSend(w, r, batchID)
	case len(parts) == 2 && parts[1] == "volumes" && r.Method == http.MethodGet:
		h.handleListVolumes(w, r, batchID)
	case len(parts) == 3 && parts[1] == "volumes" && parts[2] == "approve" && r.Method == http.MethodPost:
		h.handleApproveVolume(w, r, batchID)
	case len(parts) == 2 && parts[1] == "invoices" && r.Method == http.MethodGet:
		h.handleListInvoices(w, r, batchID)
	case len(parts) == 2 && parts[1] == "export.pdf" && r.Method == http.MethodGet:
		h.handleExportPDF(w, r, batchID)
	case len(parts) == 2 && parts[1] == "export.xlsx" && r.Method == http.MethodGet:
		h.handleExportXLSX(w, r, batchID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type createBatchRequest struct {
	Region              string `json:"region"`
	Type                string `json:"type"`
	FinancialYearEnding int    `json:"financial_year_ending"`
	IsSummer            bool   `json:"is_summer"`
	YearSpan            int    `json:"year_span"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	batchType := batch.Type(req.Type)
	if !batchType.IsValid() {
		http.Error(w, "type must be annual, supplementary or two_part_tariff", http.StatusBadRequest)
		return
	}
	year, err := charge.NewFinancialYear(req.FinancialYearEnding)
	if err != nil {
		http.Error(w, "invalid financial_year_ending", http.StatusBadRequest)
		return
	}
	if req.YearSpan <= 0 {
		req.YearSpan = 1
	}

	b, err := h.orchestrator.CreateBatch(r.Context(), req.Region, batchType, year, req.IsSummer, req.YearSpan)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "batch.create", b.ID, b.Region)
	writeJSON(w, http.StatusCreated, batchJSON(b))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, batchID string) {
	b, err := h.batches.Get(r.Context(), batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchJSON(b))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, batchID string) {
	b, err := h.batches.Get(r.Context(), batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.orchestrator.DeleteBatch(r.Context(), batchID); err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "batch.delete", batchID, b.Region)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request, batchID string) {
	b, err := h.orchestrator.ResumeAfterReview(r.Context(), batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "batch.approve_review", batchID, b.Region)
	writeJSON(w, http.StatusOK, batchJSON(b))
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request, batchID string) {
	b, err := h.orchestrator.SendBatch(r.Context(), batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "batch.send", batchID, b.Region)
	writeJSON(w, http.StatusOK, batchJSON(b))
}

func (h *Handler) handleListVolumes(w http.ResponseWriter, r *http.Request, batchID string) {
	if _, err := h.batches.Get(r.Context(), batchID); err != nil {
		h.respondError(w, err)
		return
	}
	volumes, err := h.volumes.ListByBatch(r.Context(), batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	result := make([]volumeResponse, 0, len(volumes))
	for _, v := range volumes {
		result = append(result, volumeJSON(v))
	}
	writeJSON(w, http.StatusOK, result)
}

type approveVolumeRequest struct {
	ChargeElementID     string  `json:"charge_element_id"`
	FinancialYearEnding int     `json:"financial_year_ending"`
	IsSummer            bool    `json:"is_summer"`
	Volume              *string `json:"volume"`
}

func (h *Handler) handleApproveVolume(w http.ResponseWriter, r *http.Request, batchID string) {
	var req approveVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ChargeElementID == "" {
		http.Error(w, "charge_element_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.batches.Get(r.Context(), batchID); err != nil {
		h.respondError(w, err)
		return
	}
	var override *decimal.Decimal
	if req.Volume != nil {
		parsed, err := decimal.NewFromString(*req.Volume)
		if err != nil || parsed.IsNegative() {
			http.Error(w, "volume must be a non-negative decimal", http.StatusBadRequest)
			return
		}
		override = &parsed
	}

	v, err := h.reviewer.ApproveVolume(r.Context(), req.ChargeElementID, req.FinancialYearEnding, req.IsSummer, override)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "volume.approve", v.ID, "")
	writeJSON(w, http.StatusOK, volumeJSON(*v))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request, batchID string) {
	if _, err := h.batches.Get(r.Context(), batchID); err != nil {
		h.respondError(w, err)
		return
	}
	invoices, err := h.invoices.ListByBatch(r.Context(), batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	result := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, invoiceJSON(inv))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request, batchID string) {
	started := time.Now()
	b, invoices, _, err := h.exportData(r, batchID, false)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data, err := invifaces.BuildBatchPDF(b, invoices)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(started))
		h.logger.Error("pdf export failed", zap.String("batch_id", batchID), zap.Error(err))
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-`+batchID+`.pdf"`)
	_, _ = w.Write(data)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request, batchID string) {
	started := time.Now()
	b, invoices, transactions, err := h.exportData(r, batchID, true)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data, err := invifaces.BuildBatchXLSX(b, invoices, transactions)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(started))
		h.logger.Error("xlsx export failed", zap.String("batch_id", batchID), zap.Error(err))
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-`+batchID+`.xlsx"`)
	_, _ = w.Write(data)
}

func (h *Handler) exportData(r *http.Request, batchID string, withTransactions bool) (*batch.Batch, []invoice.Invoice, []transaction.Transaction, error) {
	b, err := h.batches.Get(r.Context(), batchID)
	if err != nil {
		return nil, nil, nil, err
	}
	invoices, err := h.invoices.ListByBatch(r.Context(), batchID)
	if err != nil {
		return nil, nil, nil, err
	}
	var transactions []transaction.Transaction
	if withTransactions {
		if transactions, err = h.transactions.ListByBatch(r.Context(), batchID); err != nil {
			return nil, nil, nil, err
		}
	}
	return b, invoices, transactions, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var unresolved *volapp.UnresolvedVolumeError
	switch {
	case errors.Is(err, batch.ErrBatchNotFound),
		errors.Is(err, volume.ErrVolumeNotFound),
		errors.Is(err, invoice.ErrInvoiceNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case batch.IsConflict(err), batch.IsStatusError(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &unresolved):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, batch.ErrInvalidBatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("batch handler error", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) audit(r *http.Request, action, resourceID, region string) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "batch",
		ResourceID:   resourceID,
		Region:       region,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

type batchResponse struct {
	ID                  string `json:"id"`
	Region              string `json:"region"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	ErrorCode           string `json:"error_code,omitempty"`
	IsSummer            bool   `json:"is_summer"`
	StartYearEnding     int    `json:"start_year_ending"`
	FinancialYearEnding int    `json:"financial_year_ending"`
	BillRunID           string `json:"bill_run_id,omitempty"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

func batchJSON(b *batch.Batch) batchResponse {
	return batchResponse{
		ID:                  b.ID,
		Region:              b.Region,
		Type:                string(b.Type),
		Status:              string(b.Status),
		ErrorCode:           string(b.ErrorCode),
		IsSummer:            b.IsSummer,
		StartYearEnding:     b.StartYear.Ending(),
		FinancialYearEnding: b.EndYear.Ending(),
		BillRunID:           b.ExternalID,
		CreatedAt:           b.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:           b.UpdatedAt.UTC().Format(timeLayout),
	}
}

type volumeResponse struct {
	ID                  string  `json:"id"`
	ChargeElementID     string  `json:"charge_element_id"`
	FinancialYearEnding int     `json:"financial_year_ending"`
	IsSummer            bool    `json:"is_summer"`
	CalculatedVolume    string  `json:"calculated_volume"`
	Volume              *string `json:"volume"`
	TwoPartTariffError  bool    `json:"two_part_tariff_error"`
	ErrorReason         string  `json:"error_reason,omitempty"`
	Source              string  `json:"source"`
	IsApproved          bool    `json:"is_approved"`
}

func volumeJSON(v volume.BillingVolume) volumeResponse {
	resp := volumeResponse{
		ID:                  v.ID,
		ChargeElementID:     v.ChargeElementID,
		FinancialYearEnding: v.FinancialYearEnding,
		IsSummer:            v.IsSummer,
		CalculatedVolume:    v.CalculatedVolume.String(),
		TwoPartTariffError:  v.TwoPartTariffError,
		ErrorReason:         string(v.ErrorReason),
		Source:              string(v.Source),
		IsApproved:          v.IsApproved,
	}
	if v.Volume != nil {
		value := v.Volume.String()
		resp.Volume = &value
	}
	return resp
}

type invoiceResponse struct {
	ID                   string `json:"id"`
	InvoiceAccountNumber string `json:"invoice_account_number"`
	FinancialYearEnding  int    `json:"financial_year_ending"`
	NetAmount            string `json:"net_amount"`
	IsCredit             bool   `json:"is_credit"`
	IsDeMinimis          bool   `json:"is_de_minimis"`
	InvoiceNumber        string `json:"invoice_number,omitempty"`
}

func invoiceJSON(inv invoice.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                   inv.ID,
		InvoiceAccountNumber: inv.InvoiceAccountNumber,
		FinancialYearEnding:  inv.FinancialYearEnding,
		NetAmount:            inv.NetAmount.String(),
		IsCredit:             inv.IsCredit,
		IsDeMinimis:          inv.IsDeMinimis,
		InvoiceNumber:        inv.InvoiceNumber,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
