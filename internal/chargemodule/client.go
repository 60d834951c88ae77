package chargemodule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// ErrBillRunNotFound is returned when the charging authority does not know
// the bill run.
var ErrBillRunNotFound = errors.New("chargemodule: bill run not found")

// Client talks to the external charging authority that owns bill runs,
// calculates charges and issues invoice numbers. Calls go through a
// circuit breaker so a struggling authority does not stall the pipeline
// workers.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient constructs a charge module client.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("chargemodule: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "chargemodule",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
		}),
	}, nil
}

// BillRun identifies a bill run held by the charging authority.
type BillRun struct {
	ID     string `json:"id"`
	Number int    `json:"billRunNumber"`
}

// Transaction is the charge request for one billing transaction.
type Transaction struct {
	ClientID           string    `json:"clientId"`
	LicenceNumber      string    `json:"licenceNumber"`
	AccountNumber      string    `json:"customerReference"`
	PeriodStart        time.Time `json:"periodStart"`
	PeriodEnd          time.Time `json:"periodEnd"`
	AuthorisedDays     int       `json:"authorisedDays"`
	BillableDays       int       `json:"billableDays"`
	Volume             string    `json:"volume"`
	Season             string    `json:"season"`
	Loss               string    `json:"loss"`
	Source             string    `json:"source"`
	Credit             bool      `json:"credit"`
	CompensationCharge bool      `json:"compensationCharge"`
	TwoPartTariff      bool      `json:"twoPartTariff"`
	Description        string    `json:"lineDescription"`
}

// InvoiceSummary is one invoice's financial outcome within a bill run.
type InvoiceSummary struct {
	AccountNumber        string          `json:"customerReference"`
	NetAmount            decimal.Decimal `json:"netTotal"`
	DeMinimis            bool            `json:"deminimisInvoice"`
	TransactionReference string          `json:"transactionReference"`
}

// Summary is the bill run level summary.
type Summary struct {
	Status       string           `json:"status"`
	NetAmount    decimal.Decimal  `json:"netTotal"`
	InvoiceCount int              `json:"invoiceCount"`
	Invoices     []InvoiceSummary `json:"invoices"`
}

// Generated reports whether the authority has finished calculating charges.
func (s Summary) Generated() bool {
	return s.Status == "generated" || s.Status == "billed"
}

// CreateBillRun opens a bill run for a region.
func (c *Client) CreateBillRun(ctx context.Context, region string, ruleset string) (BillRun, error) {
	body := map[string]any{"region": region, "ruleset": ruleset}
	var resp struct {
		BillRun BillRun `json:"billRun"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v3/wrls/bill-runs", body, &resp); err != nil {
		return BillRun{}, err
	}
	return resp.BillRun, nil
}

// CreateTransaction submits one transaction, returning the authority's id.
func (c *Client) CreateTransaction(ctx context.Context, billRunID string, t Transaction) (string, error) {
	var resp struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
	}
	path := "/v3/wrls/bill-runs/" + billRunID + "/transactions"
	if err := c.doJSON(ctx, http.MethodPost, path, t, &resp); err != nil {
		return "", err
	}
	return resp.Transaction.ID, nil
}

// Generate asks the authority to calculate the bill run's charges.
func (c *Client) Generate(ctx context.Context, billRunID string) error {
	return c.doJSON(ctx, http.MethodPatch, "/v3/wrls/bill-runs/"+billRunID+"/generate", nil, nil)
}

// GetSummary fetches the bill run summary with per-invoice totals.
func (c *Client) GetSummary(ctx context.Context, billRunID string) (Summary, error) {
	var resp struct {
		BillRun Summary `json:"billRun"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v3/wrls/bill-runs/"+billRunID, nil, &resp); err != nil {
		return Summary{}, err
	}
	return resp.BillRun, nil
}

// Approve marks the bill run approved for sending.
func (c *Client) Approve(ctx context.Context, billRunID string) error {
	return c.doJSON(ctx, http.MethodPatch, "/v3/wrls/bill-runs/"+billRunID+"/approve", nil, nil)
}

// Send finalises the bill run; the authority assigns invoice numbers which
// the follow-up summary carries as transaction references.
func (c *Client) Send(ctx context.Context, billRunID string) error {
	return c.doJSON(ctx, http.MethodPatch, "/v3/wrls/bill-runs/"+billRunID+"/send", nil, nil)
}

// Delete removes an unsent bill run from the authority.
func (c *Client) Delete(ctx context.Context, billRunID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v3/wrls/bill-runs/"+billRunID, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrBillRunNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chargemodule: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
