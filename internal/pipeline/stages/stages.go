// Package stages implements the billing pipeline stages. Each stage is a
// thin orchestration shell: the billing rules live in the domain and
// application layers, the retry and sequencing rules in the dispatcher.
package stages

import (
	"context"
	"encoding/json"

	"abstraction-billing/internal/chargemodule"
)

// BillRunClient is the slice of the charging authority client the stages
// use. Tests substitute a stub.
type BillRunClient interface {
	CreateBillRun(ctx context.Context, region string, ruleset string) (chargemodule.BillRun, error)
	CreateTransaction(ctx context.Context, billRunID string, t chargemodule.Transaction) (string, error)
	Generate(ctx context.Context, billRunID string) error
	GetSummary(ctx context.Context, billRunID string) (chargemodule.Summary, error)
	Approve(ctx context.Context, billRunID string) error
	Send(ctx context.Context, billRunID string) error
	Delete(ctx context.Context, billRunID string) error
}

// unitPayload addresses one working set row in a fan-out job.
type unitPayload struct {
	ID string `json:"id"`
}

func encodeUnit(id string) json.RawMessage {
	raw, _ := json.Marshal(unitPayload{ID: id})
	return raw
}

func decodeUnit(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var payload unitPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}
	return payload.ID, payload.ID != ""
}
