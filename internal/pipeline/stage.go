package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	batch "abstraction-billing/internal/batch/domain"
)

// Stage names in pipeline order.
const (
	StageCreateBillRun          = "create-bill-run"
	StagePopulateChargeVersions = "populate-charge-versions"
	StageTwoPartTariffMatching  = "two-part-tariff-matching"
	StageProcessChargeVersions  = "process-charge-versions"
	StagePrepareTransactions    = "prepare-transactions"
	StageRefreshTotals          = "refresh-totals"
	StageSendBatch              = "send-batch"
)

// Outcome classifies how a stage execution ended. The stage graph keys its
// edges on (stage, batch type, outcome), so an outcome with no edge simply
// parks the pipeline (review pause, empty batch, fan-out unit done).
type Outcome string

const (
	// OutcomeCompleted advances to the next stage.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFanOut spawns one follow-up job per payload.
	OutcomeFanOut Outcome = "fan-out"
	// OutcomeWaiting ends the job without advancing; a sibling or a later
	// trigger moves the batch on.
	OutcomeWaiting Outcome = "waiting"
	// OutcomePending re-runs the same stage after a delay.
	OutcomePending Outcome = "pending"
	// OutcomeReview parks the batch for manual review.
	OutcomeReview Outcome = "review"
	// OutcomeEmpty ends the pipeline with nothing to bill.
	OutcomeEmpty Outcome = "empty"
)

// Result is what a stage hands back to the dispatcher.
type Result struct {
	Outcome Outcome
	// FanOut carries the payloads of follow-up jobs when the outcome is
	// fan-out; each becomes its own job of the edge's target stage.
	FanOut []json.RawMessage
	// Delay postpones the follow-up job, used by polling stages.
	Delay time.Duration
}

// Stage is one step of the billing pipeline.
type Stage interface {
	Name() string
	// ErrorCode is the batch error recorded when the stage's attempts are
	// exhausted.
	ErrorCode() batch.ErrorCode
	Execute(ctx context.Context, job Job) (Result, error)
}

// Registry resolves stages by name.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry builds a registry from stages.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{stages: make(map[string]Stage, len(stages))}
	for _, stage := range stages {
		if stage == nil || stage.Name() == "" {
			return nil, errors.New("pipeline: unnamed stage")
		}
		if _, exists := r.stages[stage.Name()]; exists {
			return nil, errors.New("pipeline: duplicate stage " + stage.Name())
		}
		r.stages[stage.Name()] = stage
	}
	return r, nil
}

// Resolve returns the stage registered under name.
func (r *Registry) Resolve(name string) (Stage, bool) {
	stage, ok := r.stages[name]
	return stage, ok
}
