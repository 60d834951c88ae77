package pipeline

import (
	batch "abstraction-billing/internal/batch/domain"
)

// Edge keys one transition of the stage graph.
type Edge struct {
	Stage     string
	BatchType batch.Type
	Outcome   Outcome
}

// Graph is the explicit stage transition table. Every advance the pipeline
// can make is an entry here; an execution whose (stage, type, outcome) has
// no entry ends the flow at that point.
type Graph struct {
	edges map[Edge]string
}

// NewGraph builds an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[Edge]string)}
}

// Add registers a transition for one batch type.
func (g *Graph) Add(stage string, batchType batch.Type, outcome Outcome, next string) *Graph {
	g.edges[Edge{Stage: stage, BatchType: batchType, Outcome: outcome}] = next
	return g
}

// AddAll registers a transition for every batch type.
func (g *Graph) AddAll(stage string, outcome Outcome, next string) *Graph {
	for _, batchType := range []batch.Type{batch.TypeAnnual, batch.TypeSupplementary, batch.TypeTwoPartTariff} {
		g.Add(stage, batchType, outcome, next)
	}
	return g
}

// Next resolves the stage following (stage, batchType, outcome).
func (g *Graph) Next(stage string, batchType batch.Type, outcome Outcome) (string, bool) {
	next, ok := g.edges[Edge{Stage: stage, BatchType: batchType, Outcome: outcome}]
	return next, ok
}

// DefaultGraph wires the billing pipeline:
//
//	create-bill-run -> populate-charge-versions
//	populate-charge-versions -> two-part-tariff-matching  (two-part tariff)
//	populate-charge-versions -> process-charge-versions   (annual, supplementary)
//	two-part-tariff-matching -> process-charge-versions   (no review needed)
//	process-charge-versions  -> process-charge-versions   (fan-out units)
//	process-charge-versions  -> prepare-transactions      (last unit done)
//	prepare-transactions     -> refresh-totals
//	refresh-totals           -> refresh-totals            (summary not ready yet)
//
// Review, empty and ready are pauses: the review approval and the send
// trigger enqueue their follow-up stages explicitly.
func DefaultGraph() *Graph {
	g := NewGraph()
	g.AddAll(StageCreateBillRun, OutcomeCompleted, StagePopulateChargeVersions)
	g.Add(StagePopulateChargeVersions, batch.TypeAnnual, OutcomeCompleted, StageProcessChargeVersions)
	g.Add(StagePopulateChargeVersions, batch.TypeSupplementary, OutcomeCompleted, StageProcessChargeVersions)
	g.Add(StagePopulateChargeVersions, batch.TypeTwoPartTariff, OutcomeCompleted, StageTwoPartTariffMatching)
	g.Add(StageTwoPartTariffMatching, batch.TypeTwoPartTariff, OutcomeCompleted, StageProcessChargeVersions)
	g.AddAll(StageProcessChargeVersions, OutcomeFanOut, StageProcessChargeVersions)
	g.AddAll(StageProcessChargeVersions, OutcomeCompleted, StagePrepareTransactions)
	g.AddAll(StagePrepareTransactions, OutcomeCompleted, StageRefreshTotals)
	g.AddAll(StageRefreshTotals, OutcomePending, StageRefreshTotals)
	return g
}
