package stages

import (
	"context"
	"errors"

	"go.uber.org/zap"

	batchapp "abstraction-billing/internal/batch/application"
	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
	"abstraction-billing/internal/observability/metrics"
	"abstraction-billing/internal/pipeline"
	txapp "abstraction-billing/internal/transaction/application"
)

// PopulateChargeVersions materialises the batch's working set: one row per
// (charge version, financial year) whose charge period is non-empty. A
// batch that ends up with no work short-circuits to empty.
type PopulateChargeVersions struct {
	batches        *batchapp.Service
	chargeVersions charge.Repository
	workset        batch.ChargeVersionYearRepository
	ids            txapp.IDFactory
	logger         *zap.Logger
}

// NewPopulateChargeVersions constructs the stage.
func NewPopulateChargeVersions(batches *batchapp.Service, chargeVersions charge.Repository, workset batch.ChargeVersionYearRepository, ids txapp.IDFactory, logger *zap.Logger) (*PopulateChargeVersions, error) {
	if batches == nil || chargeVersions == nil || workset == nil {
		return nil, errors.New("populate charge versions stage: nil dependency")
	}
	if ids == nil {
		ids = txapp.UUIDFactory{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PopulateChargeVersions{
		batches:        batches,
		chargeVersions: chargeVersions,
		workset:        workset,
		ids:            ids,
		logger:         logger,
	}, nil
}

func (s *PopulateChargeVersions) Name() string { return pipeline.StagePopulateChargeVersions }

func (s *PopulateChargeVersions) ErrorCode() batch.ErrorCode {
	return batch.ErrorFailedToPopulateChargeVersions
}

func (s *PopulateChargeVersions) Execute(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	b, err := s.batches.AssertStatus(ctx, job.BatchID, batch.StatusProcessing)
	if err != nil {
		return pipeline.Result{}, err
	}

	versions, err := s.chargeVersions.ListByRegion(ctx, b.Region, b.Years())
	if err != nil {
		return pipeline.Result{}, err
	}

	var rows []batch.ChargeVersionYear
	for _, version := range versions {
		for _, year := range b.Years() {
			if _, ok := charge.ChargePeriod(year, version); !ok {
				continue
			}
			rows = append(rows, batch.ChargeVersionYear{
				ID:              s.ids.NewID(),
				BatchID:         b.ID,
				ChargeVersionID: version.ID,
				FinancialYear:   year,
				Status:          batch.ChargeVersionYearProcessing,
			})
		}
	}

	if len(rows) == 0 {
		if _, err := s.batches.SetStatus(ctx, b.ID, batch.StatusEmpty); err != nil {
			return pipeline.Result{}, err
		}
		metrics.IncBatchTransition(string(batch.StatusEmpty))
		s.logger.Info("batch has no chargeable work", zap.String("batch_id", b.ID))
		return pipeline.Result{Outcome: pipeline.OutcomeEmpty}, nil
	}

	if err := s.workset.SaveAll(ctx, rows); err != nil {
		return pipeline.Result{}, err
	}
	s.logger.Info("working set populated",
		zap.String("batch_id", b.ID),
		zap.Int("charge_version_years", len(rows)),
	)
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}
