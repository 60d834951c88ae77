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
	volapp "abstraction-billing/internal/volume/application"
	volume "abstraction-billing/internal/volume/domain"
)

// TwoPartTariffMatching computes billing volumes for every charge version
// in the working set and parks the batch in review when any volume needs a
// human decision.
type TwoPartTariffMatching struct {
	batches        *batchapp.Service
	chargeVersions charge.Repository
	workset        batch.ChargeVersionYearRepository
	matcher        *volapp.Matcher
	logger         *zap.Logger
}

// NewTwoPartTariffMatching constructs the stage.
func NewTwoPartTariffMatching(batches *batchapp.Service, chargeVersions charge.Repository, workset batch.ChargeVersionYearRepository, matcher *volapp.Matcher, logger *zap.Logger) (*TwoPartTariffMatching, error) {
	if batches == nil || chargeVersions == nil || workset == nil || matcher == nil {
		return nil, errors.New("two part tariff matching stage: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwoPartTariffMatching{
		batches:        batches,
		chargeVersions: chargeVersions,
		workset:        workset,
		matcher:        matcher,
		logger:         logger,
	}, nil
}

func (s *TwoPartTariffMatching) Name() string { return pipeline.StageTwoPartTariffMatching }

func (s *TwoPartTariffMatching) ErrorCode() batch.ErrorCode {
	return batch.ErrorFailedToProcessTwoPartTariff
}

func (s *TwoPartTariffMatching) Execute(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	b, err := s.batches.AssertStatus(ctx, job.BatchID, batch.StatusProcessing)
	if err != nil {
		return pipeline.Result{}, err
	}

	rows, err := s.workset.ListByBatch(ctx, b.ID)
	if err != nil {
		return pipeline.Result{}, err
	}

	var all []volume.BillingVolume
	for _, row := range rows {
		version, err := s.chargeVersions.Get(ctx, row.ChargeVersionID)
		if err != nil {
			return pipeline.Result{}, err
		}
		volumes, err := s.matcher.MatchChargeVersion(ctx, b.ID, *version, row.FinancialYear, b.IsSummer)
		if err != nil {
			return pipeline.Result{}, err
		}
		all = append(all, volumes...)
	}

	for _, v := range all {
		if v.TwoPartTariffError {
			metrics.IncMatchingError(string(v.ErrorReason))
		}
	}

	if volapp.NeedsReview(all) {
		if _, err := s.batches.SetStatus(ctx, b.ID, batch.StatusReview); err != nil {
			return pipeline.Result{}, err
		}
		metrics.IncBatchTransition(string(batch.StatusReview))
		s.logger.Info("batch parked for review",
			zap.String("batch_id", b.ID),
			zap.Int("volumes", len(all)),
		)
		return pipeline.Result{Outcome: pipeline.OutcomeReview}, nil
	}
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}
