package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Service owns batch lifecycle mutations. It is the only writer of batch
// status outside the repositories.
type Service struct {
	repo   batch.Repository
	clock  Clock
	logger *zap.Logger
}

// NewService constructs the batch service.
func NewService(repo batch.Repository, clock Clock, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("batch service: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, clock: clock, logger: logger}, nil
}

// Create builds and persists a queued batch, rejecting it with a
// ConflictError when a live batch overlaps the region and year range.
func (s *Service) Create(ctx context.Context, region string, batchType batch.Type, endYear charge.FinancialYear, isSummer bool, yearSpan int) (*batch.Batch, error) {
	candidate, err := batch.New(uuid.NewString(), region, batchType, endYear, isSummer, yearSpan, s.clock.Now())
	if err != nil {
		return nil, err
	}

	live, err := s.repo.ListLiveByRegion(ctx, region)
	if err != nil {
		return nil, err
	}
	for _, existing := range live {
		if existing.OverlapsYears(candidate.StartYear, candidate.EndYear) {
			return nil, &batch.ConflictError{Region: region, ExistingBatchID: existing.ID}
		}
	}

	if err := s.repo.Save(ctx, candidate); err != nil {
		return nil, err
	}
	s.logger.Info("batch created",
		zap.String("batch_id", candidate.ID),
		zap.String("region", region),
		zap.String("type", string(batchType)),
		zap.Int("end_year", endYear.Ending()),
	)
	return candidate, nil
}

// Get loads a batch.
func (s *Service) Get(ctx context.Context, id string) (*batch.Batch, error) {
	return s.repo.Get(ctx, id)
}

// AssertStatus loads the batch and gates on its status, returning the batch
// for the caller's use when the gate passes.
func (s *Service) AssertStatus(ctx context.Context, id string, expected ...batch.Status) (*batch.Batch, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.AssertStatus(expected...); err != nil {
		return nil, err
	}
	return b, nil
}

// SetStatus advances the batch and persists the new status.
func (s *Service) SetStatus(ctx context.Context, id string, to batch.Status) (*batch.Batch, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.SetStatus(to, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, b.Status, b.ErrorCode); err != nil {
		return nil, err
	}
	s.logger.Info("batch status changed", zap.String("batch_id", id), zap.String("status", string(to)))
	return b, nil
}

// SetErrorStatus marks the batch failed with a stage-specific code.
func (s *Service) SetErrorStatus(ctx context.Context, id string, code batch.ErrorCode) error {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := b.SetErrorStatus(code, s.clock.Now()); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, b.Status, b.ErrorCode); err != nil {
		return err
	}
	s.logger.Error("batch failed", zap.String("batch_id", id), zap.String("error_code", string(code)))
	return nil
}

// Delete removes the batch row. Callers are responsible for cleaning up
// dependent records first.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// SetExternalID records the bill run id assigned by the external authority.
func (s *Service) SetExternalID(ctx context.Context, id, externalID string) error {
	return s.repo.SetExternalID(ctx, id, externalID)
}
