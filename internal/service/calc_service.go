package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/meshquote-api/internal/events"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/pricing"
	"github.com/jmylchreest/meshquote-api/internal/repository"
)

// paramsUpdateAttempts bounds retries of a parameter patch that lost a race
// with a concurrent patch.
const paramsUpdateAttempts = 3

// CalcService manages pricing parameters and computes quotes.
type CalcService struct {
	repos  *repository.Repositories
	events events.Publisher
	logger *slog.Logger
}

// NewCalcService creates a new calculation service.
func NewCalcService(repos *repository.Repositories, publisher events.Publisher, logger *slog.Logger) *CalcService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CalcService{
		repos:  repos,
		events: publisher,
		logger: logger.With("component", "calc"),
	}
}

func (s *CalcService) requireProject(ctx context.Context, projectID string) error {
	project, err := s.repos.Project.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return nil
}

// GetParams returns the project's parameters, creating defaults on first
// access.
func (s *CalcService) GetParams(ctx context.Context, projectID string) (*models.CalcParams, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	params, err := s.repos.CalcParams.GetByProjectID(ctx, projectID)
	if err != nil || params != nil {
		return params, err
	}

	now := time.Now().UTC()
	params, err = s.repos.CalcParams.Create(ctx, &models.CalcParams{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		Revision:  1,
		Params:    pricing.DefaultParams(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if params == nil {
		// Project deleted between the check and the insert.
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return params, nil
}

// UpdateParams merges patch into the stored parameters, validates the
// result as a whole and stores it. The project's result is invalidated.
func (s *CalcService) UpdateParams(ctx context.Context, projectID string, patch pricing.Patch) (*models.CalcParams, error) {
	for attempt := 0; attempt < paramsUpdateAttempts; attempt++ {
		current, err := s.GetParams(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if patch.IsEmpty() {
			return current, nil
		}

		next := patch.Apply(current.Params)
		if err := next.Validate(); err != nil {
			return nil, err
		}

		updated := *current
		updated.Params = next
		ok, err := s.repos.CalcParams.Update(ctx, &updated)
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("parameters updated", "project_id", projectID, "revision", updated.Revision)
			return &updated, nil
		}
	}
	return nil, fmt.Errorf("%w: parameters of project %s changed concurrently", ErrConflict, projectID)
}

// Calculate prices the project's processed model with its current
// parameters and stores the result pinned to both.
func (s *CalcService) Calculate(ctx context.Context, projectID string) (*models.CalcResult, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	model, err := s.repos.Model.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	switch {
	case model == nil:
		return nil, fmt.Errorf("%w: project %s has no model", ErrNotReady, projectID)
	case model.Status != models.ModelStatusDone:
		return nil, fmt.Errorf("%w: model %s is %s", ErrNotReady, model.ID, model.Status)
	case model.Metrics == nil || model.Metrics.Volume <= 0:
		return nil, fmt.Errorf("%w: model %s has no volume", ErrNotReady, model.ID)
	}

	params, err := s.GetParams(ctx, projectID)
	if err != nil {
		return nil, err
	}

	quote, err := pricing.Calculate(model.Metrics.Volume, params.Params)
	if err != nil {
		return nil, err
	}

	result := &models.CalcResult{
		ID:              ulid.Make().String(),
		ProjectID:       projectID,
		ModelID:         model.ID,
		ModelGeneration: model.Generation,
		ParamsRevision:  params.Revision,
		Result:          *quote,
		Quantity:        params.Quantity,
		IsBatch:         params.IsBatch,
		Currency:        params.Currency,
		CalculatedAt:    time.Now().UTC(),
	}
	ok, err := s.repos.CalcResult.Upsert(ctx, result)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: model or parameters of project %s changed during calculation", ErrConflict, projectID)
	}

	data := map[string]interface{}{
		"project_id":       projectID,
		"model_id":         model.ID,
		"model_generation": model.Generation,
		"params_revision":  params.Revision,
		"price_per_unit":   result.PricePerUnit,
		"total_price":      result.TotalPrice,
		"quantity":         result.Quantity,
		"currency":         result.Currency,
	}
	if err := s.events.Publish(ctx, events.NewEvent(events.CalculationCompleted, projectID, data)); err != nil {
		s.logger.Warn("failed to publish event", "type", events.CalculationCompleted, "error", err)
	}

	s.logger.Info("quote calculated",
		"project_id", projectID,
		"model_id", model.ID,
		"params_revision", params.Revision,
		"total_price", result.TotalPrice,
	)
	return result, nil
}

// GetResult returns the stored result.
func (s *CalcService) GetResult(ctx context.Context, projectID string) (*models.CalcResult, error) {
	result, err := s.repos.CalcResult.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: project %s has no calculation", ErrNotFound, projectID)
	}
	return result, nil
}
