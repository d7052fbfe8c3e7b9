package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/meshquote-api/internal/events"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/repository"
)

// MaxProjectNameLength bounds project names.
const MaxProjectNameLength = 255

// ProjectService handles project CRUD.
type ProjectService struct {
	repos     *repository.Repositories
	storage   *StorageService
	events    events.Publisher
	canceller InflightCanceller
	logger    *slog.Logger
}

// NewProjectService creates a new project service.
func NewProjectService(repos *repository.Repositories, storage *StorageService, publisher events.Publisher, logger *slog.Logger) *ProjectService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ProjectService{
		repos:   repos,
		storage: storage,
		events:  publisher,
		logger:  logger.With("component", "projects"),
	}
}

// SetCanceller wires the worker's in-flight registry.
func (s *ProjectService) SetCanceller(c InflightCanceller) {
	s.canceller = c
}

// ProjectInput holds project fields for create and update. Nil fields are
// left unchanged on update.
type ProjectInput struct {
	Name    *string
	Date    *string
	Client  *string
	Contact *string
	Notes   *string
}

// ProjectDetail is a project with everything attached to it.
type ProjectDetail struct {
	Project *models.Project
	Model   *models.Model
	Params  *models.CalcParams
	Result  *models.CalcResult
	AiText  *models.AiText
}

func (in ProjectInput) apply(p *models.Project) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Date != nil {
		p.Date = strings.TrimSpace(*in.Date)
	}
	if in.Client != nil {
		p.Client = *in.Client
	}
	if in.Contact != nil {
		p.Contact = *in.Contact
	}
	if in.Notes != nil {
		p.Notes = *in.Notes
	}

	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len([]rune(p.Name)) > MaxProjectNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, MaxProjectNameLength)
	}
	if p.Date != "" {
		if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
		}
	}
	return nil
}

// Create creates a new project.
func (s *ProjectService) Create(ctx context.Context, input ProjectInput) (*models.Project, error) {
	now := time.Now().UTC()
	project := &models.Project{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := input.apply(project); err != nil {
		return nil, err
	}
	if err := s.repos.Project.Create(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project_id", project.ID)
	return project, nil
}

// List returns projects newest first.
func (s *ProjectService) List(ctx context.Context, limit, offset int) ([]*models.ProjectSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repos.Project.List(ctx, limit, offset)
}

// Get returns a project.
func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.repos.Project.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return project, nil
}

// Detail returns a project with its model, parameters, result and text.
// Parts that do not exist yet are nil.
func (s *ProjectService) Detail(ctx context.Context, id string) (*ProjectDetail, error) {
	project, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &ProjectDetail{Project: project}

	if detail.Model, err = s.repos.Model.GetByProjectID(ctx, id); err != nil {
		return nil, err
	}
	if detail.Params, err = s.repos.CalcParams.GetByProjectID(ctx, id); err != nil {
		return nil, err
	}
	if detail.Result, err = s.repos.CalcResult.GetByProjectID(ctx, id); err != nil {
		return nil, err
	}
	if detail.AiText, err = s.repos.AiText.GetByProjectID(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

// Update applies a partial update.
func (s *ProjectService) Update(ctx context.Context, id string, input ProjectInput) (*models.Project, error) {
	project, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.apply(project); err != nil {
		return nil, err
	}
	project.UpdatedAt = time.Now().UTC()
	if err := s.repos.Project.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Delete removes a project with its model, file, parameters, result and
// text.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	model, err := s.repos.Model.GetByProjectID(ctx, id)
	if err != nil {
		return err
	}

	deleted, keys, err := s.repos.Project.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}

	if model != nil {
		if s.canceller != nil {
			s.canceller.Cancel(model.ID, allGenerations)
		}
		data := map[string]interface{}{
			"model_id":   model.ID,
			"project_id": id,
			"generation": model.Generation,
			"reason":     "project_deleted",
		}
		if err := s.events.Publish(ctx, events.NewEvent(events.ModelDeleted, id, data)); err != nil {
			s.logger.Warn("failed to publish event", "type", events.ModelDeleted, "error", err)
		}
	}
	for _, key := range keys {
		if err := s.storage.DeleteModel(ctx, key); err != nil {
			s.logger.Warn("failed to remove model file of deleted project", "project_id", id, "key", key, "error", err)
		}
	}

	s.logger.Info("project deleted", "project_id", id, "files", len(keys))
	return nil
}
