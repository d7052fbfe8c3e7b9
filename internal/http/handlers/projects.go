package handlers

import (
	"context"

	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/service"
)

// ProjectService is what the project handlers need from the service layer.
type ProjectService interface {
	Create(ctx context.Context, input service.ProjectInput) (*models.Project, error)
	List(ctx context.Context, limit, offset int) ([]*models.ProjectSummary, error)
	Detail(ctx context.Context, id string) (*service.ProjectDetail, error)
	Update(ctx context.Context, id string, input service.ProjectInput) (*models.Project, error)
	Delete(ctx context.Context, id string) error
}

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	svc ProjectService
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(svc ProjectService) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

// ProjectFields are the writable project fields.
type ProjectFields struct {
	Name    *string `json:"name,omitempty" maxLength:"255" doc:"Project name"`
	Date    *string `json:"date,omitempty" doc:"Order date (YYYY-MM-DD)"`
	Client  *string `json:"client,omitempty" doc:"Client name"`
	Contact *string `json:"contact,omitempty" doc:"Client contact"`
	Notes   *string `json:"notes,omitempty" doc:"Free-form notes"`
}

func (f ProjectFields) input() service.ProjectInput {
	return service.ProjectInput{
		Name:    f.Name,
		Date:    f.Date,
		Client:  f.Client,
		Contact: f.Contact,
		Notes:   f.Notes,
	}
}

// ProjectOutput wraps a single project.
type ProjectOutput struct {
	Body *models.Project
}

// ListProjectsInput represents list projects request.
type ListProjectsInput struct {
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"100" doc:"Page size"`
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Page offset"`
}

// ListProjectsOutput represents list projects response.
type ListProjectsOutput struct {
	Body struct {
		Projects []*models.ProjectSummary `json:"projects" doc:"Projects, newest first"`
	}
}

// ListProjects returns projects newest first.
func (h *ProjectHandler) ListProjects(ctx context.Context, input *ListProjectsInput) (*ListProjectsOutput, error) {
	projects, err := h.svc.List(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, toHumaError(err, "list projects")
	}
	out := &ListProjectsOutput{}
	out.Body.Projects = projects
	if out.Body.Projects == nil {
		out.Body.Projects = []*models.ProjectSummary{}
	}
	return out, nil
}

// CreateProjectInput represents create project request.
type CreateProjectInput struct {
	Body ProjectFields
}

// CreateProject creates a project.
func (h *ProjectHandler) CreateProject(ctx context.Context, input *CreateProjectInput) (*ProjectOutput, error) {
	project, err := h.svc.Create(ctx, input.Body.input())
	if err != nil {
		return nil, toHumaError(err, "create project")
	}
	return &ProjectOutput{Body: project}, nil
}

// ProjectIDInput identifies a project by path.
type ProjectIDInput struct {
	ID string `path:"id" doc:"Project ID"`
}

// ProjectDetailOutput is a project with its model, parameters, quote and
// generated text.
type ProjectDetailOutput struct {
	Body struct {
		models.Project
		Model  *models.Model      `json:"model,omitempty"`
		Params *models.CalcParams `json:"params,omitempty"`
		Result *models.CalcResult `json:"result,omitempty"`
		AiText *models.AiText     `json:"ai_text,omitempty"`
	}
}

// GetProject returns a project with everything attached to it.
func (h *ProjectHandler) GetProject(ctx context.Context, input *ProjectIDInput) (*ProjectDetailOutput, error) {
	detail, err := h.svc.Detail(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err, "get project")
	}
	out := &ProjectDetailOutput{}
	out.Body.Project = *detail.Project
	out.Body.Model = detail.Model
	out.Body.Params = detail.Params
	out.Body.Result = detail.Result
	out.Body.AiText = detail.AiText
	return out, nil
}

// UpdateProjectInput represents a partial project update.
type UpdateProjectInput struct {
	ID   string `path:"id" doc:"Project ID"`
	Body ProjectFields
}

// UpdateProject applies a partial update.
func (h *ProjectHandler) UpdateProject(ctx context.Context, input *UpdateProjectInput) (*ProjectOutput, error) {
	project, err := h.svc.Update(ctx, input.ID, input.Body.input())
	if err != nil {
		return nil, toHumaError(err, "update project")
	}
	return &ProjectOutput{Body: project}, nil
}

// DeleteProject removes a project and everything attached to it.
func (h *ProjectHandler) DeleteProject(ctx context.Context, input *ProjectIDInput) (*struct{}, error) {
	if err := h.svc.Delete(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "delete project")
	}
	return nil, nil
}
