// Package routes provides shared route registration for the meshquote API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, ensuring the spec is always in sync.
package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/meshquote-api/internal/http/handlers"
)

// ProjectHandlers defines the interface for project operations.
type ProjectHandlers interface {
	ListProjects(ctx context.Context, input *handlers.ListProjectsInput) (*handlers.ListProjectsOutput, error)
	CreateProject(ctx context.Context, input *handlers.CreateProjectInput) (*handlers.ProjectOutput, error)
	GetProject(ctx context.Context, input *handlers.ProjectIDInput) (*handlers.ProjectDetailOutput, error)
	UpdateProject(ctx context.Context, input *handlers.UpdateProjectInput) (*handlers.ProjectOutput, error)
	DeleteProject(ctx context.Context, input *handlers.ProjectIDInput) (*struct{}, error)
}

// ModelHandlers defines the interface for model operations.
type ModelHandlers interface {
	GetModel(ctx context.Context, input *handlers.GetModelInput) (*handlers.ModelOutput, error)
	GetProjectModel(ctx context.Context, input *handlers.GetProjectModelInput) (*handlers.ModelOutput, error)
	DeleteModel(ctx context.Context, input *handlers.ModelIDInput) (*struct{}, error)
	DeleteProjectModel(ctx context.Context, input *handlers.ProjectIDInput) (*struct{}, error)
	ReprocessModel(ctx context.Context, input *handlers.ProjectIDInput) (*handlers.ModelOutput, error)
	// RegisterRawEndpoints registers the multipart upload and file download
	// for OpenAPI documentation.
	RegisterRawEndpoints(api huma.API)
}

// CalcHandlers defines the interface for parameter, calculation and text
// operations.
type CalcHandlers interface {
	GetParams(ctx context.Context, input *handlers.ProjectIDInput) (*handlers.ParamsOutput, error)
	UpdateParams(ctx context.Context, input *handlers.UpdateParamsInput) (*handlers.ParamsOutput, error)
	GetCalculation(ctx context.Context, input *handlers.ProjectIDInput) (*handlers.CalculationOutput, error)
	GenerateAiText(ctx context.Context, input *handlers.GenerateAiTextInput) (*handlers.AiTextOutput, error)
	GetAiText(ctx context.Context, input *handlers.ProjectIDInput) (*handlers.AiTextOutput, error)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes health checks (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	Project ProjectHandlers
	Model   ModelHandlers
	Calc    CalcHandlers
}
