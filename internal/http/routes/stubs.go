package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/meshquote-api/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(nil, nil).Readyz,
		Project:     stubProjectHandlers{},
		Model:       stubModelHandlers{raw: handlers.NewModelHandler(nil, 0)},
		Calc:        stubCalcHandlers{},
	}
}

type stubProjectHandlers struct{}

func (stubProjectHandlers) ListProjects(context.Context, *handlers.ListProjectsInput) (*handlers.ListProjectsOutput, error) {
	return nil, nil
}

func (stubProjectHandlers) CreateProject(context.Context, *handlers.CreateProjectInput) (*handlers.ProjectOutput, error) {
	return nil, nil
}

func (stubProjectHandlers) GetProject(context.Context, *handlers.ProjectIDInput) (*handlers.ProjectDetailOutput, error) {
	return nil, nil
}

func (stubProjectHandlers) UpdateProject(context.Context, *handlers.UpdateProjectInput) (*handlers.ProjectOutput, error) {
	return nil, nil
}

func (stubProjectHandlers) DeleteProject(context.Context, *handlers.ProjectIDInput) (*struct{}, error) {
	return nil, nil
}

type stubModelHandlers struct {
	raw *handlers.ModelHandler
}

func (stubModelHandlers) GetModel(context.Context, *handlers.GetModelInput) (*handlers.ModelOutput, error) {
	return nil, nil
}

func (stubModelHandlers) GetProjectModel(context.Context, *handlers.GetProjectModelInput) (*handlers.ModelOutput, error) {
	return nil, nil
}

func (stubModelHandlers) DeleteModel(context.Context, *handlers.ModelIDInput) (*struct{}, error) {
	return nil, nil
}

func (stubModelHandlers) DeleteProjectModel(context.Context, *handlers.ProjectIDInput) (*struct{}, error) {
	return nil, nil
}

func (stubModelHandlers) ReprocessModel(context.Context, *handlers.ProjectIDInput) (*handlers.ModelOutput, error) {
	return nil, nil
}

func (s stubModelHandlers) RegisterRawEndpoints(api huma.API) {
	s.raw.RegisterRawEndpoints(api)
}

type stubCalcHandlers struct{}

func (stubCalcHandlers) GetParams(context.Context, *handlers.ProjectIDInput) (*handlers.ParamsOutput, error) {
	return nil, nil
}

func (stubCalcHandlers) UpdateParams(context.Context, *handlers.UpdateParamsInput) (*handlers.ParamsOutput, error) {
	return nil, nil
}

func (stubCalcHandlers) GetCalculation(context.Context, *handlers.ProjectIDInput) (*handlers.CalculationOutput, error) {
	return nil, nil
}

func (stubCalcHandlers) GenerateAiText(context.Context, *handlers.GenerateAiTextInput) (*handlers.AiTextOutput, error) {
	return nil, nil
}

func (stubCalcHandlers) GetAiText(context.Context, *handlers.ProjectIDInput) (*handlers.AiTextOutput, error) {
	return nil, nil
}
