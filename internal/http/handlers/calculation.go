package handlers

import (
	"context"

	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/pricing"
)

// CalcService is what the calculation handlers need from the service layer.
type CalcService interface {
	GetParams(ctx context.Context, projectID string) (*models.CalcParams, error)
	UpdateParams(ctx context.Context, projectID string, patch pricing.Patch) (*models.CalcParams, error)
	Calculate(ctx context.Context, projectID string) (*models.CalcResult, error)
}

// AiTextService is what the text handlers need from the service layer.
type AiTextService interface {
	Generate(ctx context.Context, projectID, language string) (*models.AiText, error)
	Get(ctx context.Context, projectID string) (*models.AiText, error)
}

// CalcHandler handles pricing parameters, calculation and generated text.
type CalcHandler struct {
	calc  CalcService
	texts AiTextService
}

// NewCalcHandler creates a new calculation handler.
func NewCalcHandler(calc CalcService, texts AiTextService) *CalcHandler {
	return &CalcHandler{calc: calc, texts: texts}
}

// ParamsOutput wraps a project's pricing parameters.
type ParamsOutput struct {
	Body *models.CalcParams
}

// GetParams returns the project's parameters, creating defaults on first
// access.
func (h *CalcHandler) GetParams(ctx context.Context, input *ProjectIDInput) (*ParamsOutput, error) {
	params, err := h.calc.GetParams(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err, "get parameters")
	}
	return &ParamsOutput{Body: params}, nil
}

// UpdateParamsInput is a partial parameter update.
type UpdateParamsInput struct {
	ID   string `path:"id" doc:"Project ID"`
	Body pricing.Patch
}

// UpdateParams merges and validates a partial parameter update. Any stored
// calculation of the project is invalidated.
func (h *CalcHandler) UpdateParams(ctx context.Context, input *UpdateParamsInput) (*ParamsOutput, error) {
	params, err := h.calc.UpdateParams(ctx, input.ID, input.Body)
	if err != nil {
		return nil, toHumaError(err, "update parameters")
	}
	return &ParamsOutput{Body: params}, nil
}

// CalculationOutput wraps a calculation result.
type CalculationOutput struct {
	Body *models.CalcResult
}

// GetCalculation prices the project's processed model with its current
// parameters.
func (h *CalcHandler) GetCalculation(ctx context.Context, input *ProjectIDInput) (*CalculationOutput, error) {
	result, err := h.calc.Calculate(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err, "calculate")
	}
	return &CalculationOutput{Body: result}, nil
}

// AiTextRequest selects the primary language of generated text.
type AiTextRequest struct {
	Language string `json:"language,omitempty" enum:"en,ru" doc:"Primary language; defaults to the parameters' language"`
}

// GenerateAiTextInput represents a text generation request.
type GenerateAiTextInput struct {
	ID   string         `path:"id" doc:"Project ID"`
	Body *AiTextRequest `required:"false"`
}

// AiTextOutput wraps generated texts.
type AiTextOutput struct {
	Body *models.AiText
}

// GenerateAiText writes descriptive and commercial texts for the project's
// latest calculation.
func (h *CalcHandler) GenerateAiText(ctx context.Context, input *GenerateAiTextInput) (*AiTextOutput, error) {
	language := ""
	if input.Body != nil {
		language = input.Body.Language
	}
	text, err := h.texts.Generate(ctx, input.ID, language)
	if err != nil {
		return nil, toHumaError(err, "generate text")
	}
	return &AiTextOutput{Body: text}, nil
}

// GetAiText returns the stored texts of a project.
func (h *CalcHandler) GetAiText(ctx context.Context, input *ProjectIDInput) (*AiTextOutput, error) {
	text, err := h.texts.Get(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err, "get text")
	}
	return &AiTextOutput{Body: text}, nil
}
