package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/meshquote-api/internal/llm"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/repository"
)

// Generator names stored with generated texts.
const (
	GeneratorTemplate = "template"
	GeneratorLLM      = "llm"
)

// TextFacts are the quote details texts are written from.
type TextFacts struct {
	ProjectName  string
	Client       string
	Technology   string
	DimX         float64
	DimY         float64
	DimZ         float64
	Volume       float64
	Weight       float64
	MaterialCost float64
	PricePerUnit float64
	TotalPrice   float64
	Quantity     int
	Currency     string
}

// GeneratedTexts holds both texts in both languages.
type GeneratedTexts struct {
	DescriptionEN    string `json:"description_en"`
	DescriptionRU    string `json:"description_ru"`
	CommercialTextEN string `json:"commercial_text_en"`
	CommercialTextRU string `json:"commercial_text_ru"`
}

// TextGenerator writes descriptive texts for a quote.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, facts TextFacts) (*GeneratedTexts, error)
}

// AiTextService produces and stores texts for calculated projects.
type AiTextService struct {
	repos     *repository.Repositories
	generator TextGenerator
	logger    *slog.Logger
}

// NewAiTextService creates a new text service.
func NewAiTextService(repos *repository.Repositories, generator TextGenerator, logger *slog.Logger) *AiTextService {
	if generator == nil {
		generator = TemplateGenerator{}
	}
	return &AiTextService{
		repos:     repos,
		generator: generator,
		logger:    logger.With("component", "aitext", "generator", generator.Name()),
	}
}

// Generate writes texts for the project's stored result. language selects
// the primary description ("en" or "ru"); empty uses the parameters'
// language.
func (s *AiTextService) Generate(ctx context.Context, projectID, language string) (*models.AiText, error) {
	project, err := s.repos.Project.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}

	result, err := s.repos.CalcResult.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: project %s has no calculation", ErrNotReady, projectID)
	}
	model, err := s.repos.Model.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	params, err := s.repos.CalcParams.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if model == nil || model.Metrics == nil || params == nil {
		return nil, fmt.Errorf("%w: project %s changed since its calculation", ErrConflict, projectID)
	}

	if language == "" {
		language = params.Language
	}
	language = strings.ToLower(language)
	if language != "en" && language != "ru" {
		return nil, fmt.Errorf("%w: language must be en or ru", ErrInvalidInput)
	}

	facts := TextFacts{
		ProjectName:  project.Name,
		Client:       project.Client,
		Technology:   string(params.Technology),
		DimX:         model.Metrics.DimX,
		DimY:         model.Metrics.DimY,
		DimZ:         model.Metrics.DimZ,
		Volume:       model.Metrics.Volume,
		Weight:       result.Weight,
		MaterialCost: result.MaterialCost,
		PricePerUnit: result.PricePerUnit,
		TotalPrice:   result.TotalPrice,
		Quantity:     result.Quantity,
		Currency:     result.Currency,
	}

	start := time.Now()
	texts, err := s.generator.Generate(ctx, facts)
	if err != nil {
		s.logger.Error("text generation failed", "project_id", projectID, "error", err)
		return nil, err
	}

	text := &models.AiText{
		ID:               ulid.Make().String(),
		ProjectID:        projectID,
		CalcResultID:     result.ID,
		Language:         language,
		DescriptionEN:    texts.DescriptionEN,
		DescriptionRU:    texts.DescriptionRU,
		CommercialTextEN: texts.CommercialTextEN,
		CommercialTextRU: texts.CommercialTextRU,
		Generator:        s.generator.Name(),
		GeneratedAt:      time.Now().UTC(),
	}
	if language == "ru" {
		text.Description, text.CommercialText = texts.DescriptionRU, texts.CommercialTextRU
	} else {
		text.Description, text.CommercialText = texts.DescriptionEN, texts.CommercialTextEN
	}

	ok, err := s.repos.AiText.Upsert(ctx, text)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: calculation of project %s was invalidated during generation", ErrConflict, projectID)
	}

	s.logger.Info("texts generated", "project_id", projectID, "language", language, "duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Get returns the stored texts.
func (s *AiTextService) Get(ctx context.Context, projectID string) (*models.AiText, error) {
	text, err := s.repos.AiText.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if text == nil {
		return nil, fmt.Errorf("%w: project %s has no generated text", ErrNotFound, projectID)
	}
	return text, nil
}

// ========================================
// Generators
// ========================================

// TemplateGenerator fills fixed bilingual templates. It is used when no
// language model is configured.
type TemplateGenerator struct{}

func (TemplateGenerator) Name() string { return GeneratorTemplate }

func (TemplateGenerator) Generate(_ context.Context, f TextFacts) (*GeneratedTexts, error) {
	dims := fmt.Sprintf("%.1f × %.1f × %.1f mm", f.DimX, f.DimY, f.DimZ)
	client := f.Client
	if client == "" {
		client = "N/A"
	}
	return &GeneratedTexts{
		DescriptionEN: fmt.Sprintf(
			"%s: %s-printed part measuring %s with a volume of %.1f cm³ and a weight of %.1f g. Quantity: %d. Client: %s.",
			f.ProjectName, f.Technology, dims, f.Volume, f.Weight, f.Quantity, client),
		DescriptionRU: fmt.Sprintf(
			"%s: деталь, изготовленная по технологии %s, размеры %s, объём %.1f см³, масса %.1f г. Количество: %d. Заказчик: %s.",
			f.ProjectName, f.Technology, dims, f.Volume, f.Weight, f.Quantity, client),
		CommercialTextEN: fmt.Sprintf(
			"Precision %s manufacturing for %s. Each unit is produced to a %s envelope with consistent quality. Price per unit: %.2f %s, total for %d units: %.2f %s.",
			f.Technology, f.ProjectName, dims, f.PricePerUnit, f.Currency, f.Quantity, f.TotalPrice, f.Currency),
		CommercialTextRU: fmt.Sprintf(
			"Точное изготовление по технологии %s для проекта «%s». Каждое изделие в габаритах %s со стабильным качеством. Цена за единицу: %.2f %s, итого за %d шт.: %.2f %s.",
			f.Technology, f.ProjectName, dims, f.PricePerUnit, f.Currency, f.Quantity, f.TotalPrice, f.Currency),
	}, nil
}

// llmAttempts bounds the calls made for one generation. Only errors the
// provider marks retryable (rate limits, overload, timeouts) are repeated.
const llmAttempts = 2

// LLMGenerator asks an OpenAI-compatible model for the texts in JSON mode.
type LLMGenerator struct {
	client     *llm.Client
	retryDelay time.Duration
}

// NewLLMGenerator creates a generator backed by client.
func NewLLMGenerator(client *llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client, retryDelay: 2 * time.Second}
}

func (g *LLMGenerator) Name() string { return GeneratorLLM }

func (g *LLMGenerator) Generate(ctx context.Context, f TextFacts) (*GeneratedTexts, error) {
	messages := []llm.Message{{Role: "user", Content: buildTextPrompt(f)}}
	var out GeneratedTexts
	for attempt := 1; ; attempt++ {
		_, err := g.client.ChatJSON(ctx, messages, &out)
		if err == nil {
			break
		}
		if attempt >= llmAttempts || !llm.IsRetryable(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(g.retryDelay):
		}
	}
	if out.DescriptionEN == "" && out.CommercialTextEN == "" {
		return nil, &llm.LLMError{Err: llm.ErrInvalidResponse, Model: g.client.Model(), UserMessage: "LLM returned no texts"}
	}
	return &out, nil
}

func buildTextPrompt(f TextFacts) string {
	client := f.Client
	if client == "" {
		client = "N/A"
	}
	var b strings.Builder
	b.WriteString("You are an expert technical writer for a 3D printing service.\n\n")
	b.WriteString("Given the following 3D-printed part details, generate four texts, two in English and two in Russian:\n\n")
	b.WriteString("1. description_en: a concise 2-3 sentence technical description in English suitable for an invoice or order specification. Include dimensions, technology and key characteristics.\n")
	b.WriteString("2. description_ru: the same technical description in Russian.\n")
	b.WriteString("3. commercial_text_en: a short marketing paragraph (3-5 sentences) in English for a product catalog or client proposal.\n")
	b.WriteString("4. commercial_text_ru: the same marketing paragraph in Russian.\n\n")
	b.WriteString("Part details:\n")
	fmt.Fprintf(&b, "- Project name: %s\n", f.ProjectName)
	fmt.Fprintf(&b, "- Client: %s\n", client)
	fmt.Fprintf(&b, "- Technology: %s\n", f.Technology)
	fmt.Fprintf(&b, "- Dimensions: %.1f × %.1f × %.1f mm\n", f.DimX, f.DimY, f.DimZ)
	fmt.Fprintf(&b, "- Volume: %.1f cm³\n", f.Volume)
	fmt.Fprintf(&b, "- Weight: %.1f g\n", f.Weight)
	fmt.Fprintf(&b, "- Material cost: %.2f %s\n", f.MaterialCost, f.Currency)
	fmt.Fprintf(&b, "- Price per unit: %.2f %s\n", f.PricePerUnit, f.Currency)
	fmt.Fprintf(&b, "- Quantity: %d\n", f.Quantity)
	fmt.Fprintf(&b, "- Total price: %.2f %s\n\n", f.TotalPrice, f.Currency)
	b.WriteString(`Respond with a JSON object: {"description_en": "...", "description_ru": "...", "commercial_text_en": "...", "commercial_text_ru": "..."}`)
	return b.String()
}
