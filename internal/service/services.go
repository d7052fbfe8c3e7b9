// Package service contains the business logic layer.
package service

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/meshquote-api/internal/config"
	"github.com/jmylchreest/meshquote-api/internal/events"
	"github.com/jmylchreest/meshquote-api/internal/llm"
	"github.com/jmylchreest/meshquote-api/internal/queue"
	"github.com/jmylchreest/meshquote-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Project *ProjectService
	Model   *ModelService
	Calc    *CalcService
	AiText  *AiTextService
	Storage *StorageService
	Cleanup *CleanupService
}

// NewServices creates all service instances. The queue and publisher are
// owned by the caller.
func NewServices(cfg *config.Config, repos *repository.Repositories, q queue.Queue, publisher events.Publisher, logger *slog.Logger) (*Services, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	var generator TextGenerator = TemplateGenerator{}
	if cfg.TextGenerationEnabled() {
		generator = NewLLMGenerator(llm.NewClient(llm.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemperature,
		}, logger))
		logger.Info("text generation enabled", "model", cfg.OpenAIModel)
	} else {
		logger.Warn("OPENAI_API_KEY not configured - texts use the built-in templates")
	}

	modelSvc := NewModelService(repos, storageSvc, q, publisher, ModelServiceConfig{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxTriangles:   cfg.MeshMaxTriangles,
	}, logger)

	return &Services{
		Project: NewProjectService(repos, storageSvc, publisher, logger),
		Model:   modelSvc,
		Calc:    NewCalcService(repos, publisher, logger),
		AiText:  NewAiTextService(repos, generator, logger),
		Storage: storageSvc,
		Cleanup: NewCleanupService(repos.Model, storageSvc, logger),
	}, nil
}

// SetCanceller wires the worker's in-flight registry into every service
// that removes or supersedes models.
func (s *Services) SetCanceller(c InflightCanceller) {
	s.Model.SetCanceller(c)
	s.Project.SetCanceller(c)
}
