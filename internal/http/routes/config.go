package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/meshquote-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Meshquote API", version.Get().Short())
	cfg.Info.Description = "Ingests 3D models (STL, OBJ, 3MF), measures them and prices their manufacture."

	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Projects", Description: "Projects grouping a model, its parameters and its quote", Extensions: map[string]any{"x-displayName": "Projects"}},
		{Name: "Models", Description: "Model upload, processing status and download", Extensions: map[string]any{"x-displayName": "Models"}},
		{Name: "Calculation", Description: "Pricing parameters, cost calculation and generated text", Extensions: map[string]any{"x-displayName": "Calculation"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
