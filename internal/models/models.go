// Package models defines the persisted records of the quoting service.
package models

import (
	"time"

	"github.com/jmylchreest/meshquote-api/internal/mesh"
	"github.com/jmylchreest/meshquote-api/internal/pricing"
)

// Project groups one uploaded model with its parameters and quote.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Date      string    `json:"date,omitempty"` // YYYY-MM-DD, free-form order date
	Client    string    `json:"client,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectSummary is a list row with the state of the project's model.
type ProjectSummary struct {
	Project
	HasModel    bool        `json:"has_model"`
	ModelStatus ModelStatus `json:"model_status,omitempty"`
}

// ModelStatus is the ingestion state of an uploaded model.
type ModelStatus string

const (
	ModelStatusQueued     ModelStatus = "queued"
	ModelStatusProcessing ModelStatus = "processing"
	ModelStatusDone       ModelStatus = "done"
	ModelStatusError      ModelStatus = "error"
)

// IsTerminal reports whether processing has finished, successfully or not.
func (s ModelStatus) IsTerminal() bool {
	return s == ModelStatusDone || s == ModelStatusError
}

// ModelMetrics holds the geometry extracted from a processed model.
// Lengths are millimetres, volume is cm³.
type ModelMetrics struct {
	DimX                float64 `json:"dim_x"`
	DimY                float64 `json:"dim_y"`
	DimZ                float64 `json:"dim_z"`
	Volume              float64 `json:"volume"`
	Polygons            int     `json:"polygons"`
	SurfaceArea         float64 `json:"surface_area"`
	DegenerateTriangles int     `json:"degenerate_triangles"`
	FlippedTriangles    int     `json:"flipped_triangles"`
	Watertight          bool    `json:"watertight"`
}

// Model is an uploaded mesh file and its ingestion state. Metrics is set only
// when Status is done and ErrorMessage only when Status is error.
type Model struct {
	ID           string      `json:"id"`
	ProjectID    string      `json:"project_id"`
	StorageKey   string      `json:"-"`
	OriginalName string      `json:"original_name"`
	Format       mesh.Format `json:"format"`
	SizeBytes    int64       `json:"size_bytes"`
	DetectedType string      `json:"detected_type,omitempty"` // sniffed MIME type of the upload
	Status       ModelStatus `json:"status"`
	// Generation increases on every (re)submission; write-backs carry the
	// generation they were started with and are dropped when it moved on.
	Generation   int64         `json:"generation"`
	Metrics      *ModelMetrics `json:"metrics,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// CalcParams are the stored pricing parameters of a project.
type CalcParams struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	// Revision increases on every change so results can be pinned to it.
	Revision int64 `json:"revision"`
	pricing.Params
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalcResult is a stored quote, pinned to the model generation and
// parameter revision it was computed from.
type CalcResult struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	ModelID         string `json:"model_id"`
	ModelGeneration int64  `json:"model_generation"`
	ParamsRevision  int64  `json:"params_revision"`
	pricing.Result
	Quantity     int       `json:"quantity"`
	IsBatch      bool      `json:"is_batch"`
	Currency     string    `json:"currency"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// AiText is generated marketing copy for a quoted project.
type AiText struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	CalcResultID     string    `json:"calc_result_id"`
	Language         string    `json:"language"`
	Description      string    `json:"description"`
	CommercialText   string    `json:"commercial_text"`
	DescriptionEN    string    `json:"description_en"`
	DescriptionRU    string    `json:"description_ru"`
	CommercialTextEN string    `json:"commercial_text_en"`
	CommercialTextRU string    `json:"commercial_text_ru"`
	Generator        string    `json:"generator"`
	GeneratedAt      time.Time `json:"generated_at"`
}
