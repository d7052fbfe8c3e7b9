// Package repository provides SQLite data access for projects, models,
// calculation parameters, results and generated texts.
//
// Single-row reads return (nil, nil) when the row does not exist; callers
// translate that into their own not-found error.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/models"
)

// ProjectRepository defines methods for project data access.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	// List returns projects newest first together with their model state.
	List(ctx context.Context, limit, offset int) ([]*models.ProjectSummary, error)
	Update(ctx context.Context, project *models.Project) error
	// Delete removes the project and everything attached to it. It returns
	// the storage keys of any model files that should now be removed.
	Delete(ctx context.Context, id string) (deleted bool, storageKeys []string, err error)
}

// ModelRepository defines methods for uploaded model data access.
// Write-backs from processing are fenced by the model generation.
type ModelRepository interface {
	GetByID(ctx context.Context, id string) (*models.Model, error)
	GetByProjectID(ctx context.Context, projectID string) (*models.Model, error)
	// Replace removes any model of the project together with its result and
	// inserts model in one transaction. The removed model is returned.
	Replace(ctx context.Context, model *models.Model) (*models.Model, error)
	// ClaimJob moves a queued model to processing. It returns nil when the
	// model is not queued.
	ClaimJob(ctx context.Context, id string) (*models.Model, error)
	// ClaimPending claims the oldest queued model, or returns nil.
	ClaimPending(ctx context.Context) (*models.Model, error)
	// Complete records metrics if the model is still processing the given
	// generation. It reports whether the write took effect.
	Complete(ctx context.Context, id string, generation int64, metrics *models.ModelMetrics) (bool, error)
	// Fail records an error message under the same fencing as Complete.
	Fail(ctx context.Context, id string, generation int64, message string) (bool, error)
	// Release puts a model whose processing was interrupted back to queued,
	// under the same fencing as Complete.
	Release(ctx context.Context, id string, generation int64) (bool, error)
	// Requeue restarts processing under a new generation and drops the
	// project's result. It returns nil when the model does not exist.
	Requeue(ctx context.Context, id string) (*models.Model, error)
	// Delete removes a model and the project's result. It returns the
	// removed model or nil.
	Delete(ctx context.Context, id string) (*models.Model, error)
	// MarkStaleProcessingFailed fails models stuck in processing for longer
	// than maxAge and returns how many were changed.
	MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error)
	// StorageKeys lists the storage key of every model.
	StorageKeys(ctx context.Context) ([]string, error)
}

// CalcParamsRepository defines methods for calculation parameter access.
type CalcParamsRepository interface {
	GetByProjectID(ctx context.Context, projectID string) (*models.CalcParams, error)
	// Create inserts params unless the project already has some; either way
	// the stored row is returned.
	Create(ctx context.Context, params *models.CalcParams) (*models.CalcParams, error)
	// Update stores params if the stored revision still equals
	// params.Revision, bumps the revision and drops the project's result.
	Update(ctx context.Context, params *models.CalcParams) (bool, error)
}

// CalcResultRepository defines methods for stored quote access.
type CalcResultRepository interface {
	GetByProjectID(ctx context.Context, projectID string) (*models.CalcResult, error)
	// Upsert stores result only while the model generation and parameter
	// revision it was computed from are still current.
	Upsert(ctx context.Context, result *models.CalcResult) (bool, error)
	DeleteByProjectID(ctx context.Context, projectID string) error
}

// AiTextRepository defines methods for generated text access.
type AiTextRepository interface {
	GetByProjectID(ctx context.Context, projectID string) (*models.AiText, error)
	// Upsert stores text only while the result it describes still exists.
	Upsert(ctx context.Context, text *models.AiText) (bool, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Project    ProjectRepository
	Model      ModelRepository
	CalcParams CalcParamsRepository
	CalcResult CalcResultRepository
	AiText     AiTextRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Project:    NewSQLiteProjectRepository(db),
		Model:      NewSQLiteModelRepository(db),
		CalcParams: NewSQLiteCalcParamsRepository(db),
		CalcResult: NewSQLiteCalcResultRepository(db),
		AiText:     NewSQLiteAiTextRepository(db),
	}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// dropResult removes a project's result and the text generated from it.
func dropResult(ctx context.Context, ex execer, projectID string) error {
	if _, err := ex.ExecContext(ctx, "DELETE FROM ai_texts WHERE project_id = ?", projectID); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx, "DELETE FROM calc_results WHERE project_id = ?", projectID)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
