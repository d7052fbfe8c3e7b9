package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/mesh"
	"github.com/jmylchreest/meshquote-api/internal/models"
)

// StaleProcessingMessage is recorded on models whose processing never finished.
const StaleProcessingMessage = "processing interrupted: server restart or timeout"

const modelColumns = `id, project_id, storage_key, original_name, format, size_bytes, detected_type,
	status, generation, dim_x, dim_y, dim_z, volume, polygons, surface_area,
	degenerate_triangles, flipped_triangles, watertight, error_message,
	started_at, completed_at, created_at, updated_at`

// SQLiteModelRepository implements ModelRepository for SQLite.
type SQLiteModelRepository struct {
	db *sql.DB
}

// NewSQLiteModelRepository creates a new SQLite model repository.
func NewSQLiteModelRepository(db *sql.DB) *SQLiteModelRepository {
	return &SQLiteModelRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*models.Model, error) {
	var m models.Model
	var format, status string
	var detectedType, errorMessage, startedAt, completedAt sql.NullString
	var createdAt, updatedAt string
	var dimX, dimY, dimZ, volume, surface sql.NullFloat64
	var polygons, degenerate, flipped, watertight sql.NullInt64

	err := row.Scan(
		&m.ID, &m.ProjectID, &m.StorageKey, &m.OriginalName, &format, &m.SizeBytes, &detectedType,
		&status, &m.Generation, &dimX, &dimY, &dimZ, &volume, &polygons, &surface,
		&degenerate, &flipped, &watertight, &errorMessage,
		&startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan model: %w", err)
	}

	m.Format = mesh.Format(format)
	m.Status = models.ModelStatus(status)
	m.DetectedType = detectedType.String
	m.StartedAt = parseNullTime(startedAt)
	m.CompletedAt = parseNullTime(completedAt)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)

	// Metrics and error message are only meaningful in their terminal state.
	switch m.Status {
	case models.ModelStatusDone:
		m.Metrics = &models.ModelMetrics{
			DimX:                dimX.Float64,
			DimY:                dimY.Float64,
			DimZ:                dimZ.Float64,
			Volume:              volume.Float64,
			Polygons:            int(polygons.Int64),
			SurfaceArea:         surface.Float64,
			DegenerateTriangles: int(degenerate.Int64),
			FlippedTriangles:    int(flipped.Int64),
			Watertight:          watertight.Int64 == 1,
		}
	case models.ModelStatusError:
		m.ErrorMessage = errorMessage.String
	}
	return &m, nil
}

func (r *SQLiteModelRepository) GetByID(ctx context.Context, id string) (*models.Model, error) {
	return scanModel(r.db.QueryRowContext(ctx, "SELECT "+modelColumns+" FROM models WHERE id = ?", id))
}

func (r *SQLiteModelRepository) GetByProjectID(ctx context.Context, projectID string) (*models.Model, error) {
	return scanModel(r.db.QueryRowContext(ctx, "SELECT "+modelColumns+" FROM models WHERE project_id = ?", projectID))
}

func (r *SQLiteModelRepository) Replace(ctx context.Context, m *models.Model) (*models.Model, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	previous, err := scanModel(tx.QueryRowContext(ctx,
		"DELETE FROM models WHERE project_id = ? RETURNING "+modelColumns, m.ProjectID))
	if err != nil {
		return nil, fmt.Errorf("failed to remove previous model: %w", err)
	}
	if err := dropResult(ctx, tx, m.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to invalidate result: %w", err)
	}

	// Generations keep increasing across replacements so a worker still
	// holding the previous model can never match the new row.
	if previous != nil && m.Generation <= previous.Generation {
		m.Generation = previous.Generation + 1
	}
	if m.Generation < 1 {
		m.Generation = 1
	}

	query := `
		INSERT INTO models (id, project_id, storage_key, original_name, format, size_bytes, detected_type,
			status, generation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		m.ID,
		m.ProjectID,
		m.StorageKey,
		m.OriginalName,
		string(m.Format),
		m.SizeBytes,
		nullString(m.DetectedType),
		m.Status,
		m.Generation,
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return previous, nil
}

func (r *SQLiteModelRepository) ClaimJob(ctx context.Context, id string) (*models.Model, error) {
	now := formatTime(time.Now())
	query := `
		UPDATE models SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING ` + modelColumns
	m, err := scanModel(r.db.QueryRowContext(ctx, query,
		models.ModelStatusProcessing, now, now, id, models.ModelStatusQueued))
	if err != nil {
		return nil, fmt.Errorf("failed to claim model: %w", err)
	}
	return m, nil
}

func (r *SQLiteModelRepository) ClaimPending(ctx context.Context) (*models.Model, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// UPDATE ... RETURNING claims and reads in one statement.
	now := formatTime(time.Now())
	query := `
		UPDATE models
		SET status = ?, started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM models
			WHERE status = ?
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING ` + modelColumns

	m, err := scanModel(tx.QueryRowContext(ctx, query,
		models.ModelStatusProcessing, now, now, models.ModelStatusQueued))
	if err != nil {
		return nil, fmt.Errorf("failed to claim model: %w", err)
	}
	if m == nil {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return m, nil
}

func (r *SQLiteModelRepository) Complete(ctx context.Context, id string, generation int64, mt *models.ModelMetrics) (bool, error) {
	now := formatTime(time.Now())
	query := `
		UPDATE models SET status = ?, dim_x = ?, dim_y = ?, dim_z = ?, volume = ?, polygons = ?,
			surface_area = ?, degenerate_triangles = ?, flipped_triangles = ?, watertight = ?,
			error_message = NULL, completed_at = ?, updated_at = ?
		WHERE id = ? AND generation = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		models.ModelStatusDone,
		mt.DimX, mt.DimY, mt.DimZ, mt.Volume, mt.Polygons,
		mt.SurfaceArea, mt.DegenerateTriangles, mt.FlippedTriangles, boolToInt(mt.Watertight),
		now, now,
		id, generation, models.ModelStatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete model: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *SQLiteModelRepository) Fail(ctx context.Context, id string, generation int64, message string) (bool, error) {
	now := formatTime(time.Now())
	query := `
		UPDATE models SET status = ?, error_message = ?,
			dim_x = NULL, dim_y = NULL, dim_z = NULL, volume = NULL, polygons = NULL,
			surface_area = NULL, degenerate_triangles = NULL, flipped_triangles = NULL, watertight = NULL,
			completed_at = ?, updated_at = ?
		WHERE id = ? AND generation = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		models.ModelStatusError, message, now, now,
		id, generation, models.ModelStatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("failed to fail model: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *SQLiteModelRepository) Release(ctx context.Context, id string, generation int64) (bool, error) {
	query := `
		UPDATE models SET status = ?, started_at = NULL, updated_at = ?
		WHERE id = ? AND generation = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		models.ModelStatusQueued, formatTime(time.Now()),
		id, generation, models.ModelStatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("failed to release model: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *SQLiteModelRepository) Requeue(ctx context.Context, id string) (*models.Model, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE models SET status = ?, generation = generation + 1,
			dim_x = NULL, dim_y = NULL, dim_z = NULL, volume = NULL, polygons = NULL,
			surface_area = NULL, degenerate_triangles = NULL, flipped_triangles = NULL, watertight = NULL,
			error_message = NULL, started_at = NULL, completed_at = NULL, updated_at = ?
		WHERE id = ?
		RETURNING ` + modelColumns
	m, err := scanModel(tx.QueryRowContext(ctx, query, models.ModelStatusQueued, formatTime(time.Now()), id))
	if err != nil {
		return nil, fmt.Errorf("failed to requeue model: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	if err := dropResult(ctx, tx, m.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to invalidate result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return m, nil
}

func (r *SQLiteModelRepository) Delete(ctx context.Context, id string) (*models.Model, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := scanModel(tx.QueryRowContext(ctx, "DELETE FROM models WHERE id = ? RETURNING "+modelColumns, id))
	if err != nil {
		return nil, fmt.Errorf("failed to delete model: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	if err := dropResult(ctx, tx, m.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to invalidate result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return m, nil
}

// MarkStaleProcessingFailed is used at startup and by the cleanup loop to
// release models left in processing by a crashed or restarted worker.
func (r *SQLiteModelRepository) MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-maxAge))
	now := formatTime(time.Now())

	query := `
		UPDATE models
		SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE status = ? AND (started_at IS NULL OR started_at <= ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		models.ModelStatusError,
		StaleProcessingMessage,
		now,
		now,
		models.ModelStatusProcessing,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale models as failed: %w", err)
	}
	count, _ := res.RowsAffected()
	return count, nil
}

func (r *SQLiteModelRepository) StorageKeys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT storage_key FROM models")
	if err != nil {
		return nil, fmt.Errorf("failed to query storage keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan storage key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
