package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/pricing"
)

const paramsColumns = `id, project_id, revision, technology, material_density, material_price, waste_factor,
	infill, support_percent, print_time_h, post_process_time_h, modeling_time_h,
	quantity, is_batch, markup, reject_rate, tax_rate, depreciation_rate, energy_rate, hourly_rate,
	currency, language, created_at, updated_at`

// SQLiteCalcParamsRepository implements CalcParamsRepository for SQLite.
type SQLiteCalcParamsRepository struct {
	db *sql.DB
}

// NewSQLiteCalcParamsRepository creates a new SQLite calculation params repository.
func NewSQLiteCalcParamsRepository(db *sql.DB) *SQLiteCalcParamsRepository {
	return &SQLiteCalcParamsRepository{db: db}
}

func scanParams(row rowScanner) (*models.CalcParams, error) {
	var cp models.CalcParams
	var technology string
	var isBatch int
	var createdAt, updatedAt string
	err := row.Scan(
		&cp.ID, &cp.ProjectID, &cp.Revision, &technology, &cp.MaterialDensity, &cp.MaterialPrice, &cp.WasteFactor,
		&cp.Infill, &cp.SupportPercent, &cp.PrintTimeH, &cp.PostProcessTimeH, &cp.ModelingTimeH,
		&cp.Quantity, &isBatch, &cp.Markup, &cp.RejectRate, &cp.TaxRate, &cp.DepreciationRate, &cp.EnergyRate, &cp.HourlyRate,
		&cp.Currency, &cp.Language, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan calc params: %w", err)
	}
	cp.Technology = pricing.Technology(technology)
	cp.IsBatch = isBatch == 1
	cp.CreatedAt = parseTime(createdAt)
	cp.UpdatedAt = parseTime(updatedAt)
	return &cp, nil
}

func (r *SQLiteCalcParamsRepository) GetByProjectID(ctx context.Context, projectID string) (*models.CalcParams, error) {
	return scanParams(r.db.QueryRowContext(ctx, "SELECT "+paramsColumns+" FROM calc_params WHERE project_id = ?", projectID))
}

func (r *SQLiteCalcParamsRepository) Create(ctx context.Context, cp *models.CalcParams) (*models.CalcParams, error) {
	query := `
		INSERT INTO calc_params (` + paramsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query,
		cp.ID, cp.ProjectID, cp.Revision, string(cp.Technology), cp.MaterialDensity, cp.MaterialPrice, cp.WasteFactor,
		cp.Infill, cp.SupportPercent, cp.PrintTimeH, cp.PostProcessTimeH, cp.ModelingTimeH,
		cp.Quantity, boolToInt(cp.IsBatch), cp.Markup, cp.RejectRate, cp.TaxRate, cp.DepreciationRate, cp.EnergyRate, cp.HourlyRate,
		cp.Currency, cp.Language, formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("failed to create calc params: %w", err)
	}
	return r.GetByProjectID(ctx, cp.ProjectID)
}

func (r *SQLiteCalcParamsRepository) Update(ctx context.Context, cp *models.CalcParams) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	query := `
		UPDATE calc_params SET revision = revision + 1, technology = ?, material_density = ?, material_price = ?,
			waste_factor = ?, infill = ?, support_percent = ?, print_time_h = ?, post_process_time_h = ?,
			modeling_time_h = ?, quantity = ?, is_batch = ?, markup = ?, reject_rate = ?, tax_rate = ?,
			depreciation_rate = ?, energy_rate = ?, hourly_rate = ?, currency = ?, language = ?, updated_at = ?
		WHERE project_id = ? AND revision = ?
	`
	res, err := tx.ExecContext(ctx, query,
		string(cp.Technology), cp.MaterialDensity, cp.MaterialPrice,
		cp.WasteFactor, cp.Infill, cp.SupportPercent, cp.PrintTimeH, cp.PostProcessTimeH,
		cp.ModelingTimeH, cp.Quantity, boolToInt(cp.IsBatch), cp.Markup, cp.RejectRate, cp.TaxRate,
		cp.DepreciationRate, cp.EnergyRate, cp.HourlyRate, cp.Currency, cp.Language, formatTime(now),
		cp.ProjectID, cp.Revision,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update calc params: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return false, nil
	}
	if err := dropResult(ctx, tx, cp.ProjectID); err != nil {
		return false, fmt.Errorf("failed to invalidate result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	cp.Revision++
	cp.UpdatedAt = now
	return true, nil
}

// SQLiteCalcResultRepository implements CalcResultRepository for SQLite.
type SQLiteCalcResultRepository struct {
	db *sql.DB
}

// NewSQLiteCalcResultRepository creates a new SQLite calculation result repository.
func NewSQLiteCalcResultRepository(db *sql.DB) *SQLiteCalcResultRepository {
	return &SQLiteCalcResultRepository{db: db}
}

func (r *SQLiteCalcResultRepository) GetByProjectID(ctx context.Context, projectID string) (*models.CalcResult, error) {
	query := `
		SELECT id, project_id, model_id, model_generation, params_revision, weight, material_cost,
			energy_cost, depreciation, prep_cost, reject_cost, unit_cost, profit, tax, price_per_unit,
			total_price, quantity, is_batch, currency, calculated_at
		FROM calc_results WHERE project_id = ?
	`
	var cr models.CalcResult
	var isBatch int
	var calculatedAt string
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(
		&cr.ID, &cr.ProjectID, &cr.ModelID, &cr.ModelGeneration, &cr.ParamsRevision, &cr.Weight, &cr.MaterialCost,
		&cr.EnergyCost, &cr.Depreciation, &cr.PrepCost, &cr.RejectCost, &cr.UnitCost, &cr.Profit, &cr.Tax, &cr.PricePerUnit,
		&cr.TotalPrice, &cr.Quantity, &isBatch, &cr.Currency, &calculatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calc result: %w", err)
	}
	cr.IsBatch = isBatch == 1
	cr.CalculatedAt = parseTime(calculatedAt)
	return &cr, nil
}

// Upsert keeps the row id stable across recalculations so generated text
// stays attached to it. The insert is skipped when the model or parameters
// moved on while the result was being computed.
func (r *SQLiteCalcResultRepository) Upsert(ctx context.Context, cr *models.CalcResult) (bool, error) {
	query := `
		INSERT INTO calc_results (id, project_id, model_id, model_generation, params_revision, weight,
			material_cost, energy_cost, depreciation, prep_cost, reject_cost, unit_cost, profit, tax,
			price_per_unit, total_price, quantity, is_batch, currency, calculated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM models WHERE id = ? AND project_id = ? AND generation = ? AND status = ?)
			AND EXISTS (SELECT 1 FROM calc_params WHERE project_id = ? AND revision = ?)
		ON CONFLICT(project_id) DO UPDATE SET
			model_id = excluded.model_id,
			model_generation = excluded.model_generation,
			params_revision = excluded.params_revision,
			weight = excluded.weight,
			material_cost = excluded.material_cost,
			energy_cost = excluded.energy_cost,
			depreciation = excluded.depreciation,
			prep_cost = excluded.prep_cost,
			reject_cost = excluded.reject_cost,
			unit_cost = excluded.unit_cost,
			profit = excluded.profit,
			tax = excluded.tax,
			price_per_unit = excluded.price_per_unit,
			total_price = excluded.total_price,
			quantity = excluded.quantity,
			is_batch = excluded.is_batch,
			currency = excluded.currency,
			calculated_at = excluded.calculated_at
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		cr.ID, cr.ProjectID, cr.ModelID, cr.ModelGeneration, cr.ParamsRevision, cr.Weight,
		cr.MaterialCost, cr.EnergyCost, cr.Depreciation, cr.PrepCost, cr.RejectCost, cr.UnitCost, cr.Profit, cr.Tax,
		cr.PricePerUnit, cr.TotalPrice, cr.Quantity, boolToInt(cr.IsBatch), cr.Currency, formatTime(cr.CalculatedAt),
		cr.ModelID, cr.ProjectID, cr.ModelGeneration, models.ModelStatusDone,
		cr.ProjectID, cr.ParamsRevision,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert calc result: %w", err)
	}
	cr.ID = id
	return true, nil
}

func (r *SQLiteCalcResultRepository) DeleteByProjectID(ctx context.Context, projectID string) error {
	if err := dropResult(ctx, r.db, projectID); err != nil {
		return fmt.Errorf("failed to delete calc result: %w", err)
	}
	return nil
}

// SQLiteAiTextRepository implements AiTextRepository for SQLite.
type SQLiteAiTextRepository struct {
	db *sql.DB
}

// NewSQLiteAiTextRepository creates a new SQLite generated text repository.
func NewSQLiteAiTextRepository(db *sql.DB) *SQLiteAiTextRepository {
	return &SQLiteAiTextRepository{db: db}
}

func (r *SQLiteAiTextRepository) GetByProjectID(ctx context.Context, projectID string) (*models.AiText, error) {
	query := `
		SELECT id, project_id, calc_result_id, language, description, commercial_text,
			description_en, description_ru, commercial_text_en, commercial_text_ru, generator, generated_at
		FROM ai_texts WHERE project_id = ?
	`
	var a models.AiText
	var generatedAt string
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(
		&a.ID, &a.ProjectID, &a.CalcResultID, &a.Language, &a.Description, &a.CommercialText,
		&a.DescriptionEN, &a.DescriptionRU, &a.CommercialTextEN, &a.CommercialTextRU, &a.Generator, &generatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ai text: %w", err)
	}
	a.GeneratedAt = parseTime(generatedAt)
	return &a, nil
}

func (r *SQLiteAiTextRepository) Upsert(ctx context.Context, a *models.AiText) (bool, error) {
	query := `
		INSERT INTO ai_texts (id, project_id, calc_result_id, language, description, commercial_text,
			description_en, description_ru, commercial_text_en, commercial_text_ru, generator, generated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM calc_results WHERE id = ? AND project_id = ?)
		ON CONFLICT(project_id) DO UPDATE SET
			calc_result_id = excluded.calc_result_id,
			language = excluded.language,
			description = excluded.description,
			commercial_text = excluded.commercial_text,
			description_en = excluded.description_en,
			description_ru = excluded.description_ru,
			commercial_text_en = excluded.commercial_text_en,
			commercial_text_ru = excluded.commercial_text_ru,
			generator = excluded.generator,
			generated_at = excluded.generated_at
		RETURNING id
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.ProjectID, a.CalcResultID, a.Language, a.Description, a.CommercialText,
		a.DescriptionEN, a.DescriptionRU, a.CommercialTextEN, a.CommercialTextRU, a.Generator, formatTime(a.GeneratedAt),
		a.CalcResultID, a.ProjectID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert ai text: %w", err)
	}
	a.ID = id
	return true, nil
}
