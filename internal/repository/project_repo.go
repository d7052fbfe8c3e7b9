package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/models"
)

// SQLiteProjectRepository implements ProjectRepository for SQLite.
type SQLiteProjectRepository struct {
	db *sql.DB
}

// NewSQLiteProjectRepository creates a new SQLite project repository.
func NewSQLiteProjectRepository(db *sql.DB) *SQLiteProjectRepository {
	return &SQLiteProjectRepository{db: db}
}

func (r *SQLiteProjectRepository) Create(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (id, name, date, client, contact, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		nullString(p.Date),
		nullString(p.Client),
		nullString(p.Contact),
		nullString(p.Notes),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *SQLiteProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, name, date, client, contact, notes, created_at, updated_at
		FROM projects WHERE id = ?
	`
	var p models.Project
	var date, client, contact, notes sql.NullString
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &date, &client, &contact, &notes, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.Date = date.String
	p.Client = client.String
	p.Contact = contact.String
	p.Notes = notes.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (r *SQLiteProjectRepository) List(ctx context.Context, limit, offset int) ([]*models.ProjectSummary, error) {
	query := `
		SELECT p.id, p.name, p.date, p.client, p.contact, p.notes, p.created_at, p.updated_at, m.status
		FROM projects p
		LEFT JOIN models m ON m.project_id = p.id
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []*models.ProjectSummary
	for rows.Next() {
		var s models.ProjectSummary
		var date, client, contact, notes, status sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(
			&s.ID, &s.Name, &date, &client, &contact, &notes, &createdAt, &updatedAt, &status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		s.Date = date.String
		s.Client = client.String
		s.Contact = contact.String
		s.Notes = notes.String
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTime(updatedAt)
		s.HasModel = status.Valid
		s.ModelStatus = models.ModelStatus(status.String)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *SQLiteProjectRepository) Update(ctx context.Context, p *models.Project) error {
	query := `
		UPDATE projects SET name = ?, date = ?, client = ?, contact = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		p.Name,
		nullString(p.Date),
		nullString(p.Client),
		nullString(p.Contact),
		nullString(p.Notes),
		formatTime(time.Now()),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// Delete removes dependents explicitly so the result does not depend on the
// connection having foreign keys enabled.
func (r *SQLiteProjectRepository) Delete(ctx context.Context, id string) (bool, []string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "DELETE FROM models WHERE project_id = ? RETURNING storage_key", id)
	if err != nil {
		return false, nil, fmt.Errorf("failed to delete project model: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return false, nil, fmt.Errorf("failed to scan storage key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, nil, fmt.Errorf("failed to read storage keys: %w", err)
	}
	rows.Close()

	if err := dropResult(ctx, tx, id); err != nil {
		return false, nil, fmt.Errorf("failed to delete project result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM calc_params WHERE project_id = ?", id); err != nil {
		return false, nil, fmt.Errorf("failed to delete project params: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return false, nil, fmt.Errorf("failed to delete project: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return false, nil, nil
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, keys, nil
}
