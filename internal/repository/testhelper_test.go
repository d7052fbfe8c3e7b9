package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/meshquote-api/internal/database/migrations"
	"github.com/jmylchreest/meshquote-api/internal/mesh"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/pricing"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Every pooled connection to :memory: would be a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t))
}

func createTestProject(t *testing.T, repos *Repositories, name string) *models.Project {
	t.Helper()
	now := time.Now()
	p := &models.Project{
		ID:        ulid.Make().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Project.Create(context.Background(), p); err != nil {
		t.Fatalf("Project.Create() error = %v", err)
	}
	return p
}

func createTestModel(t *testing.T, repos *Repositories, projectID string) *models.Model {
	t.Helper()
	now := time.Now()
	id := ulid.Make().String()
	m := &models.Model{
		ID:           id,
		ProjectID:    projectID,
		StorageKey:   "models/" + id + ".stl",
		OriginalName: "part.stl",
		Format:       mesh.FormatSTL,
		SizeBytes:    684,
		Status:       models.ModelStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := repos.Model.Replace(context.Background(), m); err != nil {
		t.Fatalf("Model.Replace() error = %v", err)
	}
	return m
}

// completeTestModel drives a model to done with a 1 cm³ cube.
func completeTestModel(t *testing.T, repos *Repositories, m *models.Model) {
	t.Helper()
	ctx := context.Background()
	claimed, err := repos.Model.ClaimJob(ctx, m.ID)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimJob() = %v, %v", claimed, err)
	}
	ok, err := repos.Model.Complete(ctx, m.ID, claimed.Generation, &models.ModelMetrics{
		DimX: 10, DimY: 10, DimZ: 10, Volume: 1, Polygons: 12, SurfaceArea: 600, Watertight: true,
	})
	if err != nil || !ok {
		t.Fatalf("Complete() = %v, %v", ok, err)
	}
}

func createTestParams(t *testing.T, repos *Repositories, projectID string) *models.CalcParams {
	t.Helper()
	now := time.Now()
	cp, err := repos.CalcParams.Create(context.Background(), &models.CalcParams{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		Revision:  1,
		Params:    pricing.DefaultParams(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CalcParams.Create() error = %v", err)
	}
	return cp
}

func storeTestResult(t *testing.T, repos *Repositories, m *models.Model, cp *models.CalcParams, generation int64) *models.CalcResult {
	t.Helper()
	cr := &models.CalcResult{
		ID:              ulid.Make().String(),
		ProjectID:       m.ProjectID,
		ModelID:         m.ID,
		ModelGeneration: generation,
		ParamsRevision:  cp.Revision,
		Result:          pricing.Result{Weight: 1.25, UnitCost: 1.5, PricePerUnit: 3.3, TotalPrice: 3.3},
		Quantity:        1,
		Currency:        "USD",
		CalculatedAt:    time.Now(),
	}
	ok, err := repos.CalcResult.Upsert(context.Background(), cr)
	if err != nil || !ok {
		t.Fatalf("CalcResult.Upsert() = %v, %v", ok, err)
	}
	return cr
}
