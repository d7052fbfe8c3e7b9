package repository

import (
	"context"
	"testing"
)

func TestProjectRepository_CreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	p := createTestProject(t, repos, "Bracket")
	p.Client = "ACME"
	p.Notes = "two colours"
	if err := repos.Project.Update(ctx, p); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repos.Project.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() returned nil")
	}
	if got.Name != "Bracket" || got.Client != "ACME" || got.Notes != "two colours" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.Contact != "" {
		t.Errorf("Contact = %q, want empty", got.Contact)
	}
}

func TestProjectRepository_GetByID_NotFound(t *testing.T) {
	repos := setupTestRepos(t)

	got, err := repos.Project.GetByID(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent project")
	}
}

func TestProjectRepository_List(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	first := createTestProject(t, repos, "first")
	second := createTestProject(t, repos, "second")
	createTestModel(t, repos, second.ID)

	list, err := repos.Project.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	// Same-second timestamps fall back to ULID order, newest first.
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [%s %s]", list[0].Name, list[1].Name, "second", "first")
	}
	if !list[0].HasModel || list[0].ModelStatus != "queued" {
		t.Errorf("second: has_model=%v status=%q", list[0].HasModel, list[0].ModelStatus)
	}
	if list[1].HasModel {
		t.Error("first project should have no model")
	}
}

func TestProjectRepository_DeleteCascades(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	p := createTestProject(t, repos, "doomed")
	m := createTestModel(t, repos, p.ID)
	completeTestModel(t, repos, m)
	cp := createTestParams(t, repos, p.ID)
	storeTestResult(t, repos, m, cp, 1)

	deleted, keys, err := repos.Project.Delete(ctx, p.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Fatal("Delete() reported nothing deleted")
	}
	if len(keys) != 1 || keys[0] != m.StorageKey {
		t.Errorf("storage keys = %v, want [%s]", keys, m.StorageKey)
	}

	if got, _ := repos.Model.GetByID(ctx, m.ID); got != nil {
		t.Error("model survived project deletion")
	}
	if got, _ := repos.CalcParams.GetByProjectID(ctx, p.ID); got != nil {
		t.Error("params survived project deletion")
	}
	if got, _ := repos.CalcResult.GetByProjectID(ctx, p.ID); got != nil {
		t.Error("result survived project deletion")
	}

	deleted, _, err = repos.Project.Delete(ctx, p.ID)
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if deleted {
		t.Error("second Delete() should report nothing deleted")
	}
}
