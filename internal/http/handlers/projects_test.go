package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/service"
)

func strPtr(s string) *string { return &s }

// ========================================
// Project Handler Tests
// ========================================

func TestListProjects_EmptyIsArray(t *testing.T) {
	h := NewProjectHandler(&fakeProjects{})

	out, err := h.ListProjects(context.Background(), &ListProjectsInput{Limit: 50})
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if out.Body.Projects == nil || len(out.Body.Projects) != 0 {
		t.Errorf("Projects = %v, want empty slice", out.Body.Projects)
	}
}

func TestCreateProject(t *testing.T) {
	svc := &fakeProjects{}
	h := NewProjectHandler(svc)

	out, err := h.CreateProject(context.Background(), &CreateProjectInput{Body: ProjectFields{
		Name:   strPtr("Bracket"),
		Client: strPtr("ACME"),
	}})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if out.Body.Name != "Bracket" {
		t.Errorf("Name = %q, want Bracket", out.Body.Name)
	}
	if svc.input.Client == nil || *svc.input.Client != "ACME" || svc.input.Notes != nil {
		t.Errorf("input = %+v", svc.input)
	}
}

func TestCreateProject_Invalid(t *testing.T) {
	h := NewProjectHandler(&fakeProjects{err: fmt.Errorf("%w: name is required", service.ErrInvalidInput)})

	_, err := h.CreateProject(context.Background(), &CreateProjectInput{Body: ProjectFields{Name: strPtr("")}})
	if got := statusOf(t, err); got != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", got)
	}
}

func TestGetProject(t *testing.T) {
	detail := &service.ProjectDetail{
		Project: &models.Project{ID: "p1", Name: "Bracket"},
		Model:   &models.Model{ID: "m1", Status: models.ModelStatusDone},
	}
	h := NewProjectHandler(&fakeProjects{detail: detail})

	out, err := h.GetProject(context.Background(), &ProjectIDInput{ID: "p1"})
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if out.Body.ID != "p1" || out.Body.Model == nil || out.Body.Model.ID != "m1" {
		t.Errorf("Body = %+v", out.Body)
	}
	if out.Body.Params != nil || out.Body.Result != nil {
		t.Error("unset parts should be nil")
	}
}

func TestGetProject_NotFound(t *testing.T) {
	h := NewProjectHandler(&fakeProjects{})

	_, err := h.GetProject(context.Background(), &ProjectIDInput{ID: "missing"})
	if got := statusOf(t, err); got != http.StatusNotFound {
		t.Errorf("status = %d, want 404", got)
	}
}

func TestDeleteProject(t *testing.T) {
	h := NewProjectHandler(&fakeProjects{})
	if _, err := h.DeleteProject(context.Background(), &ProjectIDInput{ID: "p1"}); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}

	h = NewProjectHandler(&fakeProjects{err: fmt.Errorf("%w: project p1", service.ErrNotFound)})
	_, err := h.DeleteProject(context.Background(), &ProjectIDInput{ID: "p1"})
	if got := statusOf(t, err); got != http.StatusNotFound {
		t.Errorf("status = %d, want 404", got)
	}
}
