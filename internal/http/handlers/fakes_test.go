package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/mesh"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/pricing"
	"github.com/jmylchreest/meshquote-api/internal/service"
)

// ========================================
// Service fakes
// ========================================

type fakeProjects struct {
	projects []*models.ProjectSummary
	detail   *service.ProjectDetail
	err      error
	input    service.ProjectInput
}

func (f *fakeProjects) Create(_ context.Context, in service.ProjectInput) (*models.Project, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Project{ID: "p1", Name: *in.Name}, nil
}

func (f *fakeProjects) List(context.Context, int, int) ([]*models.ProjectSummary, error) {
	return f.projects, f.err
}

func (f *fakeProjects) Detail(_ context.Context, id string) (*service.ProjectDetail, error) {
	if f.detail == nil {
		return nil, fmt.Errorf("%w: project %s", service.ErrNotFound, id)
	}
	return f.detail, nil
}

func (f *fakeProjects) Update(_ context.Context, id string, in service.ProjectInput) (*models.Project, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Project{ID: id}, nil
}

func (f *fakeProjects) Delete(context.Context, string) error {
	return f.err
}

type fakeModels struct {
	model     *models.Model
	data      []byte
	err       error
	submitted *service.SubmitInput
	wait      time.Duration
}

func (f *fakeModels) CheckUpload(filename string, size int64) (mesh.Format, error) {
	format, ok := mesh.FormatFromFilename(filename)
	if !ok {
		return "", fmt.Errorf("%w: %q", service.ErrUnsupportedFormat, filename)
	}
	return format, nil
}

func (f *fakeModels) Submit(_ context.Context, in service.SubmitInput) (*models.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = &in
	format, _ := mesh.FormatFromFilename(in.Filename)
	return &models.Model{
		ID:           "m1",
		ProjectID:    in.ProjectID,
		OriginalName: in.Filename,
		Format:       format,
		SizeBytes:    int64(len(in.Data)),
		Status:       models.ModelStatusQueued,
		Generation:   1,
	}, nil
}

func (f *fakeModels) Wait(_ context.Context, id string, wait time.Duration) (*models.Model, error) {
	f.wait = wait
	if f.model == nil {
		return nil, fmt.Errorf("%w: model %s", service.ErrNotFound, id)
	}
	return f.model, nil
}

func (f *fakeModels) WaitByProject(ctx context.Context, projectID string, wait time.Duration) (*models.Model, error) {
	return f.Wait(ctx, projectID, wait)
}

func (f *fakeModels) Delete(context.Context, string) error          { return f.err }
func (f *fakeModels) DeleteByProject(context.Context, string) error { return f.err }

func (f *fakeModels) Reprocess(context.Context, string) (*models.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

func (f *fakeModels) OpenFile(_ context.Context, projectID string) (*models.Model, []byte, error) {
	if f.model == nil {
		return nil, nil, fmt.Errorf("%w: project %s has no model", service.ErrNotFound, projectID)
	}
	return f.model, f.data, nil
}

type fakeCalc struct {
	params *models.CalcParams
	result *models.CalcResult
	err    error
	patch  pricing.Patch
}

func (f *fakeCalc) GetParams(context.Context, string) (*models.CalcParams, error) {
	return f.params, f.err
}

func (f *fakeCalc) UpdateParams(_ context.Context, _ string, patch pricing.Patch) (*models.CalcParams, error) {
	f.patch = patch
	if f.err != nil {
		return nil, f.err
	}
	next := *f.params
	next.Params = patch.Apply(next.Params)
	if err := next.Params.Validate(); err != nil {
		return nil, err
	}
	next.Revision++
	return &next, nil
}

func (f *fakeCalc) Calculate(context.Context, string) (*models.CalcResult, error) {
	return f.result, f.err
}

type fakeTexts struct {
	text     *models.AiText
	err      error
	language string
}

func (f *fakeTexts) Generate(_ context.Context, _ string, language string) (*models.AiText, error) {
	f.language = language
	return f.text, f.err
}

func (f *fakeTexts) Get(context.Context, string) (*models.AiText, error) {
	return f.text, f.err
}
