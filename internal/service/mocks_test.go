package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/events"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/queue"
	"github.com/jmylchreest/meshquote-api/internal/repository"
)

// ========================================
// In-memory repositories
// ========================================

// mockState backs every mock repository so cascades behave like the
// database: deleting or replacing a model drops the project's result.
type mockState struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	models   map[string]*models.Model
	params   map[string]*models.CalcParams
	results  map[string]*models.CalcResult
	texts    map[string]*models.AiText

	replaceErr error
}

func newMockRepos() (*repository.Repositories, *mockState) {
	s := &mockState{
		projects: make(map[string]*models.Project),
		models:   make(map[string]*models.Model),
		params:   make(map[string]*models.CalcParams),
		results:  make(map[string]*models.CalcResult),
		texts:    make(map[string]*models.AiText),
	}
	return &repository.Repositories{
		Project:    &mockProjectRepository{s},
		Model:      &mockModelRepository{s},
		CalcParams: &mockCalcParamsRepository{s},
		CalcResult: &mockCalcResultRepository{s},
		AiText:     &mockAiTextRepository{s},
	}, s
}

func (s *mockState) dropResult(projectID string) {
	delete(s.results, projectID)
	delete(s.texts, projectID)
}

func (s *mockState) modelOf(projectID string) *models.Model {
	for _, m := range s.models {
		if m.ProjectID == projectID {
			return m
		}
	}
	return nil
}

func copyModel(m *models.Model) *models.Model {
	if m == nil {
		return nil
	}
	c := *m
	if m.Metrics != nil {
		mt := *m.Metrics
		c.Metrics = &mt
	}
	return &c
}

type mockProjectRepository struct{ s *mockState }

func (r *mockProjectRepository) Create(ctx context.Context, p *models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *p
	r.s.projects[p.ID] = &c
	return nil
}

func (r *mockProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.projects[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (r *mockProjectRepository) List(ctx context.Context, limit, offset int) ([]*models.ProjectSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ProjectSummary
	for _, p := range r.s.projects {
		sum := &models.ProjectSummary{Project: *p}
		if m := r.s.modelOf(p.ID); m != nil {
			sum.HasModel = true
			sum.ModelStatus = m.Status
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*models.ProjectSummary{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockProjectRepository) Update(ctx context.Context, p *models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *p
	r.s.projects[p.ID] = &c
	return nil
}

func (r *mockProjectRepository) Delete(ctx context.Context, id string) (bool, []string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[id]; !ok {
		return false, nil, nil
	}
	var keys []string
	if m := r.s.modelOf(id); m != nil {
		keys = append(keys, m.StorageKey)
		delete(r.s.models, m.ID)
	}
	r.s.dropResult(id)
	delete(r.s.params, id)
	delete(r.s.projects, id)
	return true, keys, nil
}

type mockModelRepository struct{ s *mockState }

func (r *mockModelRepository) GetByID(ctx context.Context, id string) (*models.Model, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyModel(r.s.models[id]), nil
}

func (r *mockModelRepository) GetByProjectID(ctx context.Context, projectID string) (*models.Model, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyModel(r.s.modelOf(projectID)), nil
}

func (r *mockModelRepository) Replace(ctx context.Context, m *models.Model) (*models.Model, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.replaceErr != nil {
		return nil, r.s.replaceErr
	}
	previous := copyModel(r.s.modelOf(m.ProjectID))
	if previous != nil {
		delete(r.s.models, previous.ID)
		if m.Generation <= previous.Generation {
			m.Generation = previous.Generation + 1
		}
	}
	r.s.dropResult(m.ProjectID)
	r.s.models[m.ID] = copyModel(m)
	return previous, nil
}

func (r *mockModelRepository) claim(m *models.Model) *models.Model {
	now := time.Now()
	m.Status = models.ModelStatusProcessing
	m.StartedAt = &now
	m.UpdatedAt = now
	return copyModel(m)
}

func (r *mockModelRepository) ClaimJob(ctx context.Context, id string) (*models.Model, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.models[id]
	if !ok || m.Status != models.ModelStatusQueued {
		return nil, nil
	}
	return r.claim(m), nil
}

func (r *mockModelRepository) ClaimPending(ctx context.Context) (*models.Model, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var oldest *models.Model
	for _, m := range r.s.models {
		if m.Status == models.ModelStatusQueued && (oldest == nil || m.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = m
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return r.claim(oldest), nil
}

func (r *mockModelRepository) current(id string, generation int64) *models.Model {
	m, ok := r.s.models[id]
	if !ok || m.Generation != generation || m.Status != models.ModelStatusProcessing {
		return nil
	}
	return m
}

func (r *mockModelRepository) Complete(ctx context.Context, id string, generation int64, metrics *models.ModelMetrics) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.current(id, generation)
	if m == nil {
		return false, nil
	}
	now := time.Now()
	mt := *metrics
	m.Status = models.ModelStatusDone
	m.Metrics = &mt
	m.CompletedAt = &now
	return true, nil
}

func (r *mockModelRepository) Fail(ctx context.Context, id string, generation int64, message string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.current(id, generation)
	if m == nil {
		return false, nil
	}
	now := time.Now()
	m.Status = models.ModelStatusError
	m.ErrorMessage = message
	m.CompletedAt = &now
	return true, nil
}

func (r *mockModelRepository) Release(ctx context.Context, id string, generation int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.current(id, generation)
	if m == nil {
		return false, nil
	}
	m.Status = models.ModelStatusQueued
	m.StartedAt = nil
	return true, nil
}

func (r *mockModelRepository) Requeue(ctx context.Context, id string) (*models.Model, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.models[id]
	if !ok {
		return nil, nil
	}
	m.Status = models.ModelStatusQueued
	m.Generation++
	m.Metrics = nil
	m.ErrorMessage = ""
	m.StartedAt = nil
	m.CompletedAt = nil
	r.s.dropResult(m.ProjectID)
	return copyModel(m), nil
}

func (r *mockModelRepository) Delete(ctx context.Context, id string) (*models.Model, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.models[id]
	if !ok {
		return nil, nil
	}
	delete(r.s.models, id)
	r.s.dropResult(m.ProjectID)
	return copyModel(m), nil
}

func (r *mockModelRepository) MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var n int64
	for _, m := range r.s.models {
		if m.Status == models.ModelStatusProcessing && m.StartedAt != nil && m.StartedAt.Before(cutoff) {
			m.Status = models.ModelStatusError
			m.ErrorMessage = repository.StaleProcessingMessage
			n++
		}
	}
	return n, nil
}

func (r *mockModelRepository) StorageKeys(ctx context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for _, m := range r.s.models {
		keys = append(keys, m.StorageKey)
	}
	return keys, nil
}

type mockCalcParamsRepository struct{ s *mockState }

func (r *mockCalcParamsRepository) GetByProjectID(ctx context.Context, projectID string) (*models.CalcParams, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.params[projectID]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (r *mockCalcParamsRepository) Create(ctx context.Context, cp *models.CalcParams) (*models.CalcParams, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[cp.ProjectID]; !ok {
		return nil, nil
	}
	if _, ok := r.s.params[cp.ProjectID]; !ok {
		c := *cp
		r.s.params[cp.ProjectID] = &c
	}
	c := *r.s.params[cp.ProjectID]
	return &c, nil
}

func (r *mockCalcParamsRepository) Update(ctx context.Context, cp *models.CalcParams) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.params[cp.ProjectID]
	if !ok || stored.Revision != cp.Revision {
		return false, nil
	}
	cp.Revision++
	cp.UpdatedAt = time.Now()
	c := *cp
	r.s.params[cp.ProjectID] = &c
	r.s.dropResult(cp.ProjectID)
	return true, nil
}

type mockCalcResultRepository struct{ s *mockState }

func (r *mockCalcResultRepository) GetByProjectID(ctx context.Context, projectID string) (*models.CalcResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cr, ok := r.s.results[projectID]; ok {
		c := *cr
		return &c, nil
	}
	return nil, nil
}

func (r *mockCalcResultRepository) Upsert(ctx context.Context, cr *models.CalcResult) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.models[cr.ModelID]
	if !ok || m.ProjectID != cr.ProjectID || m.Generation != cr.ModelGeneration || m.Status != models.ModelStatusDone {
		return false, nil
	}
	p, ok := r.s.params[cr.ProjectID]
	if !ok || p.Revision != cr.ParamsRevision {
		return false, nil
	}
	if existing, ok := r.s.results[cr.ProjectID]; ok {
		cr.ID = existing.ID
	}
	c := *cr
	r.s.results[cr.ProjectID] = &c
	return true, nil
}

func (r *mockCalcResultRepository) DeleteByProjectID(ctx context.Context, projectID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.dropResult(projectID)
	return nil
}

type mockAiTextRepository struct{ s *mockState }

func (r *mockAiTextRepository) GetByProjectID(ctx context.Context, projectID string) (*models.AiText, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.texts[projectID]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (r *mockAiTextRepository) Upsert(ctx context.Context, a *models.AiText) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cr, ok := r.s.results[a.ProjectID]
	if !ok || cr.ID != a.CalcResultID {
		return false, nil
	}
	if existing, ok := r.s.texts[a.ProjectID]; ok {
		a.ID = existing.ID
	}
	c := *a
	r.s.texts[a.ProjectID] = &c
	return true, nil
}

// ========================================
// Other doubles
// ========================================

type mockCanceller struct {
	mu        sync.Mutex
	cancelled []string
	below     map[string]int64
}

func (c *mockCanceller) Cancel(modelID string, below int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, modelID)
	if c.below == nil {
		c.below = make(map[string]int64)
	}
	c.below[modelID] = below
	return true
}

func (c *mockCanceller) bound(modelID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.below[modelID]
}

func (c *mockCanceller) has(modelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.cancelled {
		if id == modelID {
			return true
		}
	}
	return false
}

type failingGenerator struct{ err error }

func (g failingGenerator) Name() string { return "failing" }
func (g failingGenerator) Generate(context.Context, TextFacts) (*GeneratedTexts, error) {
	return nil, g.err
}

// ========================================
// Fixtures
// ========================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	repos     *repository.Repositories
	state     *mockState
	storage   *StorageService
	queue     *queue.MemoryQueue
	events    *events.Recorder
	canceller *mockCanceller
	models    *ModelService
	projects  *ProjectService
	calc      *CalcService
	texts     *AiTextService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos, state := newMockRepos()
	storage, err := NewFileStorageService(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStorageService() error = %v", err)
	}
	env := &testEnv{
		repos:     repos,
		state:     state,
		storage:   storage,
		queue:     queue.NewMemoryQueue(16),
		events:    &events.Recorder{},
		canceller: &mockCanceller{},
	}
	env.models = NewModelService(repos, storage, env.queue, env.events, ModelServiceConfig{
		MaxUploadBytes: 1 << 20,
		MaxTriangles:   10_000,
	}, testLogger())
	env.models.SetCanceller(env.canceller)
	env.projects = NewProjectService(repos, storage, env.events, testLogger())
	env.projects.SetCanceller(env.canceller)
	env.calc = NewCalcService(repos, env.events, testLogger())
	env.texts = NewAiTextService(repos, nil, testLogger())
	return env
}

func (e *testEnv) createProject(t *testing.T, name string) *models.Project {
	t.Helper()
	p, err := e.projects.Create(context.Background(), ProjectInput{Name: &name})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return p
}

// process runs the worker pipeline for one queued model synchronously.
func (e *testEnv) process(t *testing.T, modelID string) *models.Model {
	t.Helper()
	ctx := context.Background()
	claimed, err := e.models.Claim(ctx, modelID)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if claimed == nil {
		t.Fatalf("Claim(%s) = nil, want claimed model", modelID)
	}
	metrics, procErr := e.models.Analyze(ctx, claimed)
	if err := e.models.Finish(ctx, claimed, metrics, procErr); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	m, err := e.models.Status(ctx, modelID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return m
}

// uploadDone submits a cube of side size mm and processes it.
func (e *testEnv) uploadDone(t *testing.T, projectID string, size float64) *models.Model {
	t.Helper()
	m, err := e.models.Submit(context.Background(), SubmitInput{
		ProjectID: projectID,
		Filename:  "cube.stl",
		Data:      cubeSTL(size),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	done := e.process(t, m.ID)
	if done.Status != models.ModelStatusDone {
		t.Fatalf("status = %s (%s), want done", done.Status, done.ErrorMessage)
	}
	return done
}

// cubeSTL renders an axis-aligned cube with outward winding as ASCII STL.
func cubeSTL(s float64) []byte {
	v := [8][3]float64{
		{0, 0, 0}, {s, 0, 0}, {s, s, 0}, {0, s, 0},
		{0, 0, s}, {s, 0, s}, {s, s, s}, {0, s, s},
	}
	faces := [12][3]int{
		{0, 2, 1}, {0, 3, 2}, {4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4}, {3, 7, 6}, {3, 6, 2},
		{0, 4, 7}, {0, 7, 3}, {1, 2, 6}, {1, 6, 5},
	}
	var b strings.Builder
	b.WriteString("solid cube\n")
	for _, f := range faces {
		b.WriteString("  facet normal 0 0 0\n    outer loop\n")
		for _, i := range f {
			fmt.Fprintf(&b, "      vertex %g %g %g\n", v[i][0], v[i][1], v[i][2])
		}
		b.WriteString("    endloop\n  endfacet\n")
	}
	b.WriteString("endsolid cube\n")
	return []byte(b.String())
}
