package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/meshquote-api/internal/analysis"
	"github.com/jmylchreest/meshquote-api/internal/events"
	"github.com/jmylchreest/meshquote-api/internal/logging"
	"github.com/jmylchreest/meshquote-api/internal/mesh"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/queue"
	"github.com/jmylchreest/meshquote-api/internal/repository"
)

// MaxErrorMessageLength caps the error message stored on a failed model.
const MaxErrorMessageLength = 1000

// MaxWait bounds a single long-poll status request.
const MaxWait = 60 * time.Second

// waitPollInterval is how often Wait re-reads the model.
const waitPollInterval = 250 * time.Millisecond

// InflightCanceller aborts processing of a model that was superseded or
// deleted. Only runs with a generation below the bound are cancelled. The
// worker implements it.
type InflightCanceller interface {
	Cancel(modelID string, below int64) bool
}

// allGenerations cancels every run of a model that no longer exists.
const allGenerations int64 = math.MaxInt64

// ModelServiceConfig holds ingestion limits.
type ModelServiceConfig struct {
	MaxUploadBytes int64
	MaxTriangles   int
}

// ModelService is the ingestion state machine: it accepts uploads, hands
// them to the worker and records the outcome of processing.
type ModelService struct {
	projects  repository.ProjectRepository
	models    repository.ModelRepository
	storage   *StorageService
	queue     queue.Queue
	events    events.Publisher
	canceller InflightCanceller
	cfg       ModelServiceConfig
	logger    *slog.Logger
}

// NewModelService creates a new model service.
func NewModelService(
	repos *repository.Repositories,
	storage *StorageService,
	q queue.Queue,
	publisher events.Publisher,
	cfg ModelServiceConfig,
	logger *slog.Logger,
) *ModelService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ModelService{
		projects: repos.Project,
		models:   repos.Model,
		storage:  storage,
		queue:    q,
		events:   publisher,
		cfg:      cfg,
		logger:   logger.With("component", "models"),
	}
}

// SetCanceller wires the worker's in-flight registry.
func (s *ModelService) SetCanceller(c InflightCanceller) {
	s.canceller = c
}

// SubmitInput is one uploaded file.
type SubmitInput struct {
	ProjectID string
	Filename  string
	Data      []byte
}

// CheckUpload validates the filename and declared size of an upload before
// its body is read.
func (s *ModelService) CheckUpload(filename string, size int64) (mesh.Format, error) {
	format, ok := mesh.FormatFromFilename(filename)
	if !ok {
		return "", fmt.Errorf("%w: %q (accepted: .stl, .obj, .3mf)", ErrUnsupportedFormat, filename)
	}
	if s.cfg.MaxUploadBytes > 0 && size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, size, s.cfg.MaxUploadBytes)
	}
	return format, nil
}

// Submit stores the file, replaces the project's model with a queued one
// and schedules processing. It never waits for parsing. Storage failures
// are returned and no model is created.
func (s *ModelService) Submit(ctx context.Context, input SubmitInput) (*models.Model, error) {
	format, err := s.CheckUpload(input.Filename, int64(len(input.Data)))
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, input.ProjectID)
	}

	now := time.Now().UTC()
	id := ulid.Make().String()
	model := &models.Model{
		ID:           id,
		ProjectID:    project.ID,
		StorageKey:   ModelKey(project.ID, id, format),
		OriginalName: input.Filename,
		Format:       format,
		SizeBytes:    int64(len(input.Data)),
		DetectedType: DetectContentType(input.Data),
		Status:       models.ModelStatusQueued,
		Generation:   1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	log := logging.FromContext(logging.WithModelID(logging.WithProjectID(ctx, project.ID), id), s.logger)

	if err := s.storage.PutModel(ctx, model.StorageKey, input.Data, format.ContentType()); err != nil {
		return nil, err
	}

	previous, err := s.models.Replace(ctx, model)
	if err != nil {
		if delErr := s.storage.DeleteModel(ctx, model.StorageKey); delErr != nil {
			log.Warn("failed to remove file of rejected upload", "error", delErr)
		}
		return nil, err
	}

	if previous != nil {
		s.cancelInflight(previous.ID, allGenerations)
		if err := s.storage.DeleteModel(ctx, previous.StorageKey); err != nil {
			log.Warn("failed to remove replaced model file", "previous_model_id", previous.ID, "error", err)
		}
		s.publish(ctx, events.ModelDeleted, previous, map[string]interface{}{"reason": "replaced", "replaced_by": model.ID})
	}

	s.enqueue(ctx, model)
	s.publish(ctx, events.ModelQueued, model, map[string]interface{}{
		"original_name": model.OriginalName,
		"format":        string(model.Format),
		"size_bytes":    model.SizeBytes,
	})

	log.Info("model submitted",
		"format", model.Format,
		"size_bytes", model.SizeBytes,
		"detected_type", model.DetectedType,
		"generation", model.Generation,
		"replaced", previous != nil,
	)
	return model, nil
}

// Status returns the current state of a model.
func (s *ModelService) Status(ctx context.Context, modelID string) (*models.Model, error) {
	m, err := s.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: model %s", ErrNotFound, modelID)
	}
	return m, nil
}

// StatusByProject returns the current model of a project.
func (s *ModelService) StatusByProject(ctx context.Context, projectID string) (*models.Model, error) {
	m, err := s.models.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: project %s has no model", ErrNotFound, projectID)
	}
	return m, nil
}

// Wait polls the model until it reaches a terminal status or wait elapses,
// and returns the last state read. A zero wait behaves like Status.
func (s *ModelService) Wait(ctx context.Context, modelID string, wait time.Duration) (*models.Model, error) {
	return s.waitFor(ctx, wait, func(ctx context.Context) (*models.Model, error) {
		return s.Status(ctx, modelID)
	})
}

// WaitByProject is Wait for the current model of a project.
func (s *ModelService) WaitByProject(ctx context.Context, projectID string, wait time.Duration) (*models.Model, error) {
	return s.waitFor(ctx, wait, func(ctx context.Context) (*models.Model, error) {
		return s.StatusByProject(ctx, projectID)
	})
}

func (s *ModelService) waitFor(ctx context.Context, wait time.Duration, read func(context.Context) (*models.Model, error)) (*models.Model, error) {
	m, err := read(ctx)
	if err != nil || wait <= 0 || m.Status.IsTerminal() {
		return m, err
	}
	if wait > MaxWait {
		wait = MaxWait
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return m, nil
		case <-timer.C:
			return m, nil
		case <-ticker.C:
			next, err := read(ctx)
			if err != nil {
				return nil, err
			}
			m = next
			if m.Status.IsTerminal() {
				return m, nil
			}
		}
	}
}

// Delete removes a model, its file and the project's result. Processing in
// flight is cancelled and its eventual write-back is discarded.
func (s *ModelService) Delete(ctx context.Context, modelID string) error {
	m, err := s.models.Delete(ctx, modelID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: model %s", ErrNotFound, modelID)
	}
	s.afterDelete(ctx, m)
	return nil
}

// DeleteByProject removes the current model of a project.
func (s *ModelService) DeleteByProject(ctx context.Context, projectID string) error {
	m, err := s.StatusByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, m.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Replaced or deleted between the two calls.
			return fmt.Errorf("%w: model %s changed during delete", ErrConflict, m.ID)
		}
		return err
	}
	return nil
}

func (s *ModelService) afterDelete(ctx context.Context, m *models.Model) {
	s.cancelInflight(m.ID, allGenerations)
	if err := s.storage.DeleteModel(ctx, m.StorageKey); err != nil {
		s.logger.Warn("failed to remove deleted model file", "model_id", m.ID, "error", err)
	}
	s.publish(ctx, events.ModelDeleted, m, map[string]interface{}{"reason": "deleted"})
	s.logger.Info("model deleted", "model_id", m.ID, "project_id", m.ProjectID)
}

// Reprocess restarts the pipeline for the project's current file under a
// new generation.
func (s *ModelService) Reprocess(ctx context.Context, projectID string) (*models.Model, error) {
	current, err := s.StatusByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	m, err := s.models.Requeue(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: model %s changed during reprocess", ErrConflict, current.ID)
	}

	// A worker may already have claimed the new generation.
	s.cancelInflight(m.ID, m.Generation)
	s.enqueue(ctx, m)
	s.publish(ctx, events.ModelQueued, m, map[string]interface{}{"reason": "reprocess"})
	s.logger.Info("model requeued", "model_id", m.ID, "project_id", m.ProjectID, "generation", m.Generation)
	return m, nil
}

// OpenFile returns the project's current model and its stored bytes.
func (s *ModelService) OpenFile(ctx context.Context, projectID string) (*models.Model, []byte, error) {
	m, err := s.StatusByProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.storage.GetModel(ctx, m.StorageKey)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, nil, fmt.Errorf("%w: file of model %s", ErrNotFound, m.ID)
		}
		return nil, nil, err
	}
	return m, data, nil
}

// ========================================
// Pipeline (called by the worker)
// ========================================

// Claim moves a queued model to processing. It returns nil when the model
// is not queued any more (already claimed, replaced or deleted).
func (s *ModelService) Claim(ctx context.Context, modelID string) (*models.Model, error) {
	m, err := s.models.ClaimJob(ctx, modelID)
	if err != nil || m == nil {
		return nil, err
	}
	s.publish(ctx, events.ModelProcessing, m, nil)
	return m, nil
}

// ClaimNext claims the oldest queued model, or returns nil.
func (s *ModelService) ClaimNext(ctx context.Context) (*models.Model, error) {
	m, err := s.models.ClaimPending(ctx)
	if err != nil || m == nil {
		return nil, err
	}
	s.publish(ctx, events.ModelProcessing, m, nil)
	return m, nil
}

// Analyze loads the model file, parses it and computes its metrics. It has
// no side effects.
func (s *ModelService) Analyze(ctx context.Context, m *models.Model) (*models.ModelMetrics, error) {
	data, err := s.storage.GetModel(ctx, m.StorageKey)
	if err != nil {
		return nil, err
	}
	parsed, err := mesh.Parse(data, m.Format, mesh.Options{MaxTriangles: s.cfg.MaxTriangles})
	if err != nil {
		return nil, err
	}
	metrics, err := analysis.Analyze(parsed)
	if err != nil {
		return nil, err
	}
	return toModelMetrics(metrics), nil
}

// Finish records the outcome of processing m. The write is fenced by the
// generation m was claimed with, so a result computed for a replaced,
// requeued or deleted model is dropped.
func (s *ModelService) Finish(ctx context.Context, m *models.Model, metrics *models.ModelMetrics, procErr error) error {
	log := logging.FromContext(logging.WithModelID(logging.WithProjectID(ctx, m.ProjectID), m.ID), s.logger)

	if procErr == nil {
		ok, err := s.models.Complete(ctx, m.ID, m.Generation, metrics)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("dropping stale result", "generation", m.Generation)
			return nil
		}
		s.publish(ctx, events.ModelDone, m, map[string]interface{}{
			"dim_x":      metrics.DimX,
			"dim_y":      metrics.DimY,
			"dim_z":      metrics.DimZ,
			"volume":     metrics.Volume,
			"polygons":   metrics.Polygons,
			"watertight": metrics.Watertight,
		})
		log.Info("model processed", "volume_cm3", metrics.Volume, "polygons", metrics.Polygons, "watertight", metrics.Watertight)
		return nil
	}

	message := ErrorMessage(procErr)
	ok, err := s.models.Fail(ctx, m.ID, m.Generation, message)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("dropping stale failure", "generation", m.Generation, "error", procErr)
		return nil
	}
	s.publish(ctx, events.ModelError, m, map[string]interface{}{"error_message": message})
	log.Warn("model processing failed", "error", procErr)
	return nil
}

// Release returns m to the queue after its processing was interrupted by
// shutdown. A model that moved on in the meantime is left alone.
func (s *ModelService) Release(ctx context.Context, m *models.Model) error {
	ok, err := s.models.Release(ctx, m.ID, m.Generation)
	if err != nil {
		return err
	}
	if ok {
		s.logger.Info("model released for reprocessing", "model_id", m.ID, "project_id", m.ProjectID, "generation", m.Generation)
	}
	return nil
}

// ErrorMessage renders a processing failure for the model record.
func ErrorMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, ErrBlobNotFound) {
		msg = "model file is missing from storage"
	}
	if msg == "" {
		msg = "unknown processing error"
	}
	if runes := []rune(msg); len(runes) > MaxErrorMessageLength {
		msg = string(runes[:MaxErrorMessageLength])
	}
	return msg
}

func toModelMetrics(m *analysis.Metrics) *models.ModelMetrics {
	return &models.ModelMetrics{
		DimX:                m.DimX,
		DimY:                m.DimY,
		DimZ:                m.DimZ,
		Volume:              m.Volume,
		Polygons:            m.Polygons,
		SurfaceArea:         m.SurfaceArea,
		DegenerateTriangles: m.DegenerateTriangles,
		FlippedTriangles:    m.FlippedTriangles,
		Watertight:          m.Watertight,
	}
}

func (s *ModelService) cancelInflight(modelID string, below int64) {
	if s.canceller != nil && s.canceller.Cancel(modelID, below) {
		s.logger.Info("cancelled in-flight processing", "model_id", modelID, "below_generation", below)
	}
}

// enqueue wakes a worker. Failures are logged only: the worker poll picks
// up queued models regardless.
func (s *ModelService) enqueue(ctx context.Context, m *models.Model) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Push(ctx, m.ID); err != nil {
		s.logger.Warn("failed to enqueue model", "model_id", m.ID, "error", err)
	}
}

func (s *ModelService) publish(ctx context.Context, eventType events.EventType, m *models.Model, extra map[string]interface{}) {
	data := map[string]interface{}{
		"model_id":   m.ID,
		"project_id": m.ProjectID,
		"generation": m.Generation,
	}
	for k, v := range extra {
		data[k] = v
	}
	if err := s.events.Publish(ctx, events.NewEvent(eventType, m.ProjectID, data)); err != nil {
		s.logger.Warn("failed to publish event", "type", eventType, "model_id", m.ID, "error", err)
	}
}
