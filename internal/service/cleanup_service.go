package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/repository"
)

// CleanupService releases models stuck in processing and removes stored
// files no model refers to.
type CleanupService struct {
	modelRepo  repository.ModelRepository
	storageSvc *StorageService
	logger     *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(modelRepo repository.ModelRepository, storageSvc *StorageService, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		modelRepo:  modelRepo,
		storageSvc: storageSvc,
		logger:     logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of a cleanup operation.
type CleanupResult struct {
	StaleModelsFailed  int64
	OrphanFilesDeleted int
	Errors             []error
}

// SweepStale marks models processing for longer than maxAge as failed.
func (s *CleanupService) SweepStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.modelRepo.MarkStaleProcessingFailed(ctx, maxAge)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("marked stale processing models as failed", "count", n, "max_age", maxAge.String())
	}
	return n, nil
}

// RemoveOrphans deletes stored model files that no model refers to. Files
// younger than grace are kept since an upload stores its file before the
// model row is written.
func (s *CleanupService) RemoveOrphans(ctx context.Context, grace time.Duration) (int, error) {
	if s.storageSvc == nil {
		return 0, nil
	}

	keys, err := s.modelRepo.StorageKeys(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		referenced[k] = struct{}{}
	}

	blobs, err := s.storageSvc.ListModels(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-grace)
	deleted := 0
	for _, b := range blobs {
		if _, ok := referenced[b.Key]; ok || b.ModTime.After(cutoff) {
			continue
		}
		if err := s.storageSvc.DeleteModel(ctx, b.Key); err != nil {
			s.logger.Warn("failed to delete orphaned file", "key", b.Key, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("deleted orphaned model files", "count", deleted)
	}
	return deleted, nil
}

// Cleanup runs both sweeps. Errors are collected, not returned early.
func (s *CleanupService) Cleanup(ctx context.Context, staleAge, orphanGrace time.Duration) *CleanupResult {
	result := &CleanupResult{}

	n, err := s.SweepStale(ctx, staleAge)
	if err != nil {
		s.logger.Error("failed to sweep stale models", "error", err)
		result.Errors = append(result.Errors, err)
	}
	result.StaleModelsFailed = n

	deleted, err := s.RemoveOrphans(ctx, orphanGrace)
	if err != nil {
		s.logger.Error("failed to remove orphaned files", "error", err)
		result.Errors = append(result.Errors, err)
	}
	result.OrphanFilesDeleted = deleted

	s.logger.Debug("cleanup completed",
		"stale_models_failed", result.StaleModelsFailed,
		"orphan_files_deleted", result.OrphanFilesDeleted,
		"errors", len(result.Errors),
	)
	return result
}

// RunScheduledCleanup runs the cleanup task as a background goroutine.
// It runs immediately on start and then at the specified interval.
func (s *CleanupService) RunScheduledCleanup(ctx context.Context, staleAge, orphanGrace, interval time.Duration) {
	s.logger.Info("starting scheduled cleanup",
		"stale_age", staleAge.String(),
		"orphan_grace", orphanGrace.String(),
		"interval", interval.String(),
	)

	s.Cleanup(ctx, staleAge, orphanGrace)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			s.Cleanup(ctx, staleAge, orphanGrace)
		}
	}
}
