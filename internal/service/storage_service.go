package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	appconfig "github.com/jmylchreest/meshquote-api/internal/config"
	"github.com/jmylchreest/meshquote-api/internal/mesh"
)

// ErrBlobNotFound is returned when a stored file does not exist.
var ErrBlobNotFound = errors.New("stored file not found")

// modelPrefix is the key prefix of every uploaded model file.
const modelPrefix = "models/"

// BlobInfo describes one stored file.
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

type blobBackend interface {
	name() string
	put(ctx context.Context, key string, data []byte, contentType string) error
	get(ctx context.Context, key string) ([]byte, error)
	delete(ctx context.Context, key string) error
	list(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// StorageService stores uploaded model files in S3-compatible object storage
// (Tigris, MinIO, AWS) or, when no bucket is configured, under a local
// data directory.
type StorageService struct {
	backend blobBackend
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("object storage not configured - storing models on disk", "data_dir", cfg.DataDir)
		return NewFileStorageService(cfg.DataDir, logger)
	}

	// Load AWS config with static credentials
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with custom endpoint for S3-compatible storage (Tigris, MinIO, etc.)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true // Required for some S3-compatible services
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return &StorageService{
		backend: &s3Backend{client: client, bucket: cfg.StorageBucket},
		logger:  logger.With("component", "storage"),
	}, nil
}

// NewFileStorageService creates a storage service rooted at dir.
func NewFileStorageService(dir string, logger *slog.Logger) (*StorageService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &StorageService{
		backend: &fileBackend{root: dir},
		logger:  logger.With("component", "storage"),
	}, nil
}

// Backend names the active backend ("s3" or "file").
func (s *StorageService) Backend() string {
	return s.backend.name()
}

// ModelKey returns the storage key of a model file.
func ModelKey(projectID, modelID string, format mesh.Format) string {
	return fmt.Sprintf("%s%s/%s.%s", modelPrefix, projectID, modelID, format)
}

// DetectContentType sniffs the MIME type of an upload.
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

// PutModel stores a model file.
func (s *StorageService) PutModel(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.backend.put(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("failed to store model file: %w", err)
	}
	s.logger.Debug("stored model file", "key", key, "size_bytes", len(data))
	return nil
}

// GetModel loads a model file.
func (s *StorageService) GetModel(ctx context.Context, key string) ([]byte, error) {
	data, err := s.backend.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load model file %s: %w", key, err)
	}
	return data, nil
}

// DeleteModel removes a model file. Missing files are not an error.
func (s *StorageService) DeleteModel(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.backend.delete(ctx, key); err != nil && !errors.Is(err, ErrBlobNotFound) {
		return fmt.Errorf("failed to delete model file %s: %w", key, err)
	}
	s.logger.Debug("deleted model file", "key", key)
	return nil
}

// ListModels lists every stored model file.
func (s *StorageService) ListModels(ctx context.Context) ([]BlobInfo, error) {
	blobs, err := s.backend.list(ctx, modelPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list model files: %w", err)
	}
	return blobs, nil
}

// ========================================
// S3 backend
// ========================================

type s3Backend struct {
	client *s3.Client
	bucket string
}

func (b *s3Backend) name() string { return "s3" }

func (b *s3Backend) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (b *s3Backend) get(ctx context.Context, key string) ([]byte, error) {
	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	defer func() { _ = output.Body.Close() }()
	return io.ReadAll(output.Body)
}

func (b *s3Backend) delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (b *s3Backend) list(ctx context.Context, prefix string) ([]BlobInfo, error) {
	var out []BlobInfo
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out = append(out, BlobInfo{
				Key:     aws.ToString(obj.Key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// ========================================
// Filesystem backend
// ========================================

type fileBackend struct {
	root string
}

func (b *fileBackend) name() string { return "file" }

func (b *fileBackend) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}

// put writes to a temporary file and renames it so readers never observe a
// partially written file.
func (b *fileBackend) put(_ context.Context, key string, data []byte, _ string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (b *fileBackend) get(_ context.Context, key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

func (b *fileBackend) delete(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}

func (b *fileBackend) list(_ context.Context, prefix string) ([]BlobInfo, error) {
	dir := filepath.Join(b.root, filepath.FromSlash(prefix))
	var out []BlobInfo
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		out = append(out, BlobInfo{Key: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	return out, err
}
