package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/meshquote-api/internal/mesh"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/service"
)

// uploadField is the multipart field carrying the model file.
const uploadField = "file"

// multipartOverhead allows for boundaries and part headers on top of the
// file size cap.
const multipartOverhead = 1 << 20

// ModelService is what the model handlers need from the service layer.
type ModelService interface {
	CheckUpload(filename string, size int64) (mesh.Format, error)
	Submit(ctx context.Context, input service.SubmitInput) (*models.Model, error)
	Wait(ctx context.Context, modelID string, wait time.Duration) (*models.Model, error)
	WaitByProject(ctx context.Context, projectID string, wait time.Duration) (*models.Model, error)
	Delete(ctx context.Context, modelID string) error
	DeleteByProject(ctx context.Context, projectID string) error
	Reprocess(ctx context.Context, projectID string) (*models.Model, error)
	OpenFile(ctx context.Context, projectID string) (*models.Model, []byte, error)
}

// ModelHandler handles model upload, status and file endpoints.
type ModelHandler struct {
	svc            ModelService
	maxUploadBytes int64
}

// NewModelHandler creates a new model handler. maxUploadBytes bounds the
// request body of uploads; zero disables the bound.
func NewModelHandler(svc ModelService, maxUploadBytes int64) *ModelHandler {
	return &ModelHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// ModelOutput wraps a model record.
type ModelOutput struct {
	Body *models.Model
}

// GetModelInput represents a model status request.
type GetModelInput struct {
	ID   string `path:"id" doc:"Model ID"`
	Wait int    `query:"wait" default:"0" minimum:"0" maximum:"60" doc:"Seconds to wait for processing to finish"`
}

// GetModel returns a model's status by id, optionally long-polling until
// processing finishes.
func (h *ModelHandler) GetModel(ctx context.Context, input *GetModelInput) (*ModelOutput, error) {
	m, err := h.svc.Wait(ctx, input.ID, time.Duration(input.Wait)*time.Second)
	if err != nil {
		return nil, toHumaError(err, "get model")
	}
	return &ModelOutput{Body: m}, nil
}

// GetProjectModelInput represents a status request for a project's model.
type GetProjectModelInput struct {
	ID   string `path:"id" doc:"Project ID"`
	Wait int    `query:"wait" default:"0" minimum:"0" maximum:"60" doc:"Seconds to wait for processing to finish"`
}

// GetProjectModel returns the status of a project's current model.
func (h *ModelHandler) GetProjectModel(ctx context.Context, input *GetProjectModelInput) (*ModelOutput, error) {
	m, err := h.svc.WaitByProject(ctx, input.ID, time.Duration(input.Wait)*time.Second)
	if err != nil {
		return nil, toHumaError(err, "get model")
	}
	return &ModelOutput{Body: m}, nil
}

// ModelIDInput identifies a model by path.
type ModelIDInput struct {
	ID string `path:"id" doc:"Model ID"`
}

// DeleteModel removes a model by id.
func (h *ModelHandler) DeleteModel(ctx context.Context, input *ModelIDInput) (*struct{}, error) {
	if err := h.svc.Delete(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "delete model")
	}
	return nil, nil
}

// DeleteProjectModel removes a project's current model.
func (h *ModelHandler) DeleteProjectModel(ctx context.Context, input *ProjectIDInput) (*struct{}, error) {
	if err := h.svc.DeleteByProject(ctx, input.ID); err != nil {
		return nil, toHumaError(err, "delete model")
	}
	return nil, nil
}

// ReprocessModel restarts processing of a project's current file.
func (h *ModelHandler) ReprocessModel(ctx context.Context, input *ProjectIDInput) (*ModelOutput, error) {
	m, err := h.svc.Reprocess(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err, "reprocess model")
	}
	return &ModelOutput{Body: m}, nil
}

// ========================================
// Raw handlers (multipart upload, file download)
// ========================================

// UploadModel handles POST /api/v1/projects/{id}/model. The file's extension
// is checked before its body is read and the body is capped at the upload
// limit. Processing happens in the background; the response is 202 with the
// queued model.
func (h *ModelHandler) UploadModel(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project ID required"})
		return
	}

	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes+multipartOverhead {
			writeRawError(w, fmt.Errorf("%w: %d bytes exceeds limit of %d", service.ErrTooLarge, r.ContentLength, h.maxUploadBytes), "upload model")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}

	part, err := findFilePart(r)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer part.Close()

	filename := part.FileName()
	if _, err := h.svc.CheckUpload(filename, 0); err != nil {
		writeRawError(w, err, "upload model")
		return
	}

	reader := io.Reader(part)
	if h.maxUploadBytes > 0 {
		reader = io.LimitReader(part, h.maxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	m, err := h.svc.Submit(r.Context(), service.SubmitInput{
		ProjectID: projectID,
		Filename:  filename,
		Data:      data,
	})
	if err != nil {
		writeRawError(w, err, "upload model")
		return
	}
	writeJSON(w, http.StatusAccepted, m)
}

// findFilePart returns the multipart part carrying the model file.
func findFilePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart/form-data with a %q field", service.ErrInvalidInput, uploadField)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: missing %q field", service.ErrInvalidInput, uploadField)
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField {
			return part, nil
		}
		_ = part.Close()
	}
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeRawError(w, fmt.Errorf("%w: request exceeds %d bytes", service.ErrTooLarge, maxErr.Limit), "upload model")
		return
	}
	if errors.Is(err, service.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeRawError(w, err, "upload model")
}

// DownloadModel handles GET /api/v1/projects/{id}/model/file.
func (h *ModelHandler) DownloadModel(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	m, data, err := h.svc.OpenFile(r.Context(), projectID)
	if err != nil {
		writeRawError(w, err, "download model")
		return
	}

	filename := m.OriginalName
	if filename == "" {
		filename = m.ID + "." + string(m.Format)
	}
	w.Header().Set("Content-Type", m.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// UploadModelInput documents the multipart upload for OpenAPI.
type UploadModelInput struct {
	ID      string `path:"id" doc:"Project ID"`
	RawBody huma.MultipartFormFiles[struct {
		File huma.FormFile `form:"file" contentType:"application/sla,text/plain,application/octet-stream" required:"true" doc:"Mesh file (.stl, .obj or .3mf)"`
	}]
}

// DownloadModelOutput documents the file download for OpenAPI.
type DownloadModelOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// RegisterRawEndpoints registers the raw upload and download endpoints with
// Huma for OpenAPI documentation. The actual handlers are mounted on chi.
func (h *ModelHandler) RegisterRawEndpoints(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "uploadModel",
		Method:      http.MethodPost,
		Path:        "/api/v1/projects/{id}/model",
		Summary:     "Upload a model file",
		Description: `Uploads a mesh file (STL, OBJ or 3MF) for the project and queues it for processing.

The file replaces any model the project already has. The response is returned
immediately with status 202; poll GET /api/v1/models/{id} for the outcome.`,
		Tags:          []string{"Models"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType},
	}, func(ctx context.Context, input *UploadModelInput) (*ModelOutput, error) {
		// Placeholder handler - the upload is handled by chi.
		return nil, huma.Error501NotImplemented("handled by raw endpoint")
	})

	huma.Register(api, huma.Operation{
		OperationID: "downloadModel",
		Method:      http.MethodGet,
		Path:        "/api/v1/projects/{id}/model/file",
		Summary:     "Download the model file",
		Description: "Returns the stored bytes of the project's model with its format's content type.",
		Tags:        []string{"Models"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ProjectIDInput) (*DownloadModelOutput, error) {
		// Placeholder handler - the download is handled by chi.
		return nil, huma.Error501NotImplemented("handled by raw endpoint")
	})
}
