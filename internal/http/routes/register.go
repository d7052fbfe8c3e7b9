package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/meshquote-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
// Pass real handler implementations for the main server, or stub implementations
// for OpenAPI generation. The multipart upload and file download are only
// documented here; the server mounts their raw handlers on the router after
// calling Register.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Health
	// =========================================================================

	mw.Get(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Kubernetes health checks (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Projects
	// =========================================================================

	mw.Get(api, "/api/v1/projects", h.Project.ListProjects,
		mw.WithTags("Projects"),
		mw.WithSummary("List projects"),
		mw.WithOperationID("listProjects"))
	mw.Post(api, "/api/v1/projects", h.Project.CreateProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Create project"),
		mw.WithOperationID("createProject"),
		mw.WithDefaultStatus(http.StatusCreated))
	mw.Get(api, "/api/v1/projects/{id}", h.Project.GetProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Get project with model, parameters and quote"),
		mw.WithOperationID("getProject"))
	mw.Patch(api, "/api/v1/projects/{id}", h.Project.UpdateProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Update project"),
		mw.WithOperationID("updateProject"))
	mw.Delete(api, "/api/v1/projects/{id}", h.Project.DeleteProject,
		mw.WithTags("Projects"),
		mw.WithSummary("Delete project"),
		mw.WithDescription("Deletes the project together with its model file, parameters, quote and text."),
		mw.WithOperationID("deleteProject"))

	// =========================================================================
	// Models
	// =========================================================================

	mw.Get(api, "/api/v1/models/{id}", h.Model.GetModel,
		mw.WithTags("Models"),
		mw.WithSummary("Get model status"),
		mw.WithDescription("Returns the processing status of a model. With wait > 0 the request blocks until processing finishes or the wait elapses."),
		mw.WithOperationID("getModel"))
	mw.Delete(api, "/api/v1/models/{id}", h.Model.DeleteModel,
		mw.WithTags("Models"),
		mw.WithSummary("Delete model"),
		mw.WithOperationID("deleteModel"))
	mw.Get(api, "/api/v1/projects/{id}/model", h.Model.GetProjectModel,
		mw.WithTags("Models"),
		mw.WithSummary("Get the project's model status"),
		mw.WithOperationID("getProjectModel"))
	mw.Delete(api, "/api/v1/projects/{id}/model", h.Model.DeleteProjectModel,
		mw.WithTags("Models"),
		mw.WithSummary("Delete the project's model"),
		mw.WithOperationID("deleteProjectModel"))
	mw.Post(api, "/api/v1/projects/{id}/model/reprocess", h.Model.ReprocessModel,
		mw.WithTags("Models"),
		mw.WithSummary("Reprocess the project's model"),
		mw.WithOperationID("reprocessModel"),
		mw.WithDefaultStatus(http.StatusAccepted))

	h.Model.RegisterRawEndpoints(api)

	// =========================================================================
	// Calculation
	// =========================================================================

	mw.Get(api, "/api/v1/projects/{id}/params", h.Calc.GetParams,
		mw.WithTags("Calculation"),
		mw.WithSummary("Get pricing parameters"),
		mw.WithOperationID("getParams"))
	mw.Patch(api, "/api/v1/projects/{id}/params", h.Calc.UpdateParams,
		mw.WithTags("Calculation"),
		mw.WithSummary("Update pricing parameters"),
		mw.WithDescription("Partial update. The merged parameters are validated as a whole; any stored calculation is invalidated."),
		mw.WithOperationID("updateParams"))
	mw.Get(api, "/api/v1/projects/{id}/calculation", h.Calc.GetCalculation,
		mw.WithTags("Calculation"),
		mw.WithSummary("Calculate cost"),
		mw.WithDescription("Prices the processed model with the current parameters. Returns 409 until the model is done."),
		mw.WithOperationID("getCalculation"))
	mw.Post(api, "/api/v1/projects/{id}/ai-text", h.Calc.GenerateAiText,
		mw.WithTags("Calculation"),
		mw.WithSummary("Generate description and commercial text"),
		mw.WithOperationID("generateAiText"))
	mw.Get(api, "/api/v1/projects/{id}/ai-text", h.Calc.GetAiText,
		mw.WithTags("Calculation"),
		mw.WithSummary("Get generated text"),
		mw.WithOperationID("getAiText"))
}
