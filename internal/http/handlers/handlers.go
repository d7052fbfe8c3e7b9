// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/meshquote-api/internal/version"
)

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	return out, nil
}

// LivezOutput is the liveness check response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports that the process is up. It never touches dependencies.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ReadyzOutput is the readiness check response.
type ReadyzOutput struct {
	Body struct {
		Status     string `json:"status"`
		QueueDepth *int64 `json:"queue_depth,omitempty" doc:"Models waiting for a worker"`
	}
}

// DBPinger is satisfied by *sql.DB.
type DBPinger interface {
	Ping() error
}

// QueueDepther is satisfied by every queue.Queue.
type QueueDepther interface {
	Depth(ctx context.Context) (int64, error)
}

// ReadyzHandler reports readiness based on database and queue connectivity.
type ReadyzHandler struct {
	db    DBPinger
	queue QueueDepther
}

// NewReadyzHandler creates a readiness handler. Nil dependencies are skipped.
func NewReadyzHandler(db DBPinger, q QueueDepther) *ReadyzHandler {
	return &ReadyzHandler{db: db, queue: q}
}

// Readyz pings the database and reads the queue depth.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			return nil, huma.Error503ServiceUnavailable("database unavailable")
		}
	}
	out := &ReadyzOutput{}
	if h.queue != nil {
		depth, err := h.queue.Depth(ctx)
		if err != nil {
			return nil, huma.Error503ServiceUnavailable("queue unavailable")
		}
		out.Body.QueueDepth = &depth
	}
	out.Body.Status = "ok"
	return out, nil
}
