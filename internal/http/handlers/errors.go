package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/meshquote-api/internal/pricing"
	"github.com/jmylchreest/meshquote-api/internal/service"
)

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var verr *pricing.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, service.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// toHumaError maps a service error to an HTTP error. Unknown errors become
// 500 with a generic message; the cause is logged instead of returned.
func toHumaError(err error, action string) error {
	status := statusFor(err)
	switch status {
	case http.StatusUnprocessableEntity:
		var verr *pricing.ValidationError
		if errors.As(err, &verr) {
			details := make([]error, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				details = append(details, &huma.ErrorDetail{
					Message:  f.Message,
					Location: "body." + f.Field,
				})
			}
			return huma.Error422UnprocessableEntity("invalid calculation parameters", details...)
		}
		return huma.Error422UnprocessableEntity(err.Error())
	case http.StatusNotFound:
		return huma.Error404NotFound(err.Error())
	case http.StatusConflict:
		return huma.Error409Conflict(err.Error())
	case http.StatusUnsupportedMediaType:
		return huma.Error415UnsupportedMediaType(err.Error())
	case http.StatusRequestEntityTooLarge:
		return huma.NewError(status, err.Error())
	default:
		slog.Error("request failed", "action", action, "error", err)
		return huma.Error500InternalServerError("failed to " + action)
	}
}

// writeRawError writes an error from a raw chi handler.
func writeRawError(w http.ResponseWriter, err error, action string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "action", action, "error", err)
		msg = "failed to " + action
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
