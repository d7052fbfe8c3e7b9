package service

import "errors"

// Sentinel errors returned by services. Handlers map them to HTTP statuses;
// callers match them with errors.Is since they are usually wrapped with the
// offending id.
var (
	// ErrNotFound indicates the referenced project or model does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the operation raced a concurrent change such as
	// a deletion, re-upload or parameter update.
	ErrConflict = errors.New("conflict")

	// ErrNotReady indicates a precondition is not met yet, e.g. quoting a
	// model that has not finished processing.
	ErrNotReady = errors.New("not ready")

	// ErrUnsupportedFormat indicates an upload whose extension is not a
	// supported mesh format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrTooLarge indicates an upload above the configured size cap.
	ErrTooLarge = errors.New("file too large")

	// ErrInvalidInput indicates a malformed request field outside the
	// pricing parameters.
	ErrInvalidInput = errors.New("invalid input")
)
