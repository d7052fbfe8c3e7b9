package mesh

import "fmt"

// Reason classifies why a payload could not be decoded.
type Reason string

const (
	ReasonMalformed   Reason = "malformed"
	ReasonUnsupported Reason = "unsupported"
	ReasonEmpty       Reason = "empty"
	// ReasonTooLarge is returned when the triangle ceiling is exceeded.
	ReasonTooLarge Reason = "too_large"
)

// ParseError is returned by every parser in this package.
type ParseError struct {
	Format Format
	Reason Reason
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s parse error: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("%s parse error: %s: %s", e.Format, e.Reason, e.Detail)
}

func malformed(f Format, format string, args ...any) *ParseError {
	return &ParseError{Format: f, Reason: ReasonMalformed, Detail: fmt.Sprintf(format, args...)}
}

func empty(f Format, detail string) *ParseError {
	return &ParseError{Format: f, Reason: ReasonEmpty, Detail: detail}
}

func tooLarge(f Format, limit int) *ParseError {
	return &ParseError{Format: f, Reason: ReasonTooLarge, Detail: fmt.Sprintf("more than %d triangles", limit)}
}
