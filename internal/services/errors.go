package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying stage and integration failures. Wrap tags an
// error with one of these so callers can decide between retry, skip, and
// terminal failure without parsing messages.
var (
	ErrTransient     = errors.New("transient failure")
	ErrNotFound      = errors.New("not found")
	ErrCorrupt       = errors.New("corrupt asset")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrFatal         = errors.New("fatal failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRecoverable reports whether a stage error should be retried by the job
// queue rather than failing the job terminally. Unclassified errors are
// treated as recoverable so flaky integrations get the retry policy by
// default; only explicit validation, configuration, and fatal markers are
// terminal.
func IsRecoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrFatal):
		return false
	default:
		return true
	}
}

// IsNotFound reports whether the error carries the not-found marker.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorrupt reports whether the error carries the corrupt-asset marker.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
