package core

import (
	"errors"
	"fmt"
)

// Domain errors returned by Service. Match them with errors.Is.
var (
	ErrDuplicateUsername    = errors.New("username already registered")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrInvalidInput         = errors.New("invalid input")
	ErrFormatValidation     = errors.New("invalid csv")
	ErrFileTooLarge         = errors.New("file too large")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrReferentialIntegrity = errors.New("referential integrity violation")
)

// Narrower not-found errors. Both match ErrNotFound.
var (
	ErrFileNotFound = fmt.Errorf("file %w", ErrNotFound)
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
)

// FormatError describes why an upload is not a usable CSV table. Line is
// the 1-based input line, or 0 when the problem is not tied to a line.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid csv: line %d: %s", e.Line, e.Reason)
	}
	return "invalid csv: " + e.Reason
}

// Is makes every FormatError match ErrFormatValidation.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormatValidation
}

func formatErrorf(line int, format string, args ...any) *FormatError {
	return &FormatError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
