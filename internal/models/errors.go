package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrDuplicateTrackingNumber = errors.New("duplicate tracking number")
	ErrNotFound                = errors.New("shipment not found")
	ErrGenerationExhausted     = errors.New("tracking number generation exhausted")
	ErrTransitionNotAllowed    = errors.New("status transition not allowed")
)

// ValidationError lists the offending input fields. It matches ErrValidation via errors.Is.
type ValidationError struct {
	Fields []string
	Reason string
}

func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: reason}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
