package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValidation is the kind of every input rejected before a write is attempted.
var ErrValidation = errors.New("validation")

// ValidationError lists the offending fields of a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError from field -> reason pairs.
func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}
