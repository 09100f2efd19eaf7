package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline and backend.
var (
	// ErrSchemaMismatch marks a persisted artifact missing required columns
	// or carrying a stale version tag. Never coerced; the fix is a rebuild.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrChunkNotFound marks an unknown chunk id in the metadata store.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrGeneration marks a malformed or incomplete model response.
	ErrGeneration = errors.New("generation failed")
)

// SchemaError reports an artifact that cannot be reused, with the path and
// the instruction the operator needs.
type SchemaError struct {
	Path   string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema mismatch at %s: %s; run a full rebuild to refresh the artifacts", e.Path, e.Detail)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

// NewSchemaError creates a SchemaError.
func NewSchemaError(path, format string, args ...any) *SchemaError {
	return &SchemaError{Path: path, Detail: fmt.Sprintf(format, args...)}
}
