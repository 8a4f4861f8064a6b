// Package errors provides the error taxonomy shared by the ifcslim packages.
//
// Structural errors are fatal for a whole run. Geometry errors are scoped to a
// single product and only cause that product to be skipped.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrStructural indicates a malformed entity graph (cycles, dangling references)
	ErrStructural = errors.New("structural error")
	// ErrGeometryUnsupported indicates geometry that cannot be evaluated
	ErrGeometryUnsupported = errors.New("geometry unsupported")
	// ErrGeometryTimeout indicates a product exceeded its resolution deadline
	ErrGeometryTimeout = errors.New("geometry timeout")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// StructuralError reports a malformed graph. It is never recoverable.
type StructuralError struct {
	Entity  int64  // Entity where the problem was detected (0 if not tied to one)
	Message string // Human-readable description
	Err     error  // Underlying error, if any
}

func (e *StructuralError) Error() string {
	if e.Entity != 0 {
		return fmt.Sprintf("structural error at #%d: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("structural error: %s", e.Message)
}

func (e *StructuralError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrStructural
}

// GeometryKind classifies a per-product geometry failure.
type GeometryKind string

const (
	GeometryUnsupported GeometryKind = "GeometryUnsupported"
	GeometryTimeout     GeometryKind = "GeometryTimeout"
	GeometryStructural  GeometryKind = "StructuralError"
)

// GeometryError represents a failure to resolve one product's geometry.
type GeometryError struct {
	Kind    GeometryKind
	Product int64 // Product being resolved (filled in by the resolver)
	Entity  int64 // Offending representation item or helper entity
	Message string
	Err     error
}

func (e *GeometryError) Error() string {
	switch {
	case e.Product != 0 && e.Entity != 0 && e.Product != e.Entity:
		return fmt.Sprintf("%s: product #%d, entity #%d: %s", e.Kind, e.Product, e.Entity, e.Message)
	case e.Entity != 0:
		return fmt.Sprintf("%s: entity #%d: %s", e.Kind, e.Entity, e.Message)
	case e.Product != 0:
		return fmt.Sprintf("%s: product #%d: %s", e.Kind, e.Product, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GeometryError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.sentinel()
}

// Is matches the sentinel of the error's kind even when Err is set.
func (e *GeometryError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *GeometryError) sentinel() error {
	switch e.Kind {
	case GeometryTimeout:
		return ErrGeometryTimeout
	case GeometryStructural:
		return ErrStructural
	}
	return ErrGeometryUnsupported
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "STEP", "YAML")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewStructural creates a StructuralError
func NewStructural(entity int64, format string, args ...interface{}) *StructuralError {
	return &StructuralError{
		Entity:  entity,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnsupportedGeometry creates a GeometryError of kind GeometryUnsupported
func NewUnsupportedGeometry(entity int64, format string, args ...interface{}) *GeometryError {
	return &GeometryError{
		Kind:    GeometryUnsupported,
		Entity:  entity,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewGeometryTimeout creates a GeometryError of kind GeometryTimeout
func NewGeometryTimeout(product int64, err error) *GeometryError {
	return &GeometryError{
		Kind:    GeometryTimeout,
		Product: product,
		Message: "resolution deadline exceeded",
		Err:     err,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// GeometryKindOf reports the geometry kind carried by err, if any.
// Structural errors raised while resolving geometry map to GeometryStructural.
func GeometryKindOf(err error) (GeometryKind, bool) {
	var ge *GeometryError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	var se *StructuralError
	if errors.As(err, &se) {
		return GeometryStructural, true
	}
	return "", false
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
