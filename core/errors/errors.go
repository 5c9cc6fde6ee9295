// Package errors provides standardized error types and helpers for the Strata codebase.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	// ErrSchema indicates a malformed layer descriptor
	ErrSchema = errors.New("invalid layer schema")
	// ErrValidation indicates a document failed validation against its descriptors
	ErrValidation = errors.New("validation failed")
	// ErrCollision indicates a truncated document key collided with a different document
	ErrCollision = errors.New("key collision")
	// ErrOrder indicates a document ordering that is not a permutation of the stored keys
	ErrOrder = errors.New("invalid order")
	// ErrLoad indicates malformed serialized input
	ErrLoad = errors.New("load failed")
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
)

// SchemaError represents a malformed LayerDesc declaration.
type SchemaError struct {
	Layer   string // Layer name being declared
	Message string // Human-readable error message
}

func (e *SchemaError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("invalid schema for layer %s: %s", e.Layer, e.Message)
	}
	return fmt.Sprintf("invalid schema: %s", e.Message)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// ValidationError represents a structural validation failure that is
// not an index, link or enum violation: an undeclared layer in a
// document, a missing required layer, a malformed annotation shape.
type ValidationError struct {
	Layer   string // Layer name, if the failure is layer-scoped
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("layer %s: %s", e.Layer, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IndexError represents an annotation position outside the addressable
// range of the sublayer.
type IndexError struct {
	Layer    string // Layer containing the bad annotation
	Index    int    // Annotation index within the layer
	Position int    // Offending position value
	Length   int    // Addressable length of the sublayer
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("layer %s annotation %d: position %d out of range for sublayer of length %d",
		e.Layer, e.Index, e.Position, e.Length)
}

func (e *IndexError) Unwrap() error {
	return ErrValidation
}

// DanglingLinkError represents a link annotation whose target index does
// not resolve in the target layer.
type DanglingLinkError struct {
	Layer       string // Layer containing the link
	Index       int    // Annotation index within the layer
	Target      int    // Unresolvable target index
	TargetLayer string // Layer the link points into
	Length      int    // Current length of the target layer
}

func (e *DanglingLinkError) Error() string {
	return fmt.Sprintf("layer %s annotation %d: link target %d does not resolve in layer %s (length %d)",
		e.Layer, e.Index, e.Target, e.TargetLayer, e.Length)
}

func (e *DanglingLinkError) Unwrap() error {
	return ErrValidation
}

// EnumViolationError represents an annotation value outside a layer's
// declared allowed set.
type EnumViolationError struct {
	Layer   string   // Layer containing the annotation
	Index   int      // Annotation index within the layer
	Value   string   // Offending value or link label
	Allowed []string // Declared allowed set
}

func (e *EnumViolationError) Error() string {
	return fmt.Sprintf("layer %s annotation %d: value %q not in allowed set [%s]",
		e.Layer, e.Index, e.Value, strings.Join(e.Allowed, ", "))
}

func (e *EnumViolationError) Unwrap() error {
	return ErrValidation
}

// KeyCollisionError represents a truncated document key that collides
// with a different, already stored document.
type KeyCollisionError struct {
	Key string // The colliding truncated key
}

func (e *KeyCollisionError) Error() string {
	return fmt.Sprintf("document key %q collides with a different document; lengthen the key prefix or supply an explicit key", e.Key)
}

func (e *KeyCollisionError) Unwrap() error {
	return ErrCollision
}

// OrderError represents a requested document order that is not a
// permutation of the corpus's stored keys.
type OrderError struct {
	Message string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("invalid document order: %s", e.Message)
}

func (e *OrderError) Unwrap() error {
	return ErrOrder
}

// LoadError represents malformed serialized corpus input. It records
// which document failed, when known, and wraps the underlying cause.
type LoadError struct {
	Doc     string // Document key, if the failure is document-scoped
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *LoadError) Error() string {
	switch {
	case e.Doc != "" && e.Err != nil:
		return fmt.Sprintf("failed to load document %s: %s: %v", e.Doc, e.Message, e.Err)
	case e.Doc != "":
		return fmt.Sprintf("failed to load document %s: %s", e.Doc, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("failed to load corpus: %s: %v", e.Message, e.Err)
	default:
		return fmt.Sprintf("failed to load corpus: %s", e.Message)
	}
}

func (e *LoadError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrLoad
}

// Is reports ErrLoad for every LoadError, including those wrapping a
// more specific cause.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// NotFoundError represents a missing document, layer or store entry.
type NotFoundError struct {
	Resource string // Type of resource (e.g., "document", "layer")
	ID       string // Identifier of the resource
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsValidation returns true if the error is any member of the
// validation family (index, dangling link, enum violation).
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsSchema returns true if the error is a schema error.
func IsSchema(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsCollision returns true if the error is a key collision.
func IsCollision(err error) bool {
	return errors.Is(err, ErrCollision)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
