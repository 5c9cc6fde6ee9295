package model

// types.go - Consolidated layer schema type definitions
// This file contains the closed kind sets and descriptor types used throughout
// Strata. All serialization and storage code should import these types from
// core/model rather than defining their own.

import (
	"fmt"

	strataerr "github.com/strata-nlp/strata/core/errors"
)

// LayerKind represents the positional semantics of a layer.
type LayerKind string

// Layer kind constants.
const (
	// KindCharacters is the base text layer, addressed by Unicode
	// character offset.
	KindCharacters LayerKind = "characters"

	// KindSpan annotations carry an explicit start and end into the
	// sublayer.
	KindSpan LayerKind = "span"

	// KindDiv annotations carry a start only; each division runs until
	// the next annotation's start (exclusive) or the sublayer's end.
	KindDiv LayerKind = "div"

	// KindElement annotations mark a single sublayer index (end is
	// start+1).
	KindElement LayerKind = "element"

	// KindSeq annotations are in one-to-one correspondence with the
	// sublayer's indices and carry no positions of their own.
	KindSeq LayerKind = "seq"
)

// validLayerKinds is the set of valid layer kinds.
var validLayerKinds = map[LayerKind]bool{
	KindCharacters: true,
	KindSpan:       true,
	KindDiv:        true,
	KindElement:    true,
	KindSeq:        true,
}

// IsValid returns true if the layer kind is valid.
func (k LayerKind) IsValid() bool {
	return validLayerKinds[k]
}

// DataKind represents the kind of data attached to a layer's annotations.
type DataKind string

// Data kind constants.
const (
	DataNone      DataKind = "none"
	DataString    DataKind = "string"
	DataEnum      DataKind = "enum"
	DataLink      DataKind = "link"
	DataTypedLink DataKind = "typed_link"
)

// validDataKinds is the set of valid data kinds.
var validDataKinds = map[DataKind]bool{
	DataNone:      true,
	DataString:    true,
	DataEnum:      true,
	DataLink:      true,
	DataTypedLink: true,
}

// IsValid returns true if the data kind is valid.
func (d DataKind) IsValid() bool {
	return validDataKinds[d]
}

// Value is the data slot of one annotation. The concrete type is fixed
// by the owning descriptor's DataKind when the annotation is built, so
// downstream code never inspects serialized forms. A nil Value means the
// layer carries no data (DataNone).
type Value interface {
	value()
}

// StringValue is a free-text or enum-constrained string value.
type StringValue string

func (StringValue) value() {}

// LinkValue references an annotation in the target layer by index.
type LinkValue struct {
	Target int
}

func (LinkValue) value() {}

// TypedLinkValue references an annotation in the target layer by index
// and carries a label drawn from the descriptor's closed label set.
type TypedLinkValue struct {
	Target int
	Label  string
}

func (TypedLinkValue) value() {}

// Annotation is one entry in a layer. Which position fields are
// meaningful depends on the owning layer's kind: span uses Start and
// End, div and element use Start only, seq uses neither (the entry's
// index is its position).
type Annotation struct {
	Start int
	End   int
	Data  Value
}

// LayerDesc declares one layer's kind, base layer and data kind. It is
// pure metadata: descriptors carry no runtime state and are shared by
// every document in a corpus.
type LayerDesc struct {
	// Name is the layer name, the key under _meta.
	Name string

	// Kind is the positional semantics of the layer.
	Kind LayerKind

	// On names the sublayer this layer's positions index into. Empty
	// for (and only for) characters layers.
	On string

	// Data is the kind of data attached to each annotation.
	Data DataKind

	// Enum is the allowed value set when Data is DataEnum.
	Enum []string

	// Target names the layer links point into when Data is DataLink or
	// DataTypedLink. Empty means the sublayer named by On.
	Target string

	// LinkTypes is the allowed label set when Data is DataTypedLink.
	LinkTypes []string

	// Default is an annotation list materialized into documents that do
	// not supply this layer.
	Default []Annotation

	// URI is an optional documentation URI for the layer.
	URI string
}

// LinkTarget returns the layer that link data points into: the declared
// Target, or the sublayer when no target was declared.
func (d *LayerDesc) LinkTarget() string {
	if d.Target != "" {
		return d.Target
	}
	return d.On
}

// Check verifies the descriptor's local invariants: known kind and data
// kind, On present exactly when the kind needs it, non-empty unique
// allowed sets for enum and typed_link data.
func (d *LayerDesc) Check() error {
	if d.Name == "" {
		return &strataerr.SchemaError{Message: "layer name is required"}
	}
	if !d.Kind.IsValid() {
		return &strataerr.SchemaError{Layer: d.Name,
			Message: fmt.Sprintf("unknown layer kind %q", string(d.Kind))}
	}
	if !d.Data.IsValid() {
		return &strataerr.SchemaError{Layer: d.Name,
			Message: fmt.Sprintf("unknown data kind %q", string(d.Data))}
	}
	if d.Kind == KindCharacters {
		if d.On != "" {
			return &strataerr.SchemaError{Layer: d.Name,
				Message: "characters layer cannot be based on another layer"}
		}
		if d.Data != DataNone {
			return &strataerr.SchemaError{Layer: d.Name,
				Message: "characters layer cannot carry data"}
		}
		return nil
	}
	if d.On == "" {
		return &strataerr.SchemaError{Layer: d.Name,
			Message: fmt.Sprintf("layer of kind %s must be based on another layer", d.Kind)}
	}
	switch d.Data {
	case DataEnum:
		if err := checkAllowedSet(d.Name, "enum values", d.Enum); err != nil {
			return err
		}
	case DataTypedLink:
		if err := checkAllowedSet(d.Name, "link types", d.LinkTypes); err != nil {
			return err
		}
	}
	if d.Data != DataLink && d.Data != DataTypedLink && d.Target != "" {
		return &strataerr.SchemaError{Layer: d.Name,
			Message: "target is only valid for link data"}
	}
	return nil
}

// checkAllowedSet verifies a closed value set is non-empty and free of
// duplicates.
func checkAllowedSet(layer, what string, values []string) error {
	if len(values) == 0 {
		return &strataerr.SchemaError{Layer: layer,
			Message: fmt.Sprintf("%s must be non-empty", what)}
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return &strataerr.SchemaError{Layer: layer,
				Message: fmt.Sprintf("duplicate entry %q in %s", v, what)}
		}
		seen[v] = true
	}
	return nil
}

// Meta is a descriptor set: the mapping from layer name to LayerDesc
// shared by all documents of a corpus.
type Meta map[string]*LayerDesc

// Check verifies every descriptor in the set, that every On and Target
// names a declared layer, and that every base chain terminates at a
// characters layer.
func (m Meta) Check() error {
	for name, d := range m {
		if d.Name != name {
			return &strataerr.SchemaError{Layer: name,
				Message: fmt.Sprintf("descriptor name %q does not match key", d.Name)}
		}
		if err := d.Check(); err != nil {
			return err
		}
		if d.Kind != KindCharacters {
			if _, ok := m[d.On]; !ok {
				return &strataerr.SchemaError{Layer: name,
					Message: fmt.Sprintf("sublayer %q is not declared", d.On)}
			}
			if target := d.LinkTarget(); target != "" {
				if _, ok := m[target]; !ok {
					return &strataerr.SchemaError{Layer: name,
						Message: fmt.Sprintf("link target layer %q is not declared", target)}
				}
			}
		}
	}
	// Base chains must reach a characters layer without cycles.
	for name := range m {
		seen := map[string]bool{}
		cur := name
		for m[cur].Kind != KindCharacters {
			if seen[cur] {
				return &strataerr.SchemaError{Layer: name,
					Message: "cycle in sublayer references"}
			}
			seen[cur] = true
			cur = m[cur].On
		}
	}
	return nil
}

// CharacterLayers returns the names of all characters-kind layers in the
// set, in unspecified order.
func (m Meta) CharacterLayers() []string {
	var names []string
	for name, d := range m {
		if d.Kind == KindCharacters {
			names = append(names, name)
		}
	}
	return names
}

// Merge adds every descriptor from other into m. A layer declared in
// both sets with a different descriptor is a schema error; identical
// redeclaration is a no-op. Used for corpus extension, where a corpus
// inherits the descriptors of the corpus it extends.
func (m Meta) Merge(other Meta) error {
	for name, d := range other {
		existing, ok := m[name]
		if !ok {
			m[name] = d
			continue
		}
		if !descEqual(existing, d) {
			return &strataerr.SchemaError{Layer: name,
				Message: "layer redeclared with a different descriptor"}
		}
	}
	return nil
}

// descEqual compares two descriptors field by field.
func descEqual(a, b *LayerDesc) bool {
	if a.Name != b.Name || a.Kind != b.Kind || a.On != b.On ||
		a.Data != b.Data || a.Target != b.Target || a.URI != b.URI {
		return false
	}
	if !stringSliceEqual(a.Enum, b.Enum) || !stringSliceEqual(a.LinkTypes, b.LinkTypes) {
		return false
	}
	if len(a.Default) != len(b.Default) {
		return false
	}
	for i := range a.Default {
		if a.Default[i] != b.Default[i] {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
