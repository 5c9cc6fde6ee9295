package model

import (
	"fmt"
	"sort"

	strataerr "github.com/strata-nlp/strata/core/errors"
)

// Document is a mapping from layer name to layer, together with the
// descriptor set needed to interpret it. Documents never hold a
// reference back to the owning corpus; the descriptor set is copied in
// by value at construction so that interpretation cannot observe a
// stale or mutated corpus.
type Document struct {
	meta   Meta
	layers map[string]*Layer
	uri    string
}

// NewDocument builds an empty document over the given descriptor set.
func NewDocument(meta Meta) *Document {
	m := make(Meta, len(meta))
	for name, d := range meta {
		m[name] = d
	}
	return &Document{meta: m, layers: map[string]*Layer{}}
}

// NewExternalDocument builds a document that is only a redirect to
// externally stored content. It has no local layers.
func NewExternalDocument(meta Meta, uri string) *Document {
	d := NewDocument(meta)
	d.uri = uri
	return d
}

// Meta returns the document's descriptor set.
func (d *Document) Meta() Meta {
	return d.meta
}

// URI returns the external-reference URI, or empty for a local
// document.
func (d *Document) URI() string {
	return d.uri
}

// IsExternal returns true if the document is only a redirect to
// externally stored content.
func (d *Document) IsExternal() bool {
	return d.uri != "" && len(d.layers) == 0
}

// Layer returns the named layer.
func (d *Document) Layer(name string) (*Layer, error) {
	l, ok := d.layers[name]
	if !ok {
		return nil, &strataerr.NotFoundError{Resource: "layer", ID: name}
	}
	return l, nil
}

// HasLayer returns true if the document holds the named layer.
func (d *Document) HasLayer(name string) bool {
	_, ok := d.layers[name]
	return ok
}

// LayerNames returns the names of the document's layers, sorted.
func (d *Document) LayerNames() []string {
	names := make([]string, 0, len(d.layers))
	for name := range d.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetText sets the text of a characters layer, creating it if absent.
func (d *Document) SetText(name, text string) error {
	desc, ok := d.meta[name]
	if !ok {
		return &strataerr.ValidationError{Layer: name, Message: "layer is not declared"}
	}
	if desc.Kind != KindCharacters {
		return &strataerr.ValidationError{Layer: name,
			Message: fmt.Sprintf("layer of kind %s does not hold text", desc.Kind)}
	}
	l, err := NewCharacterLayer(desc, text)
	if err != nil {
		return err
	}
	d.layers[name] = l
	return nil
}

// AddLayer creates the named annotation layer from the given
// annotations. The sublayer must already be present, matching the
// source model's construction discipline; use AddLayers to add a batch
// in any order.
func (d *Document) AddLayer(name string, anns []Annotation) error {
	desc, ok := d.meta[name]
	if !ok {
		return &strataerr.ValidationError{Layer: name, Message: "layer is not declared"}
	}
	if desc.Kind == KindCharacters {
		return &strataerr.ValidationError{Layer: name,
			Message: "characters layer takes text, not annotations; use SetText"}
	}
	if !d.HasLayer(desc.On) {
		return &strataerr.ValidationError{Layer: name,
			Message: fmt.Sprintf("sublayer %s is not present", desc.On)}
	}
	l, err := NewLayer(desc)
	if err != nil {
		return err
	}
	for _, a := range anns {
		if err := l.Append(a); err != nil {
			return err
		}
	}
	d.layers[name] = l
	return nil
}

// AddLayers attaches a batch of already built layers in dependency
// order, so callers may supply them in any order. Declared layers with
// a default that are missing from the batch are materialized from the
// default. A layer whose sublayer is neither present nor part of the
// batch is an error.
func (d *Document) AddLayers(layers map[string]*Layer) error {
	pending := make(map[string]*Layer, len(layers))
	for name, l := range layers {
		desc, ok := d.meta[name]
		if !ok {
			return &strataerr.ValidationError{Layer: name, Message: "layer is not declared"}
		}
		if l.Desc() != desc && !descEqual(l.Desc(), desc) {
			return &strataerr.SchemaError{Layer: name,
				Message: "layer was built against a different descriptor"}
		}
		pending[name] = l
	}
	// Materialize defaults for declared layers absent from both the
	// document and the batch.
	for name, desc := range d.meta {
		if desc.Default == nil || d.HasLayer(name) {
			continue
		}
		if _, ok := pending[name]; ok {
			continue
		}
		l, err := NewLayer(desc)
		if err != nil {
			return err
		}
		for _, a := range desc.Default {
			if err := l.Append(a); err != nil {
				return err
			}
		}
		pending[name] = l
	}
	for len(pending) > 0 {
		progress := false
		for _, name := range sortedKeys(pending) {
			desc := d.meta[name]
			if desc.Kind == KindCharacters || d.HasLayer(desc.On) {
				d.layers[name] = pending[name]
				delete(pending, name)
				progress = true
			}
		}
		if !progress {
			for _, name := range sortedKeys(pending) {
				return &strataerr.ValidationError{Layer: name,
					Message: fmt.Sprintf("sublayer %s is not present", d.meta[name].On)}
			}
		}
	}
	return nil
}

// TextLayerFor follows the base chain from the named layer down to its
// characters layer and returns that layer's name.
func (d *Document) TextLayerFor(name string) (string, error) {
	desc, ok := d.meta[name]
	if !ok {
		return "", &strataerr.NotFoundError{Resource: "layer", ID: name}
	}
	for desc.Kind != KindCharacters {
		next, ok := d.meta[desc.On]
		if !ok {
			return "", &strataerr.NotFoundError{Resource: "layer", ID: desc.On}
		}
		desc = next
	}
	return desc.Name, nil
}

// TextForLayer returns the underlying text grouped by the annotations
// of the named layer: one string per annotation, sliced from the
// characters layer at the bottom of the base chain by Unicode character
// offset. For a characters layer it returns one string per character.
func (d *Document) TextForLayer(name string) ([]string, error) {
	l, err := d.Layer(name)
	if err != nil {
		return nil, err
	}
	textName, err := d.TextLayerFor(name)
	if err != nil {
		return nil, err
	}
	textLayer, err := d.Layer(textName)
	if err != nil {
		return nil, err
	}
	runes := []rune(textLayer.Text())
	if l.Desc().Kind == KindCharacters {
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out, nil
	}
	pairs, err := l.Indexes(textName, d)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		if p[0] < 0 || p[1] > len(runes) || p[0] > p[1] {
			return nil, &strataerr.IndexError{Layer: name, Index: i,
				Position: p[1], Length: len(runes)}
		}
		out[i] = string(runes[p[0]:p[1]])
	}
	return out, nil
}

// CloneWith returns a deep copy of the document bound to the given
// descriptor set. Layers keep their annotations; the copy can be
// mutated freely without touching the original.
func (d *Document) CloneWith(meta Meta) *Document {
	out := NewDocument(meta)
	out.uri = d.uri
	for name, l := range d.layers {
		desc, ok := out.meta[name]
		if !ok {
			desc = l.desc
			out.meta[name] = desc
		}
		nl := &Layer{desc: desc, text: l.text}
		nl.anns = append(nl.anns, l.anns...)
		out.layers[name] = nl
	}
	return out
}

// Equal reports whether two documents have identical layers and URI.
// Descriptor sets are not compared; documents from the same corpus
// share them.
func (d *Document) Equal(other *Document) bool {
	if other == nil || d.uri != other.uri || len(d.layers) != len(other.layers) {
		return false
	}
	for name, l := range d.layers {
		ol, ok := other.layers[name]
		if !ok {
			return false
		}
		if l.text != ol.text || len(l.anns) != len(ol.anns) {
			return false
		}
		for i := range l.anns {
			if l.anns[i] != ol.anns[i] {
				return false
			}
		}
	}
	return true
}

func sortedKeys(m map[string]*Layer) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
