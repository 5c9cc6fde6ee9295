// Package codec serializes corpora to and from their YAML and JSON
// interchange forms. Both formats share one generic representation:
// descriptors and annotation lists are converted to plain Go values
// (maps, slices, scalars) and the format layer only handles ordering
// and syntax.
package codec

import (
	"fmt"
	"sort"

	strataerr "github.com/strata-nlp/strata/core/errors"
	"github.com/strata-nlp/strata/core/model"
)

// positionCount returns how many offset fields an annotation of the
// given kind carries in serialized form.
func positionCount(kind model.LayerKind) int {
	switch kind {
	case model.KindSpan:
		return 2
	case model.KindDiv, model.KindElement:
		return 1
	default:
		return 0
	}
}

// dataCount returns how many trailing data fields the given data kind
// contributes to a serialized annotation.
func dataCount(data model.DataKind) int {
	switch data {
	case model.DataString, model.DataEnum, model.DataLink:
		return 1
	case model.DataTypedLink:
		return 2
	default:
		return 0
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// annFromAny decodes one serialized annotation entry for a layer with
// the given descriptor. Entries with a single field may be written as
// a bare scalar instead of a one-element list.
func annFromAny(desc *model.LayerDesc, entry any) (model.Annotation, error) {
	np := positionCount(desc.Kind)
	nd := dataCount(desc.Data)

	fields, ok := entry.([]any)
	if !ok {
		if np+nd != 1 {
			return model.Annotation{}, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("annotation must be a list of %d fields, got %T", np+nd, entry),
			}
		}
		fields = []any{entry}
	}
	if len(fields) != np+nd {
		return model.Annotation{}, &strataerr.ValidationError{
			Layer:   desc.Name,
			Message: fmt.Sprintf("annotation has %d fields, want %d", len(fields), np+nd),
		}
	}

	var a model.Annotation
	if np >= 1 {
		start, ok := toInt(fields[0])
		if !ok {
			return model.Annotation{}, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("annotation start must be an integer, got %v", fields[0]),
			}
		}
		a.Start = start
	}
	if np == 2 {
		end, ok := toInt(fields[1])
		if !ok {
			return model.Annotation{}, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("annotation end must be an integer, got %v", fields[1]),
			}
		}
		a.End = end
	}

	switch desc.Data {
	case model.DataString, model.DataEnum:
		s, ok := toString(fields[np])
		if !ok {
			return model.Annotation{}, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("annotation data must be a string, got %v", fields[np]),
			}
		}
		a.Data = model.StringValue(s)
	case model.DataLink:
		target, ok := toInt(fields[np])
		if !ok {
			return model.Annotation{}, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("link target must be an integer, got %v", fields[np]),
			}
		}
		a.Data = model.LinkValue{Target: target}
	case model.DataTypedLink:
		target, ok := toInt(fields[np])
		if !ok {
			return model.Annotation{}, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("link target must be an integer, got %v", fields[np]),
			}
		}
		label, ok := toString(fields[np+1])
		if !ok {
			return model.Annotation{}, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("link label must be a string, got %v", fields[np+1]),
			}
		}
		a.Data = model.TypedLinkValue{Target: target, Label: label}
	}
	return a, nil
}

// annsFromAny decodes a serialized annotation list.
func annsFromAny(desc *model.LayerDesc, v any) ([]model.Annotation, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, &strataerr.ValidationError{
			Layer:   desc.Name,
			Message: fmt.Sprintf("layer value must be a list, got %T", v),
		}
	}
	anns := make([]model.Annotation, 0, len(list))
	for _, entry := range list {
		a, err := annFromAny(desc, entry)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, nil
}

// layerFromAny builds a layer from its serialized value. Character
// layers are plain strings, everything else is an annotation list.
func layerFromAny(desc *model.LayerDesc, v any) (*model.Layer, error) {
	if desc.Kind == model.KindCharacters {
		text, ok := v.(string)
		if !ok {
			return nil, &strataerr.ValidationError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("characters layer value must be a string, got %T", v),
			}
		}
		return model.NewCharacterLayer(desc, text)
	}
	anns, err := annsFromAny(desc, v)
	if err != nil {
		return nil, err
	}
	l, err := model.NewLayer(desc)
	if err != nil {
		return nil, err
	}
	for _, a := range anns {
		if err := l.Append(a); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// annToAny encodes one annotation for serialization. Single-field
// entries collapse to a bare scalar, which keeps seq layers compact.
func annToAny(desc *model.LayerDesc, a model.Annotation) any {
	np := positionCount(desc.Kind)
	fields := make([]any, 0, np+dataCount(desc.Data))
	if np >= 1 {
		fields = append(fields, a.Start)
	}
	if np == 2 {
		fields = append(fields, a.End)
	}
	switch d := a.Data.(type) {
	case model.StringValue:
		fields = append(fields, string(d))
	case model.LinkValue:
		fields = append(fields, d.Target)
	case model.TypedLinkValue:
		fields = append(fields, d.Target, d.Label)
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return fields
}

// layerToAny encodes a layer's value for serialization.
func layerToAny(l *model.Layer) any {
	if l.Desc().Kind == model.KindCharacters {
		return l.Text()
	}
	anns := l.Annotations()
	out := make([]any, len(anns))
	for i, a := range anns {
		out[i] = annToAny(l.Desc(), a)
	}
	return out
}

// descFromAny builds a layer descriptor from its serialized mapping.
// Recognized keys are type, on, data, link_types, target, default and
// _uri; other underscore-prefixed keys are ignored.
func descFromAny(name string, raw map[string]any) (*model.LayerDesc, error) {
	desc := &model.LayerDesc{Name: name, Data: model.DataNone}
	var rawDefault any
	haveDefault := false

	for key, v := range raw {
		switch key {
		case "type":
			s, ok := toString(v)
			if !ok {
				return nil, &strataerr.SchemaError{Layer: name, Message: "layer type must be a string"}
			}
			desc.Kind = model.LayerKind(s)
		case "on":
			s, ok := toString(v)
			if !ok {
				return nil, &strataerr.SchemaError{Layer: name, Message: "sublayer reference must be a string"}
			}
			desc.On = s
		case "data":
			if err := parseDataKind(desc, v); err != nil {
				return nil, err
			}
		case "link_types":
			types, err := stringList(v)
			if err != nil {
				return nil, &strataerr.SchemaError{Layer: name, Message: "link_types must be a list of strings"}
			}
			desc.LinkTypes = types
		case "target":
			s, ok := toString(v)
			if !ok {
				return nil, &strataerr.SchemaError{Layer: name, Message: "link target must be a string"}
			}
			desc.Target = s
		case "default":
			rawDefault = v
			haveDefault = true
		case "_uri":
			s, ok := toString(v)
			if !ok {
				return nil, &strataerr.SchemaError{Layer: name, Message: "_uri must be a string"}
			}
			desc.URI = s
		default:
			if len(key) > 0 && key[0] == '_' {
				continue
			}
			return nil, &strataerr.SchemaError{
				Layer:   name,
				Message: fmt.Sprintf("unknown descriptor key %q", key),
			}
		}
	}

	// A bare "link" with declared link types is the typed form.
	if desc.Data == model.DataLink && len(desc.LinkTypes) > 0 {
		desc.Data = model.DataTypedLink
	}
	if desc.Kind == model.KindSeq && desc.Data == model.DataNone {
		return nil, &strataerr.SchemaError{
			Layer:   name,
			Message: "seq layer must declare a data kind",
		}
	}
	if err := desc.Check(); err != nil {
		return nil, err
	}

	if haveDefault {
		anns, err := annsFromAny(desc, rawDefault)
		if err != nil {
			return nil, &strataerr.SchemaError{
				Layer:   name,
				Message: fmt.Sprintf("invalid default annotations: %v", err),
			}
		}
		desc.Default = anns
	}
	return desc, nil
}

func parseDataKind(desc *model.LayerDesc, v any) error {
	switch d := v.(type) {
	case string:
		switch d {
		case "string", "str":
			desc.Data = model.DataString
		case "link":
			desc.Data = model.DataLink
		case "none":
			desc.Data = model.DataNone
		default:
			return &strataerr.SchemaError{
				Layer:   desc.Name,
				Message: fmt.Sprintf("unknown data kind %q", d),
			}
		}
	case []any:
		values, err := stringList(d)
		if err != nil {
			return &strataerr.SchemaError{Layer: desc.Name, Message: "enum values must be strings"}
		}
		desc.Data = model.DataEnum
		desc.Enum = values
	case map[string]any:
		types, ok := d["link_types"]
		if !ok {
			return &strataerr.SchemaError{Layer: desc.Name, Message: "data mapping requires link_types"}
		}
		values, err := stringList(types)
		if err != nil {
			return &strataerr.SchemaError{Layer: desc.Name, Message: "link_types must be a list of strings"}
		}
		desc.Data = model.DataTypedLink
		desc.LinkTypes = values
		if target, ok := d["target"]; ok {
			s, ok := toString(target)
			if !ok {
				return &strataerr.SchemaError{Layer: desc.Name, Message: "link target must be a string"}
			}
			desc.Target = s
		}
	default:
		return &strataerr.SchemaError{
			Layer:   desc.Name,
			Message: fmt.Sprintf("unsupported data declaration %T", v),
		}
	}
	return nil
}

func stringList(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("not a list")
	}
	out := make([]string, len(list))
	for i, e := range list {
		s, ok := toString(e)
		if !ok {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		out[i] = s
	}
	return out, nil
}

// metaFromAny builds a descriptor set from serialized form.
func metaFromAny(raw map[string]map[string]any) (model.Meta, error) {
	meta := make(model.Meta, len(raw))
	for name, fields := range raw {
		desc, err := descFromAny(name, fields)
		if err != nil {
			return nil, err
		}
		meta[name] = desc
	}
	if err := meta.Check(); err != nil {
		return nil, err
	}
	return meta, nil
}

// descFields returns the descriptor's serialized fields in emission
// order. Both dump paths range over this so the two formats stay in
// sync.
type field struct {
	Key   string
	Value any
}

func descFields(desc *model.LayerDesc) []field {
	fields := []field{{Key: "type", Value: string(desc.Kind)}}
	if desc.On != "" {
		fields = append(fields, field{Key: "on", Value: desc.On})
	}
	switch desc.Data {
	case model.DataString:
		fields = append(fields, field{Key: "data", Value: "string"})
	case model.DataEnum:
		fields = append(fields, field{Key: "data", Value: anyStrings(desc.Enum)})
	case model.DataLink:
		fields = append(fields, field{Key: "data", Value: "link"})
		if desc.Target != "" {
			fields = append(fields, field{Key: "target", Value: desc.Target})
		}
	case model.DataTypedLink:
		data := map[string]any{"link_types": anyStrings(desc.LinkTypes)}
		if desc.Target != "" {
			data["target"] = desc.Target
		}
		fields = append(fields, field{Key: "data", Value: data})
	}
	if desc.Default != nil {
		entries := make([]any, len(desc.Default))
		for i, a := range desc.Default {
			entries[i] = annToAny(desc, a)
		}
		fields = append(fields, field{Key: "default", Value: entries})
	}
	if desc.URI != "" {
		fields = append(fields, field{Key: "_uri", Value: desc.URI})
	}
	return fields
}

func anyStrings(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// buildDocument builds a document from its serialized layer mapping and
// inserts it into the corpus under the given key. A _uri entry marks
// the document as externally resolved.
func buildDocument(c *model.Corpus, key string, raw map[string]any) error {
	uri := ""
	layers := make(map[string]*model.Layer)
	for name, v := range raw {
		if name == "_uri" {
			s, ok := toString(v)
			if !ok {
				return &strataerr.LoadError{Doc: key, Message: "_uri must be a string"}
			}
			uri = s
			continue
		}
		desc, ok := c.Meta()[name]
		if !ok {
			return &strataerr.LoadError{
				Doc:     key,
				Message: fmt.Sprintf("layer %q is not declared in _meta", name),
			}
		}
		l, err := layerFromAny(desc, v)
		if err != nil {
			return &strataerr.LoadError{Doc: key, Message: "invalid layer value", Err: err}
		}
		layers[name] = l
	}

	var doc *model.Document
	if uri != "" {
		if len(layers) > 0 {
			return &strataerr.LoadError{Doc: key, Message: "external document cannot carry layers"}
		}
		doc = model.NewExternalDocument(c.Meta(), uri)
	} else {
		doc = c.NewDocument()
		if err := doc.AddLayers(layers); err != nil {
			return &strataerr.LoadError{Doc: key, Message: "invalid layers", Err: err}
		}
	}

	if !doc.IsExternal() {
		// Documents without character layers carry explicit keys and
		// cannot be checked against a content hash.
		full, err := model.FullKeyOf(doc)
		if err == nil && !model.KeyMatches(key, full) {
			return &strataerr.LoadError{
				Doc:     key,
				Message: fmt.Sprintf("document key does not match content hash %s", full),
			}
		}
	}
	if _, err := c.InsertWithKey(key, doc); err != nil {
		return &strataerr.LoadError{Doc: key, Message: "document rejected", Err: err}
	}
	return nil
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
