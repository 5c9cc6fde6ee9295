package model

import (
	"fmt"
	"unicode/utf8"

	strataerr "github.com/strata-nlp/strata/core/errors"
)

// Layer is an ordered sequence of annotations of one kind. A characters
// layer holds the base text itself; every other kind holds annotations
// whose positions index into the sublayer named by the descriptor.
type Layer struct {
	desc *LayerDesc
	text string
	anns []Annotation
}

// NewCharacterLayer builds a characters layer holding the given text.
func NewCharacterLayer(desc *LayerDesc, text string) (*Layer, error) {
	if desc.Kind != KindCharacters {
		return nil, &strataerr.SchemaError{Layer: desc.Name,
			Message: fmt.Sprintf("layer of kind %s cannot hold text", desc.Kind)}
	}
	return &Layer{desc: desc, text: text}, nil
}

// NewLayer builds an empty annotation layer for the given descriptor.
func NewLayer(desc *LayerDesc) (*Layer, error) {
	if desc.Kind == KindCharacters {
		return nil, &strataerr.SchemaError{Layer: desc.Name,
			Message: "characters layer holds text, not annotations"}
	}
	return &Layer{desc: desc}, nil
}

// Desc returns the layer's descriptor.
func (l *Layer) Desc() *LayerDesc {
	return l.desc
}

// Name returns the layer's name.
func (l *Layer) Name() string {
	return l.desc.Name
}

// Text returns the text of a characters layer. It is empty for every
// other kind.
func (l *Layer) Text() string {
	return l.text
}

// Annotations returns the layer's annotations in order.
func (l *Layer) Annotations() []Annotation {
	return l.anns
}

// Len returns the addressable length of the layer: the Unicode
// character count for a characters layer, the annotation count
// otherwise.
func (l *Layer) Len() int {
	if l.desc.Kind == KindCharacters {
		return utf8.RuneCountInString(l.text)
	}
	return len(l.anns)
}

// Append admits an annotation after checking that its position fields
// are structurally well-formed for the layer's kind and that its data
// slot matches the declared data kind. Sublayer bounds, link resolution
// and enum membership are deferred to validation, which has the full
// document in scope.
func (l *Layer) Append(a Annotation) error {
	switch l.desc.Kind {
	case KindCharacters:
		return &strataerr.SchemaError{Layer: l.desc.Name,
			Message: "cannot append annotations to a characters layer"}
	case KindSpan:
		if a.Start < 0 || a.End < a.Start {
			return &strataerr.ValidationError{Layer: l.desc.Name,
				Message: fmt.Sprintf("malformed span [%d, %d]", a.Start, a.End)}
		}
	case KindDiv, KindElement:
		if a.Start < 0 {
			return &strataerr.ValidationError{Layer: l.desc.Name,
				Message: fmt.Sprintf("negative start %d", a.Start)}
		}
		if a.End != 0 {
			return &strataerr.ValidationError{Layer: l.desc.Name,
				Message: fmt.Sprintf("%s annotations have no explicit end", l.desc.Kind)}
		}
	case KindSeq:
		if a.Start != 0 || a.End != 0 {
			return &strataerr.ValidationError{Layer: l.desc.Name,
				Message: "seq annotations carry no positions"}
		}
	}
	if err := l.checkDataShape(a.Data); err != nil {
		return err
	}
	l.anns = append(l.anns, a)
	return nil
}

// checkDataShape verifies the concrete Value type matches the declared
// data kind.
func (l *Layer) checkDataShape(v Value) error {
	name := l.desc.Name
	switch l.desc.Data {
	case DataNone:
		if v != nil {
			return &strataerr.ValidationError{Layer: name,
				Message: "layer carries no data but annotation has a value"}
		}
	case DataString, DataEnum:
		if _, ok := v.(StringValue); !ok {
			return &strataerr.ValidationError{Layer: name,
				Message: fmt.Sprintf("annotation data must be a string, got %T", v)}
		}
	case DataLink:
		if _, ok := v.(LinkValue); !ok {
			return &strataerr.ValidationError{Layer: name,
				Message: fmt.Sprintf("annotation data must be a link, got %T", v)}
		}
	case DataTypedLink:
		if _, ok := v.(TypedLinkValue); !ok {
			return &strataerr.ValidationError{Layer: name,
				Message: fmt.Sprintf("annotation data must be a typed link, got %T", v)}
		}
	}
	return nil
}

// ResolveEnd returns the end position (exclusive, in the sublayer's
// index space) of annotation i. The end is derived, never stored: a
// span returns its explicit end, an element covers exactly one index,
// a div runs until the next annotation's start or the sublayer's
// current end, and a seq entry covers its own index. Deriving from the
// sublayer's length on every call keeps div ends correct when the
// sublayer grows.
func (l *Layer) ResolveEnd(i int, sublayerLen int) int {
	switch l.desc.Kind {
	case KindSpan:
		return l.anns[i].End
	case KindElement:
		return l.anns[i].Start + 1
	case KindDiv:
		if i+1 < len(l.anns) {
			return l.anns[i+1].Start
		}
		return sublayerLen
	case KindSeq:
		return i + 1
	}
	return 0
}

// sublayerPairs returns each annotation's [start, end) range in the
// sublayer's index space.
func (l *Layer) sublayerPairs(sublayerLen int) [][2]int {
	pairs := make([][2]int, len(l.anns))
	for i, a := range l.anns {
		switch l.desc.Kind {
		case KindSeq:
			pairs[i] = [2]int{i, i + 1}
		default:
			pairs[i] = [2]int{a.Start, l.ResolveEnd(i, sublayerLen)}
		}
	}
	return pairs
}

// Indexes returns each annotation's [start, end) range expressed in the
// index space of the named layer, which must be this layer, its
// sublayer, or a transitive sublayer.
func (l *Layer) Indexes(target string, doc *Document) ([][2]int, error) {
	if target == l.desc.Name {
		pairs := make([][2]int, l.Len())
		for i := range pairs {
			pairs[i] = [2]int{i, i + 1}
		}
		return pairs, nil
	}
	if l.desc.Kind == KindCharacters {
		return nil, &strataerr.ValidationError{Layer: l.desc.Name,
			Message: fmt.Sprintf("layer %s is not a sublayer of %s", target, l.desc.Name)}
	}
	sub, err := doc.Layer(l.desc.On)
	if err != nil {
		return nil, err
	}
	pairs := l.sublayerPairs(sub.Len())
	if target == l.desc.On {
		return pairs, nil
	}
	subPairs, err := sub.Indexes(target, doc)
	if err != nil {
		return nil, err
	}
	out := make([][2]int, len(pairs))
	for i, p := range pairs {
		if p[0] >= p[1] {
			// Empty range maps to an empty range at the start position.
			start := 0
			if p[0] < len(subPairs) {
				start = subPairs[p[0]][0]
			} else if len(subPairs) > 0 {
				start = subPairs[len(subPairs)-1][1]
			}
			out[i] = [2]int{start, start}
			continue
		}
		if p[1] > len(subPairs) {
			return nil, &strataerr.IndexError{Layer: l.desc.Name, Index: i,
				Position: p[1], Length: len(subPairs)}
		}
		out[i] = [2]int{subPairs[p[0]][0], subPairs[p[1]-1][1]}
	}
	return out, nil
}
