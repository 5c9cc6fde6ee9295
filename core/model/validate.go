package model

import (
	"fmt"
	"sort"

	strataerr "github.com/strata-nlp/strata/core/errors"
)

// ValidateDocument checks a document against a descriptor set and
// returns every violation found. Validation is global: span, seq and
// div layers may be populated in any order relative to each other, so
// cross-layer checks can only run once the document is fully assembled.
// The descriptor set is a parameter, not ambient state, so validation
// always sees the caller's current descriptors.
//
// Checks run in a fixed order: undeclared layers, missing required
// layers, position ranges, link resolution, enum membership.
func ValidateDocument(doc *Document, meta Meta) []error {
	var errs []error

	// 1. Every layer in the document must be declared.
	for _, name := range doc.LayerNames() {
		if _, ok := meta[name]; !ok {
			errs = append(errs, &strataerr.ValidationError{Layer: name,
				Message: "layer is not declared in the corpus"})
		}
	}

	// 2. Every declared layer without a default must be present, unless
	// the document is an external reference with no local content.
	if !doc.IsExternal() {
		for _, name := range sortedMetaKeys(meta) {
			if meta[name].Default == nil && !doc.HasLayer(name) {
				errs = append(errs, &strataerr.ValidationError{Layer: name,
					Message: "required layer is missing"})
			}
		}
	}

	// 3-5. Per-annotation checks against the current sublayer lengths.
	for _, name := range doc.LayerNames() {
		desc, ok := meta[name]
		if !ok || desc.Kind == KindCharacters {
			continue
		}
		l, _ := doc.Layer(name)
		sub, err := doc.Layer(desc.On)
		if err != nil {
			// Reported by the presence check above.
			continue
		}
		errs = append(errs, validateLayer(doc, meta, l, sub)...)
	}

	return errs
}

// CheckDocument is the fail-fast form of ValidateDocument: it returns
// the first violation, or nil for a valid document.
func CheckDocument(doc *Document, meta Meta) error {
	if errs := ValidateDocument(doc, meta); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// validateLayer checks one annotation layer's positions, links and
// data values against its sublayer and target layer.
func validateLayer(doc *Document, meta Meta, l, sub *Layer) []error {
	var errs []error
	desc := l.Desc()
	subLen := sub.Len()

	// Position fields: starts lie in [0, len), derived or explicit
	// ends in [0, len].
	switch desc.Kind {
	case KindSeq:
		if len(l.Annotations()) != subLen {
			errs = append(errs, &strataerr.ValidationError{Layer: desc.Name,
				Message: fmt.Sprintf("seq layer has %d annotations but sublayer %s has length %d",
					len(l.Annotations()), desc.On, subLen)})
		}
	case KindSpan:
		for i, a := range l.Annotations() {
			if a.Start < 0 || a.Start >= subLen {
				errs = append(errs, &strataerr.IndexError{Layer: desc.Name, Index: i,
					Position: a.Start, Length: subLen})
			}
			if a.End < 0 || a.End > subLen {
				errs = append(errs, &strataerr.IndexError{Layer: desc.Name, Index: i,
					Position: a.End, Length: subLen})
			}
		}
	case KindDiv, KindElement:
		for i, a := range l.Annotations() {
			if a.Start < 0 || a.Start >= subLen {
				errs = append(errs, &strataerr.IndexError{Layer: desc.Name, Index: i,
					Position: a.Start, Length: subLen})
			}
		}
	}

	// Link targets must resolve in the target layer's current length.
	if desc.Data == DataLink || desc.Data == DataTypedLink {
		targetName := desc.LinkTarget()
		targetLen := 0
		if target, err := doc.Layer(targetName); err == nil {
			targetLen = target.Len()
		}
		for i, a := range l.Annotations() {
			t, ok := linkTarget(a.Data)
			if !ok {
				continue
			}
			if t < 0 || t >= targetLen {
				errs = append(errs, &strataerr.DanglingLinkError{Layer: desc.Name, Index: i,
					Target: t, TargetLayer: targetName, Length: targetLen})
			}
		}
	}

	// Enum values and typed-link labels must be members of the declared
	// allowed sets.
	switch desc.Data {
	case DataEnum:
		allowed := stringSet(desc.Enum)
		for i, a := range l.Annotations() {
			s, ok := a.Data.(StringValue)
			if !ok {
				continue
			}
			if !allowed[string(s)] {
				errs = append(errs, &strataerr.EnumViolationError{Layer: desc.Name, Index: i,
					Value: string(s), Allowed: desc.Enum})
			}
		}
	case DataTypedLink:
		allowed := stringSet(desc.LinkTypes)
		for i, a := range l.Annotations() {
			tl, ok := a.Data.(TypedLinkValue)
			if !ok {
				continue
			}
			if !allowed[tl.Label] {
				errs = append(errs, &strataerr.EnumViolationError{Layer: desc.Name, Index: i,
					Value: tl.Label, Allowed: desc.LinkTypes})
			}
		}
	}

	return errs
}

// linkTarget extracts the target index from a link or typed-link value.
func linkTarget(v Value) (int, bool) {
	switch lv := v.(type) {
	case LinkValue:
		return lv.Target, true
	case TypedLinkValue:
		return lv.Target, true
	}
	return 0, false
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func sortedMetaKeys(meta Meta) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
