package model

import (
	"errors"
	"testing"

	strataerr "github.com/strata-nlp/strata/core/errors"
)

// workedExample builds the document from the canonical example:
// text "this is an example" with four word spans and their POS tags.
func workedExample(t *testing.T) (Meta, *Document) {
	t.Helper()
	meta := testMeta(t)
	doc := NewDocument(meta)
	if err := doc.SetText("text", "this is an example"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	if err := doc.AddLayer("words", []Annotation{
		{Start: 0, End: 4}, {Start: 5, End: 7}, {Start: 8, End: 10}, {Start: 11, End: 17},
	}); err != nil {
		t.Fatalf("AddLayer(words) failed: %v", err)
	}
	if err := doc.AddLayer("upos", []Annotation{
		{Data: StringValue("DET")}, {Data: StringValue("VERB")},
		{Data: StringValue("DET")}, {Data: StringValue("NOUN")},
	}); err != nil {
		t.Fatalf("AddLayer(upos) failed: %v", err)
	}
	return meta, doc
}

func TestValidateWorkedExample(t *testing.T) {
	meta, doc := workedExample(t)

	if errs := ValidateDocument(doc, meta); len(errs) != 0 {
		t.Errorf("ValidateDocument = %v, want no errors", errs)
	}
	if err := CheckDocument(doc, meta); err != nil {
		t.Errorf("CheckDocument = %v, want nil", err)
	}
}

func TestValidateOutOfRangeSpan(t *testing.T) {
	meta := Meta{
		"text":  {Name: "text", Kind: KindCharacters, Data: DataNone},
		"words": {Name: "words", Kind: KindSpan, On: "text", Data: DataNone},
	}
	doc := NewDocument(meta)
	doc.SetText("text", "This is some text.") // 18 characters
	doc.AddLayer("words", []Annotation{{Start: 0, End: 100}})

	err := CheckDocument(doc, meta)
	var ie *strataerr.IndexError
	if !errors.As(err, &ie) {
		t.Fatalf("CheckDocument = %v, want IndexError", err)
	}
	if ie.Position != 100 || ie.Length != 18 {
		t.Errorf("IndexError = %+v, want position 100 against length 18", ie)
	}

	// The same span within range passes.
	doc2 := NewDocument(meta)
	doc2.SetText("text", "This is some text.")
	doc2.AddLayer("words", []Annotation{{Start: 0, End: 7}})
	if err := CheckDocument(doc2, meta); err != nil {
		t.Errorf("CheckDocument = %v, want nil for span [0, 7]", err)
	}
}

func TestValidateSpanEndInclusiveBoundary(t *testing.T) {
	meta := Meta{
		"text":  {Name: "text", Kind: KindCharacters, Data: DataNone},
		"words": {Name: "words", Kind: KindSpan, On: "text", Data: DataNone},
	}
	doc := NewDocument(meta)
	doc.SetText("text", "abc")
	// End position may equal the sublayer length; start may not.
	doc.AddLayer("words", []Annotation{{Start: 0, End: 3}})

	if err := CheckDocument(doc, meta); err != nil {
		t.Errorf("CheckDocument = %v, want nil for end == length", err)
	}

	doc2 := NewDocument(meta)
	doc2.SetText("text", "abc")
	doc2.AddLayer("words", []Annotation{{Start: 3, End: 3}})
	if err := CheckDocument(doc2, meta); err == nil {
		t.Error("CheckDocument = nil, want IndexError for start == length")
	}
}

func TestValidateDanglingLink(t *testing.T) {
	meta := Meta{
		"text":  {Name: "text", Kind: KindCharacters, Data: DataNone},
		"words": {Name: "words", Kind: KindSpan, On: "text", Data: DataNone},
		"heads": {Name: "heads", Kind: KindSeq, On: "words", Data: DataLink},
	}
	doc := NewDocument(meta)
	doc.SetText("text", "one two three")
	doc.AddLayer("words", []Annotation{
		{Start: 0, End: 3}, {Start: 4, End: 7}, {Start: 8, End: 13},
	})
	doc.AddLayer("heads", []Annotation{
		{Data: LinkValue{Target: 1}}, {Data: LinkValue{Target: 5}}, {Data: LinkValue{Target: 0}},
	})

	err := CheckDocument(doc, meta)
	var dle *strataerr.DanglingLinkError
	if !errors.As(err, &dle) {
		t.Fatalf("CheckDocument = %v, want DanglingLinkError", err)
	}
	if dle.Target != 5 || dle.Length != 3 || dle.TargetLayer != "words" {
		t.Errorf("DanglingLinkError = %+v, want target 5 in words of length 3", dle)
	}
}

func TestValidateEnumViolation(t *testing.T) {
	meta, doc := workedExample(t)

	bad := NewDocument(meta)
	bad.SetText("text", "this is an example")
	words, _ := doc.Layer("words")
	bad.AddLayer("words", words.Annotations())
	bad.AddLayer("upos", []Annotation{
		{Data: StringValue("DET")}, {Data: StringValue("VERB")},
		{Data: StringValue("ADV")}, {Data: StringValue("NOUN")},
	})

	err := CheckDocument(bad, meta)
	var eve *strataerr.EnumViolationError
	if !errors.As(err, &eve) {
		t.Fatalf("CheckDocument = %v, want EnumViolationError", err)
	}
	if eve.Value != "ADV" {
		t.Errorf("EnumViolationError.Value = %q, want %q", eve.Value, "ADV")
	}
}

func TestValidateTypedLinkLabel(t *testing.T) {
	meta := Meta{
		"text":  {Name: "text", Kind: KindCharacters, Data: DataNone},
		"words": {Name: "words", Kind: KindSpan, On: "text", Data: DataNone},
		"deps": {Name: "deps", Kind: KindSeq, On: "words", Data: DataTypedLink,
			LinkTypes: []string{"nsubj", "obj", "root"}},
	}
	doc := NewDocument(meta)
	doc.SetText("text", "one two")
	doc.AddLayer("words", []Annotation{{Start: 0, End: 3}, {Start: 4, End: 7}})
	doc.AddLayer("deps", []Annotation{
		{Data: TypedLinkValue{Target: 1, Label: "nsubj"}},
		{Data: TypedLinkValue{Target: 0, Label: "amod"}},
	})

	err := CheckDocument(doc, meta)
	var eve *strataerr.EnumViolationError
	if !errors.As(err, &eve) {
		t.Fatalf("CheckDocument = %v, want EnumViolationError for unknown label", err)
	}
	if eve.Value != "amod" {
		t.Errorf("EnumViolationError.Value = %q, want %q", eve.Value, "amod")
	}
}

func TestValidateSeqLengthMismatch(t *testing.T) {
	meta, _ := workedExample(t)

	doc := NewDocument(meta)
	doc.SetText("text", "this is an example")
	doc.AddLayer("words", []Annotation{{Start: 0, End: 4}, {Start: 5, End: 7}})
	doc.AddLayer("upos", []Annotation{{Data: StringValue("DET")}})

	if err := CheckDocument(doc, meta); err == nil {
		t.Error("CheckDocument = nil, want error for seq length mismatch")
	}
}

func TestValidateUndeclaredLayer(t *testing.T) {
	meta := Meta{
		"text": {Name: "text", Kind: KindCharacters, Data: DataNone},
	}
	// Build the document against a wider descriptor set, then validate
	// against the narrow one.
	wide := testMeta(t)
	doc := NewDocument(wide)
	doc.SetText("text", "abc")
	doc.AddLayer("words", []Annotation{{Start: 0, End: 2}})

	errs := ValidateDocument(doc, meta)
	if len(errs) == 0 {
		t.Fatal("ValidateDocument = no errors, want undeclared layer error")
	}
	if !strataerr.IsValidation(errs[0]) {
		t.Errorf("first error is %T, want validation error", errs[0])
	}
}

func TestValidateMissingRequiredLayer(t *testing.T) {
	meta := testMeta(t)
	doc := NewDocument(meta)
	doc.SetText("text", "this is an example")

	// words and upos have no defaults, so both are required.
	errs := ValidateDocument(doc, meta)
	if len(errs) != 2 {
		t.Fatalf("ValidateDocument = %d errors (%v), want 2 missing-layer errors", len(errs), errs)
	}
}

func TestValidateExternalDocumentSkipsPresence(t *testing.T) {
	meta := testMeta(t)
	doc := NewExternalDocument(meta, "https://example.com/doc.yaml")

	if errs := ValidateDocument(doc, meta); len(errs) != 0 {
		t.Errorf("ValidateDocument = %v, want no errors for external reference", errs)
	}
}

func TestValidateBatchAccumulates(t *testing.T) {
	meta := Meta{
		"text":  {Name: "text", Kind: KindCharacters, Data: DataNone},
		"words": {Name: "words", Kind: KindSpan, On: "text", Data: DataNone},
	}
	doc := NewDocument(meta)
	doc.SetText("text", "abc")
	doc.AddLayer("words", []Annotation{
		{Start: 0, End: 100}, {Start: 50, End: 60},
	})

	errs := ValidateDocument(doc, meta)
	if len(errs) < 3 {
		t.Errorf("ValidateDocument = %d errors, want all violations reported", len(errs))
	}
}
