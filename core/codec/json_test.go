package codec

import (
	"strings"
	"testing"
)

const corpusJSON = `{
  "_meta": {
    "text": {"type": "characters"},
    "words": {"type": "span", "on": "text", "default": []}
  },
  "nMGy": {
    "text": "JSON round trip.",
    "words": [[0, 4], [5, 10], [11, 15]]
  }
}`

func TestLoadJSON(t *testing.T) {
	c, err := LoadJSONString(corpusJSON)
	if err != nil {
		t.Fatalf("LoadJSONString() = %v, want nil", err)
	}
	doc, err := c.Get("nMGy")
	if err != nil {
		t.Fatalf("Get(nMGy) = %v, want nil", err)
	}
	if got := mustLayer(t, doc, "text").Text(); got != "JSON round trip." {
		t.Errorf("Text() = %q, want the document text", got)
	}
	if got := mustLayer(t, doc, "words").Len(); got != 3 {
		t.Errorf("words.Len() = %d, want 3", got)
	}
}

func TestLoadJSONDocumentOrder(t *testing.T) {
	src := `{
  "_meta": {"text": {"type": "characters"}},
  "XGlW": {"text": "A second document."},
  "PIAq": {"text": "Round trip test."}
}`
	c, err := LoadJSONString(src)
	if err != nil {
		t.Fatalf("LoadJSONString() = %v, want nil", err)
	}
	if got := c.DocIDs(); got[0] != "XGlW" || got[1] != "PIAq" {
		t.Errorf("DocIDs() = %v, want object order [XGlW PIAq]", got)
	}
}

func TestLoadJSONExplicitOrder(t *testing.T) {
	src := `{
  "_meta": {"text": {"type": "characters"}},
  "PIAq": {"text": "Round trip test."},
  "XGlW": {"text": "A second document."},
  "_order": ["XGlW", "PIAq"]
}`
	c, err := LoadJSONString(src)
	if err != nil {
		t.Fatalf("LoadJSONString() = %v, want nil", err)
	}
	if got := c.DocIDs(); got[0] != "XGlW" || got[1] != "PIAq" {
		t.Errorf("DocIDs() = %v, want [XGlW PIAq]", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c, err := LoadJSONString(corpusJSON)
	if err != nil {
		t.Fatalf("LoadJSONString() = %v, want nil", err)
	}
	first, err := DumpJSONString(c)
	if err != nil {
		t.Fatalf("DumpJSONString() = %v, want nil", err)
	}
	if !strings.Contains(first, `"_order":["nMGy"]`) {
		t.Errorf("dump should carry _order:\n%s", first)
	}
	c2, err := LoadJSONString(first)
	if err != nil {
		t.Fatalf("LoadJSONString(dump) = %v, want nil\ndump:\n%s", err, first)
	}
	second, err := DumpJSONString(c2)
	if err != nil {
		t.Fatalf("DumpJSONString() = %v, want nil", err)
	}
	if first != second {
		t.Errorf("dump is not stable under reload:\n--- first\n%s\n--- second\n%s", first, second)
	}
}

// A corpus loaded from YAML must survive conversion through JSON and
// back without change.
func TestCrossFormatRoundTrip(t *testing.T) {
	c, err := LoadString(corpusYAML)
	if err != nil {
		t.Fatalf("LoadString() = %v, want nil", err)
	}
	viaYAML, err := DumpString(c)
	if err != nil {
		t.Fatalf("DumpString() = %v, want nil", err)
	}
	asJSON, err := DumpJSONString(c)
	if err != nil {
		t.Fatalf("DumpJSONString() = %v, want nil", err)
	}
	c2, err := LoadJSONString(asJSON)
	if err != nil {
		t.Fatalf("LoadJSONString() = %v, want nil\njson:\n%s", err, asJSON)
	}
	back, err := DumpString(c2)
	if err != nil {
		t.Fatalf("DumpString() = %v, want nil", err)
	}
	if viaYAML != back {
		t.Errorf("conversion through json changed the corpus:\n--- direct\n%s\n--- via json\n%s", viaYAML, back)
	}
}

func TestLoadJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"not an object", `["a"]`},
		{"truncated", `{"_meta": {"text": {"type": "characters"`},
		{"key mismatch", `{"_meta": {"text": {"type": "characters"}}, "AAAA": {"text": "JSON round trip."}}`},
		{"no meta", `{"nMGy": {"text": "JSON round trip."}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadJSONString(tt.src); err == nil {
				t.Error("LoadJSONString() = nil, want error")
			}
		})
	}
}

func TestDocumentRowRoundTrip(t *testing.T) {
	c, err := LoadString(corpusYAML)
	if err != nil {
		t.Fatalf("LoadString() = %v, want nil", err)
	}
	doc, err := c.Get("PIAq")
	if err != nil {
		t.Fatalf("Get(PIAq) = %v, want nil", err)
	}

	metaRow, err := MarshalMeta(c.Meta())
	if err != nil {
		t.Fatalf("MarshalMeta() = %v, want nil", err)
	}
	meta, err := UnmarshalMeta(metaRow)
	if err != nil {
		t.Fatalf("UnmarshalMeta() = %v, want nil", err)
	}
	if len(meta) != len(c.Meta()) {
		t.Errorf("round-tripped meta has %d layers, want %d", len(meta), len(c.Meta()))
	}

	row, err := MarshalDocument(doc)
	if err != nil {
		t.Fatalf("MarshalDocument() = %v, want nil", err)
	}
	doc2, err := UnmarshalDocument(meta, row)
	if err != nil {
		t.Fatalf("UnmarshalDocument() = %v, want nil", err)
	}
	if !doc.Equal(doc2) {
		t.Error("document changed through its row form")
	}
}
