package codec

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"

	strataerr "github.com/strata-nlp/strata/core/errors"
	"github.com/strata-nlp/strata/core/model"
)

// LoadJSON reads a corpus in JSON form. The decoder walks the top
// level token by token so document order in the file is preserved
// even without an explicit _order list.
func (ld *Loader) LoadJSON(r io.Reader) (*model.Corpus, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	c := model.NewCorpus()
	if ld.KeyLength > 0 {
		c.SetKeyLength(ld.KeyLength)
	}

	var rawMeta map[string]map[string]any
	var order []string
	haveOrder := false
	uri := ""
	type rawDoc struct {
		key    string
		layers map[string]any
	}
	var docs []rawDoc

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &strataerr.LoadError{Message: "invalid json", Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &strataerr.LoadError{Message: fmt.Sprintf("unexpected token %v", tok)}
		}
		switch {
		case key == "_meta":
			if err := dec.Decode(&rawMeta); err != nil {
				return nil, &strataerr.LoadError{Message: "invalid _meta mapping", Err: err}
			}
		case key == "_order":
			if err := dec.Decode(&order); err != nil {
				return nil, &strataerr.LoadError{Message: "_order must be a list of keys", Err: err}
			}
			haveOrder = true
		case key == "_uri":
			if err := dec.Decode(&uri); err != nil {
				return nil, &strataerr.LoadError{Message: "_uri must be a string", Err: err}
			}
		case strings.HasPrefix(key, "_"):
			var skip any
			if err := dec.Decode(&skip); err != nil {
				return nil, &strataerr.LoadError{Message: "invalid json", Err: err}
			}
		default:
			var layers map[string]any
			if err := dec.Decode(&layers); err != nil {
				return nil, &strataerr.LoadError{Doc: key, Message: "document must be an object", Err: err}
			}
			docs = append(docs, rawDoc{key: key, layers: layers})
		}
	}

	if err := ld.applyMeta(c, uri, func() (model.Meta, error) {
		if rawMeta == nil {
			return nil, nil
		}
		return metaFromAny(rawMeta)
	}); err != nil {
		return nil, err
	}
	for _, d := range docs {
		if err := buildDocument(c, d.key, d.layers); err != nil {
			return nil, err
		}
	}
	if haveOrder {
		if err := c.SetOrder(order); err != nil {
			return nil, &strataerr.LoadError{Message: "invalid _order", Err: err}
		}
	}
	return c, nil
}

func expectDelim(dec *json.Decoder, d rune) error {
	tok, err := dec.Token()
	if err != nil {
		return &strataerr.LoadError{Message: "invalid json", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || rune(delim) != d {
		return &strataerr.LoadError{Message: fmt.Sprintf("expected %q, got %v", d, tok)}
	}
	return nil
}

// LoadJSON reads a JSON corpus with default settings.
func LoadJSON(r io.Reader) (*model.Corpus, error) {
	var ld Loader
	return ld.LoadJSON(r)
}

// LoadJSONString reads a JSON corpus from a string.
func LoadJSONString(s string) (*model.Corpus, error) {
	return LoadJSON(strings.NewReader(s))
}

// DumpJSON writes the corpus as a single JSON object. Corpus order is
// carried both by document position and by an explicit _order list,
// since most JSON parsers do not preserve object key order.
func DumpJSON(w io.Writer, c *model.Corpus) error {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	emit := func(key string, v any) error {
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(key)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
		return nil
	}
	emitRaw := func(key, raw string) error {
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(key)
		if err != nil {
			return err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.WriteString(raw)
		return nil
	}

	if uri := c.URI(); uri != "" {
		if err := emit("_uri", uri); err != nil {
			return err
		}
	}
	meta := c.Meta()
	metaJSON, err := descsJSON(meta)
	if err != nil {
		return err
	}
	if err := emitRaw("_meta", metaJSON); err != nil {
		return err
	}
	if err := emit("_order", c.DocIDs()); err != nil {
		return err
	}
	for _, kd := range c.Documents() {
		docJSON, err := documentJSON(kd.Doc)
		if err != nil {
			return err
		}
		if err := emitRaw(kd.Key, docJSON); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	_, err = io.WriteString(w, b.String())
	return err
}

// DumpJSONString renders the corpus as a JSON string.
func DumpJSONString(c *model.Corpus) (string, error) {
	var b strings.Builder
	if err := DumpJSON(&b, c); err != nil {
		return "", err
	}
	return b.String(), nil
}

// descsJSON renders a descriptor set with layer names sorted and
// descriptor fields in a fixed order.
func descsJSON(meta model.Meta) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range sortedNames(meta) {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(name)
		if err != nil {
			return "", err
		}
		b.Write(kb)
		b.WriteString(":{")
		for j, f := range descFields(meta[name]) {
			if j > 0 {
				b.WriteByte(',')
			}
			fb, err := json.Marshal(f.Key)
			if err != nil {
				return "", err
			}
			vb, err := json.Marshal(f.Value)
			if err != nil {
				return "", err
			}
			b.Write(fb)
			b.WriteByte(':')
			b.Write(vb)
		}
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return b.String(), nil
}

// documentJSON renders a document's layers with names sorted.
func documentJSON(doc *model.Document) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(key)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
		return nil
	}
	if doc.IsExternal() {
		if err := write("_uri", doc.URI()); err != nil {
			return "", err
		}
	}
	for _, name := range doc.LayerNames() {
		l, err := doc.Layer(name)
		if err != nil {
			return "", err
		}
		if err := write(name, layerToAny(l)); err != nil {
			return "", err
		}
	}
	b.WriteByte('}')
	return b.String(), nil
}

// MarshalDocument renders a single document's layers as JSON. The
// persistent store uses this as its row format.
func MarshalDocument(doc *model.Document) ([]byte, error) {
	s, err := documentJSON(doc)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalDocument rebuilds a document from its JSON row form using
// the given descriptor set.
func UnmarshalDocument(meta model.Meta, data []byte) (*model.Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &strataerr.LoadError{Message: "invalid document json", Err: err}
	}
	uri := ""
	layers := make(map[string]*model.Layer)
	for name, v := range raw {
		if name == "_uri" {
			s, ok := v.(string)
			if !ok {
				return nil, &strataerr.LoadError{Message: "_uri must be a string"}
			}
			uri = s
			continue
		}
		desc, ok := meta[name]
		if !ok {
			return nil, &strataerr.LoadError{
				Message: fmt.Sprintf("layer %q is not declared in _meta", name),
			}
		}
		l, err := layerFromAny(desc, v)
		if err != nil {
			return nil, err
		}
		layers[name] = l
	}
	var doc *model.Document
	if uri != "" {
		if len(layers) > 0 {
			return nil, &strataerr.LoadError{Message: "external document cannot carry layers"}
		}
		return model.NewExternalDocument(meta, uri), nil
	}
	doc = model.NewDocument(meta)
	if err := doc.AddLayers(layers); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalMeta renders a descriptor set as JSON.
func MarshalMeta(meta model.Meta) ([]byte, error) {
	s, err := descsJSON(meta)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalMeta rebuilds a descriptor set from its JSON form.
func UnmarshalMeta(data []byte) (model.Meta, error) {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &strataerr.LoadError{Message: "invalid _meta json", Err: err}
	}
	return metaFromAny(raw)
}
