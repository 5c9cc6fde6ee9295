package codec

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	strataerr "github.com/strata-nlp/strata/core/errors"
	"github.com/strata-nlp/strata/core/model"
)

// Loader decodes corpora from their interchange forms. The zero value
// is usable; a Resolver must be set before loading corpora that
// inherit descriptors from another corpus via _uri.
type Loader struct {
	// KeyLength overrides the truncated key length of loaded corpora.
	KeyLength int
	// Resolver fetches the descriptor set of an inherited corpus.
	Resolver func(uri string) (model.Meta, error)
}

// Load reads a corpus in YAML form. Documents keep their file order
// unless an explicit _order sequence overrides it, and every stored
// key is checked against the content hash of its document.
func (ld *Loader) Load(r io.Reader) (*model.Corpus, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return nil, &strataerr.LoadError{Message: "invalid yaml", Err: err}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &strataerr.LoadError{Message: "empty document"}
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, &strataerr.LoadError{Message: "top level must be a mapping"}
	}

	c := model.NewCorpus()
	if ld.KeyLength > 0 {
		c.SetKeyLength(ld.KeyLength)
	}

	var metaNode *yaml.Node
	var order []string
	haveOrder := false
	uri := ""
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i].Value, top.Content[i+1]
		switch key {
		case "_meta":
			metaNode = val
		case "_order":
			if err := val.Decode(&order); err != nil {
				return nil, &strataerr.LoadError{Message: "_order must be a list of keys", Err: err}
			}
			haveOrder = true
		case "_uri":
			if err := val.Decode(&uri); err != nil {
				return nil, &strataerr.LoadError{Message: "_uri must be a string", Err: err}
			}
		}
	}

	if err := ld.applyMeta(c, uri, func() (model.Meta, error) {
		if metaNode == nil {
			return nil, nil
		}
		var raw map[string]map[string]any
		if err := metaNode.Decode(&raw); err != nil {
			return nil, &strataerr.LoadError{Message: "invalid _meta mapping", Err: err}
		}
		return metaFromAny(raw)
	}); err != nil {
		return nil, err
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i].Value, top.Content[i+1]
		if strings.HasPrefix(key, "_") {
			continue
		}
		var raw map[string]any
		if err := val.Decode(&raw); err != nil {
			return nil, &strataerr.LoadError{Doc: key, Message: "document must be a mapping", Err: err}
		}
		if err := buildDocument(c, key, raw); err != nil {
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

// applyMeta merges inherited descriptors first, then the corpus's own
// _meta block, so local declarations are checked against the base set.
func (ld *Loader) applyMeta(c *model.Corpus, uri string, own func() (model.Meta, error)) error {
	if uri != "" {
		if ld.Resolver == nil {
			return &strataerr.LoadError{
				Message: fmt.Sprintf("corpus inherits from %q but no resolver is configured", uri),
			}
		}
		base, err := ld.Resolver(uri)
		if err != nil {
			return &strataerr.LoadError{Message: fmt.Sprintf("resolving %q", uri), Err: err}
		}
		if err := c.MergeMeta(base); err != nil {
			return err
		}
		c.SetURI(uri)
	}
	meta, err := own()
	if err != nil {
		return err
	}
	if meta == nil {
		if uri == "" {
			return &strataerr.LoadError{Message: "corpus has no _meta block"}
		}
		return nil
	}
	return c.MergeMeta(meta)
}

// Load reads a YAML corpus with default settings.
func Load(r io.Reader) (*model.Corpus, error) {
	var ld Loader
	return ld.Load(r)
}

// LoadString reads a YAML corpus from a string.
func LoadString(s string) (*model.Corpus, error) {
	return Load(strings.NewReader(s))
}

// Dump writes the corpus in YAML form. Descriptors are sorted by
// layer name and documents follow corpus order, so output is
// deterministic and loading it yields an equal corpus.
func Dump(w io.Writer, c *model.Corpus) error {
	var b strings.Builder
	if uri := c.URI(); uri != "" {
		fmt.Fprintf(&b, "_uri: %s\n", yamlScalar(uri))
	}
	b.WriteString("_meta:\n")
	meta := c.Meta()
	for _, name := range sortedNames(meta) {
		fmt.Fprintf(&b, "    %s:\n", yamlScalar(name))
		for _, f := range descFields(meta[name]) {
			fmt.Fprintf(&b, "        %s: %s\n", f.Key, yamlValue(f.Value))
		}
	}
	for _, kd := range c.Documents() {
		fmt.Fprintf(&b, "%s:\n", yamlScalar(kd.Key))
		if kd.Doc.IsExternal() {
			fmt.Fprintf(&b, "    _uri: %s\n", yamlScalar(kd.Doc.URI()))
		}
		for _, name := range kd.Doc.LayerNames() {
			l, err := kd.Doc.Layer(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "    %s: %s\n", yamlScalar(name), yamlValue(layerToAny(l)))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// DumpString renders the corpus as a YAML string.
func DumpString(c *model.Corpus) (string, error) {
	var b strings.Builder
	if err := Dump(&b, c); err != nil {
		return "", err
	}
	return b.String(), nil
}

// yamlValue renders a serialized value inline. Strings use YAML
// scalar quoting, composite values use JSON, which YAML parses as
// flow-style collections.
func yamlValue(v any) string {
	if s, ok := v.(string); ok {
		return yamlScalar(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// yamlScalar quotes a string the way the yaml encoder would. Strings
// the encoder puts in block style fall back to JSON quoting so they
// stay on one line.
func yamlScalar(s string) string {
	b, err := yaml.Marshal(s)
	if err != nil {
		return s
	}
	out := strings.TrimSuffix(string(b), "\n")
	if strings.Contains(out, "\n") {
		jb, jerr := json.Marshal(s)
		if jerr != nil {
			return s
		}
		return string(jb)
	}
	return out
}
