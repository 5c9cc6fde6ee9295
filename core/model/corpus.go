package model

import (
	"fmt"

	strataerr "github.com/strata-nlp/strata/core/errors"
)

// Corpus is an ordered collection of documents keyed by content hash,
// plus the global descriptor set. The corpus exclusively owns its
// documents and descriptors; documents carry a copy of the descriptor
// set rather than a back-reference.
type Corpus struct {
	meta   Meta
	docs   map[string]*Document
	order  []string
	uri    string
	keyLen int
}

// KeyedDocument pairs a document with its corpus key.
type KeyedDocument struct {
	Key string
	Doc *Document
}

// NewCorpus creates an empty corpus with the default key truncation
// length.
func NewCorpus() *Corpus {
	return &Corpus{
		meta:   Meta{},
		docs:   map[string]*Document{},
		keyLen: DefaultKeyLength,
	}
}

// SetKeyLength sets the truncation length for keys of subsequently
// inserted documents. Keys already assigned are not recomputed.
func (c *Corpus) SetKeyLength(n int) {
	if n > 0 {
		c.keyLen = n
	}
}

// KeyLength returns the configured key truncation length.
func (c *Corpus) KeyLength() int {
	return c.keyLen
}

// Meta returns the corpus's descriptor set. The set is shared, not
// copied; callers must not mutate it directly.
func (c *Corpus) Meta() Meta {
	return c.meta
}

// URI returns the URI of the corpus this corpus extends, or empty.
func (c *Corpus) URI() string {
	return c.uri
}

// SetURI records the URI of the corpus this corpus extends.
func (c *Corpus) SetURI(uri string) {
	c.uri = uri
}

// AddLayerDesc declares a layer. The descriptor must pass its local
// checks, must not redeclare an existing layer, and its sublayer and
// link target must already be declared.
func (c *Corpus) AddLayerDesc(d *LayerDesc) error {
	if err := d.Check(); err != nil {
		return err
	}
	if _, ok := c.meta[d.Name]; ok {
		return &strataerr.SchemaError{Layer: d.Name, Message: "layer already exists"}
	}
	if d.Kind != KindCharacters {
		if _, ok := c.meta[d.On]; !ok {
			return &strataerr.SchemaError{Layer: d.Name,
				Message: fmt.Sprintf("sublayer %q is not declared", d.On)}
		}
		if target := d.LinkTarget(); target != "" {
			if _, ok := c.meta[target]; !ok {
				return &strataerr.SchemaError{Layer: d.Name,
					Message: fmt.Sprintf("link target layer %q is not declared", target)}
			}
		}
	}
	c.meta[d.Name] = d
	return nil
}

// MergeMeta merges another descriptor set into the corpus, as when
// extending a corpus referenced by URI. Conflicting redeclaration is a
// schema error.
func (c *Corpus) MergeMeta(other Meta) error {
	if err := other.Check(); err != nil {
		return err
	}
	return c.meta.Merge(other)
}

// NewDocument builds an empty document over the corpus's current
// descriptor set.
func (c *Corpus) NewDocument() *Document {
	return NewDocument(c.meta)
}

// AddText is a convenience for corpora with exactly one characters
// layer: it builds a document holding the given text, inserts it, and
// returns its key and the document.
func (c *Corpus) AddText(text string) (string, *Document, error) {
	charLayers := c.meta.CharacterLayers()
	if len(charLayers) == 0 {
		return "", nil, &strataerr.SchemaError{
			Message: "no characters layer declared; add at least one"}
	}
	if len(charLayers) > 1 {
		return "", nil, &strataerr.SchemaError{
			Message: "multiple characters layers declared; build the document explicitly"}
	}
	doc := c.NewDocument()
	if err := doc.SetText(charLayers[0], text); err != nil {
		return "", nil, err
	}
	if err := doc.AddLayers(nil); err != nil {
		return "", nil, err
	}
	key, err := c.Insert(doc)
	if err != nil {
		return "", nil, err
	}
	return key, doc, nil
}

// Insert validates the document, computes its truncated key, checks
// for collisions, and stores it, appending its key to the order. The
// corpus is untouched on any failure. Re-inserting a document
// identical to one already stored is a no-op returning the existing
// key; a truncated key shared with a different document is a hard
// collision error, never silently lengthened.
func (c *Corpus) Insert(doc *Document) (string, error) {
	key, err := KeyOf(doc, c.keyLen)
	if err != nil {
		return "", err
	}
	return c.insert(key, doc)
}

// InsertWithKey stores a document under a caller-supplied key. This is
// how external URI-reference documents, whose keys are taken verbatim
// from the source, and documents with deliberately lengthened keys
// enter the corpus. Validation and collision rules are the same as
// Insert.
func (c *Corpus) InsertWithKey(key string, doc *Document) (string, error) {
	if key == "" {
		return "", &strataerr.ValidationError{Message: "explicit document key must not be empty"}
	}
	return c.insert(key, doc)
}

func (c *Corpus) insert(key string, doc *Document) (string, error) {
	if err := CheckDocument(doc, c.meta); err != nil {
		return "", err
	}
	if existing, ok := c.docs[key]; ok {
		if existing.Equal(doc) {
			return key, nil
		}
		return "", &strataerr.KeyCollisionError{Key: key}
	}
	c.docs[key] = doc
	c.order = append(c.order, key)
	return key, nil
}

// Get returns the document stored under the given key.
func (c *Corpus) Get(key string) (*Document, error) {
	doc, ok := c.docs[key]
	if !ok {
		return nil, &strataerr.NotFoundError{Resource: "document", ID: key}
	}
	return doc, nil
}

// Has returns true if a document is stored under the given key.
func (c *Corpus) Has(key string) bool {
	_, ok := c.docs[key]
	return ok
}

// Len returns the number of documents in the corpus.
func (c *Corpus) Len() int {
	return len(c.docs)
}

// DocIDs returns the document keys in stored order. The stored order
// is authoritative; map iteration order is never exposed.
func (c *Corpus) DocIDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Documents returns key/document pairs in stored order.
func (c *Corpus) Documents() []KeyedDocument {
	out := make([]KeyedDocument, len(c.order))
	for i, key := range c.order {
		out[i] = KeyedDocument{Key: key, Doc: c.docs[key]}
	}
	return out
}

// SetOrder replaces the document order. The new order must be a
// permutation of the stored keys: same length, no duplicates, no
// unknown keys.
func (c *Corpus) SetOrder(keys []string) error {
	if len(keys) != len(c.docs) {
		return &strataerr.OrderError{
			Message: fmt.Sprintf("order has %d keys but corpus has %d documents", len(keys), len(c.docs))}
	}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if _, ok := c.docs[key]; !ok {
			return &strataerr.OrderError{Message: fmt.Sprintf("unknown key %q", key)}
		}
		if seen[key] {
			return &strataerr.OrderError{Message: fmt.Sprintf("duplicate key %q", key)}
		}
		seen[key] = true
	}
	c.order = append(c.order[:0:0], keys...)
	return nil
}
