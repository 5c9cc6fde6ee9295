package model

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"

	strataerr "github.com/strata-nlp/strata/core/errors"
)

// DefaultKeyLength is the default truncation length for document keys.
// Truncated keys can collide; the corpus detects collisions on insert
// rather than lengthening keys silently.
const DefaultKeyLength = 4

// FullKeyOf computes the untruncated content-addressable key of a
// document from its characters layers. The canonical representation
// concatenates, for each characters layer in ordinal name order, the
// layer name and text each followed by a NUL byte; the key is the
// base64 encoding of the SHA-256 digest of that representation's UTF-8
// bytes. Insertion order of the layers never affects the key; the name
// sort does.
func FullKeyOf(doc *Document) (string, error) {
	var names []string
	for _, name := range doc.LayerNames() {
		if doc.meta[name].Kind == KindCharacters {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", &strataerr.ValidationError{
			Message: "document has no characters layer to hash; supply an explicit key"}
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		l := doc.layers[name]
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(l.Text()))
		h.Write([]byte{0})
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// KeyOf computes the truncated human-facing key of a document: the
// first prefixLen characters of FullKeyOf. A prefixLen of zero or less
// selects DefaultKeyLength.
func KeyOf(doc *Document, prefixLen int) (string, error) {
	full, err := FullKeyOf(doc)
	if err != nil {
		return "", err
	}
	if prefixLen <= 0 {
		prefixLen = DefaultKeyLength
	}
	if prefixLen > len(full) {
		prefixLen = len(full)
	}
	return full[:prefixLen], nil
}

// KeyMatches reports whether a stored key and a computed key agree on
// their common prefix. Stored keys may be longer than the configured
// truncation length when a source resolved collisions by lengthening.
func KeyMatches(stored, computed string) bool {
	n := len(stored)
	if len(computed) < n {
		n = len(computed)
	}
	return stored[:n] == computed[:n]
}
