package cas

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/zeebo/blake3"
)

// sourcePointer maps a source URI to the SHA-256 of its payload.
// Pointer files are keyed by the BLAKE3 digest of the URI, which
// gives fixed-length filenames regardless of how long the URI is.
type sourcePointer struct {
	URI    string `json:"uri"`
	SHA256 string `json:"sha256"`
}

// PutSource stores data and records which URI it was fetched from.
// Returns the SHA-256 hash of the payload.
func (s *Store) PutSource(uri string, data []byte) (string, error) {
	hash, err := s.Put(data)
	if err != nil {
		return "", err
	}
	pointer, err := json.Marshal(sourcePointer{URI: uri, SHA256: hash})
	if err != nil {
		return "", fmt.Errorf("failed to marshal source pointer: %w", err)
	}
	if err := writeAtomic(s.sourcePath(uri), pointer); err != nil {
		return "", err
	}
	return hash, nil
}

// GetSource returns the most recently stored payload for a URI.
// Returns ErrBlobNotFound if the URI was never fetched into the
// store.
func (s *Store) GetSource(uri string) ([]byte, error) {
	data, err := os.ReadFile(s.sourcePath(uri))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read source pointer: %w", err)
	}
	var pointer sourcePointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return nil, fmt.Errorf("failed to parse source pointer: %w", err)
	}
	return s.Get(pointer.SHA256)
}

// HasSource reports whether a payload is cached for the URI.
func (s *Store) HasSource(uri string) bool {
	_, err := os.Stat(s.sourcePath(uri))
	return err == nil
}

// sourcePath returns <root>/sources/<first2>/<blake3(uri)>.json.
func (s *Store) sourcePath(uri string) string {
	digest := URIDigest(uri)
	return filepath.Join(s.root, "sources", digest[:2], digest+".json")
}

// URIDigest computes the BLAKE3 digest used to file a source URI.
func URIDigest(uri string) string {
	h := blake3.Sum256([]byte(uri))
	return hex.EncodeToString(h[:])
}
