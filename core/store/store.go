// Package store persists corpora in SQLite. It keeps the same
// insert-only discipline as the in-memory corpus: documents are keyed
// by content hash, colliding keys are rejected, and reordering is the
// only mutation of existing rows.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/strata-nlp/strata/core/codec"
	strataerr "github.com/strata-nlp/strata/core/errors"
	"github.com/strata-nlp/strata/core/model"
	"github.com/strata-nlp/strata/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS corpus_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	key    TEXT PRIMARY KEY,
	layers TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS document_order (
	pos INTEGER PRIMARY KEY,
	key TEXT NOT NULL UNIQUE REFERENCES documents(key)
);
`

// Store is a corpus persisted in a SQLite database. All mutating
// operations are serialized by a mutex, so a store can be shared
// between goroutines.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	meta   model.Meta
	keyLen int
}

// Open opens (or creates) a corpus store at path.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{db: db, meta: model.Meta{}, keyLen: model.DefaultKeyLength}
	if err := s.loadState(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadState() error {
	var metaJSON string
	err := s.db.QueryRow(`SELECT value FROM corpus_meta WHERE key = 'meta'`).Scan(&metaJSON)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("load meta: %w", err)
	default:
		meta, err := codec.UnmarshalMeta([]byte(metaJSON))
		if err != nil {
			return err
		}
		s.meta = meta
	}
	var keyLen int
	err = s.db.QueryRow(`SELECT value FROM corpus_meta WHERE key = 'key_length'`).Scan(&keyLen)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("load key length: %w", err)
	default:
		s.keyLen = keyLen
	}
	return nil
}

func (s *Store) putState(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO corpus_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Meta returns a copy of the store's descriptor set.
func (s *Store) Meta() model.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.Meta, len(s.meta))
	for name, d := range s.meta {
		out[name] = d
	}
	return out
}

// MergeMeta merges descriptors into the store's set and persists it.
// Conflicting redeclarations are rejected.
func (s *Store) MergeMeta(meta model.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make(model.Meta, len(s.meta)+len(meta))
	for name, d := range s.meta {
		merged[name] = d
	}
	if err := merged.Merge(meta); err != nil {
		return err
	}
	data, err := codec.MarshalMeta(merged)
	if err != nil {
		return err
	}
	if err := s.putState("meta", string(data)); err != nil {
		return fmt.Errorf("persist meta: %w", err)
	}
	s.meta = merged
	return nil
}

// KeyLength returns the truncated key length for inserts.
func (s *Store) KeyLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyLen
}

// SetKeyLength sets and persists the truncated key length.
func (s *Store) SetKeyLength(n int) error {
	if n <= 0 {
		n = model.DefaultKeyLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putState("key_length", fmt.Sprintf("%d", n)); err != nil {
		return fmt.Errorf("persist key length: %w", err)
	}
	s.keyLen = n
	return nil
}

// URI returns the stored corpus URI, if any.
func (s *Store) URI() (string, error) {
	var uri string
	err := s.db.QueryRow(`SELECT value FROM corpus_meta WHERE key = 'uri'`).Scan(&uri)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return uri, err
}

// SetURI persists the corpus URI.
func (s *Store) SetURI(uri string) error {
	return s.putState("uri", uri)
}

// Insert validates the document, keys it by content hash and stores
// it. Re-inserting an identical document is a no-op.
func (s *Store) Insert(doc *model.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := model.KeyOf(doc, s.keyLen)
	if err != nil {
		return "", err
	}
	return key, s.insert(key, doc)
}

// InsertWithKey stores the document under an explicit key.
func (s *Store) InsertWithKey(key string, doc *model.Document) error {
	if key == "" {
		return &strataerr.ValidationError{Message: "document key must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(key, doc)
}

func (s *Store) insert(key string, doc *model.Document) error {
	if err := model.CheckDocument(doc, s.meta); err != nil {
		return err
	}
	row, err := codec.MarshalDocument(doc)
	if err != nil {
		return err
	}

	var existing string
	err = s.db.QueryRow(`SELECT layers FROM documents WHERE key = ?`, key).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("look up document: %w", err)
	case existing == string(row):
		return nil
	default:
		// Serialized layers are deterministic, so a textual mismatch
		// means different content under the same key.
		return &strataerr.KeyCollisionError{Key: key}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO documents (key, layers) VALUES (?, ?)`, key, string(row)); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert document: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO document_order (pos, key)
		 VALUES ((SELECT COALESCE(MAX(pos), 0) + 1 FROM document_order), ?)`, key); err != nil {
		tx.Rollback()
		return fmt.Errorf("append order: %w", err)
	}
	return tx.Commit()
}

// Get returns the document stored under key.
func (s *Store) Get(key string) (*model.Document, error) {
	var row string
	err := s.db.QueryRow(`SELECT layers FROM documents WHERE key = ?`, key).Scan(&row)
	if err == sql.ErrNoRows {
		return nil, &strataerr.NotFoundError{Resource: "document", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("look up document: %w", err)
	}
	return codec.UnmarshalDocument(s.Meta(), []byte(row))
}

// Has reports whether a document is stored under key.
func (s *Store) Has(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM documents WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// Len returns the number of stored documents.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Keys returns the stored document keys in corpus order.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM document_order ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// SetOrder replaces the corpus order. The keys must be a permutation
// of the stored keys.
func (s *Store) SetOrder(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.Keys()
	if err != nil {
		return err
	}
	if len(keys) != len(current) {
		return &strataerr.OrderError{
			Message: fmt.Sprintf("order has %d keys, corpus has %d", len(keys), len(current)),
		}
	}
	seen := make(map[string]bool, len(keys))
	stored := make(map[string]bool, len(current))
	for _, k := range current {
		stored[k] = true
	}
	for _, k := range keys {
		if seen[k] {
			return &strataerr.OrderError{Message: fmt.Sprintf("duplicate key %q", k)}
		}
		if !stored[k] {
			return &strataerr.OrderError{Message: fmt.Sprintf("unknown key %q", k)}
		}
		seen[k] = true
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM document_order`); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear order: %w", err)
	}
	for i, key := range keys {
		if _, err := tx.Exec(`INSERT INTO document_order (pos, key) VALUES (?, ?)`, i+1, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("write order: %w", err)
		}
	}
	return tx.Commit()
}

// ImportCorpus merges the corpus's descriptors and inserts all of its
// documents under their existing keys, preserving order for the newly
// appended documents.
func (s *Store) ImportCorpus(c *model.Corpus) error {
	if err := s.MergeMeta(c.Meta()); err != nil {
		return err
	}
	if uri := c.URI(); uri != "" {
		if err := s.SetURI(uri); err != nil {
			return err
		}
	}
	for _, kd := range c.Documents() {
		if err := s.InsertWithKey(kd.Key, kd.Doc); err != nil {
			return err
		}
	}
	return nil
}

// ExportCorpus materializes the stored corpus in memory.
func (s *Store) ExportCorpus() (*model.Corpus, error) {
	c := model.NewCorpus()
	c.SetKeyLength(s.KeyLength())
	if err := c.MergeMeta(s.Meta()); err != nil {
		return nil, err
	}
	uri, err := s.URI()
	if err != nil {
		return nil, err
	}
	if uri != "" {
		c.SetURI(uri)
	}
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		doc, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if _, err := c.InsertWithKey(key, doc); err != nil {
			return nil, err
		}
	}
	return c, nil
}
