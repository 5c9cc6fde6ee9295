package cas

import (
	"bytes"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v, want nil", err)
	}
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	data := []byte("_meta:\n  text:\n    type: characters\n")

	hash, err := s.Put(data)
	if err != nil {
		t.Fatalf("Put() = %v, want nil", err)
	}
	if hash != Hash(data) {
		t.Errorf("Put() = %q, want %q", hash, Hash(data))
	}
	if !s.Has(hash) {
		t.Error("Has() = false after Put")
	}

	got, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get() = %v, want nil", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Get() returned different bytes")
	}
}

func TestPutDeduplicates(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same payload")

	h1, err := s.Put(data)
	if err != nil {
		t.Fatalf("Put() = %v, want nil", err)
	}
	h2, err := s.Put(data)
	if err != nil {
		t.Fatalf("second Put() = %v, want nil", err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %q vs %q", h1, h2)
	}
}

func TestGetErrors(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get("not-a-hash"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("Get(bad hash) = %v, want ErrInvalidHash", err)
	}
	missing := Hash([]byte("never stored"))
	if _, err := s.Get(missing); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Get(missing) = %v, want ErrBlobNotFound", err)
	}
	if s.Has("not-a-hash") {
		t.Error("Has(bad hash) = true, want false")
	}
}

func TestVerify(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.Put([]byte("payload"))
	if err != nil {
		t.Fatalf("Put() = %v, want nil", err)
	}
	ok, err := s.Verify(hash)
	if err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
	if !ok {
		t.Error("Verify() = false for an intact blob")
	}
}

func TestSourcePointer(t *testing.T) {
	s := newTestStore(t)
	uri := "https://example.org/corpora/base.yaml"
	data := []byte("_meta:\n  text:\n    type: characters\n")

	hash, err := s.PutSource(uri, data)
	if err != nil {
		t.Fatalf("PutSource() = %v, want nil", err)
	}
	if hash != Hash(data) {
		t.Errorf("PutSource() = %q, want payload hash %q", hash, Hash(data))
	}
	if !s.HasSource(uri) {
		t.Error("HasSource() = false after PutSource")
	}

	got, err := s.GetSource(uri)
	if err != nil {
		t.Fatalf("GetSource() = %v, want nil", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("GetSource() returned different bytes")
	}
}

func TestSourcePointerUpdate(t *testing.T) {
	s := newTestStore(t)
	uri := "https://example.org/corpora/base.yaml"

	if _, err := s.PutSource(uri, []byte("old payload")); err != nil {
		t.Fatalf("PutSource() = %v, want nil", err)
	}
	if _, err := s.PutSource(uri, []byte("new payload")); err != nil {
		t.Fatalf("second PutSource() = %v, want nil", err)
	}
	got, err := s.GetSource(uri)
	if err != nil {
		t.Fatalf("GetSource() = %v, want nil", err)
	}
	if string(got) != "new payload" {
		t.Errorf("GetSource() = %q, want the updated payload", got)
	}
}

func TestGetSourceMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSource("https://example.org/unknown"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("GetSource() = %v, want ErrBlobNotFound", err)
	}
	if s.HasSource("https://example.org/unknown") {
		t.Error("HasSource() = true, want false")
	}
}

func TestURIDigest(t *testing.T) {
	d := URIDigest("https://example.org/a")
	if len(d) != 64 {
		t.Errorf("len(URIDigest()) = %d, want 64", len(d))
	}
	if d == URIDigest("https://example.org/b") {
		t.Error("different uris should not share a digest")
	}
}
