package codec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/strata-nlp/strata/core/cas"
)

const remoteYAML = `
_meta:
  text:
    type: characters
oUa1:
  text: Fetched from afar.
`

func remoteServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/base.yaml", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Write([]byte(remoteYAML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherFromURL(t *testing.T) {
	var hits atomic.Int64
	srv := remoteServer(t, &hits)

	f := NewFetcher(nil)
	c, err := f.FromURL(context.Background(), srv.URL+"/base.yaml")
	if err != nil {
		t.Fatalf("FromURL() = %v, want nil", err)
	}
	if !c.Has("oUa1") {
		t.Error("fetched corpus should contain its document")
	}
	if c.URI() != srv.URL+"/base.yaml" {
		t.Errorf("URI() = %q, want the fetched url", c.URI())
	}

	// Second fetch is served from the in-memory cache.
	c2, err := f.FromURL(context.Background(), srv.URL+"/base.yaml")
	if err != nil {
		t.Fatalf("FromURL() = %v, want nil", err)
	}
	if c2 != c {
		t.Error("second fetch should return the cached corpus")
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestFetcherBlobStore(t *testing.T) {
	var hits atomic.Int64
	srv := remoteServer(t, &hits)
	blobs, err := cas.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v, want nil", err)
	}

	f := NewFetcher(blobs)
	url := srv.URL + "/base.yaml"
	if _, err := f.FromURL(context.Background(), url); err != nil {
		t.Fatalf("FromURL() = %v, want nil", err)
	}
	if !blobs.HasSource(url) {
		t.Fatal("payload should be archived in the blob store")
	}

	// A fresh offline fetcher over the same store never touches the
	// network.
	off := NewFetcher(blobs)
	off.Offline = true
	c, err := off.FromURL(context.Background(), url)
	if err != nil {
		t.Fatalf("offline FromURL() = %v, want nil", err)
	}
	if !c.Has("oUa1") {
		t.Error("offline fetch should yield the archived corpus")
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestFetcherOfflineMiss(t *testing.T) {
	blobs, err := cas.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v, want nil", err)
	}
	f := NewFetcher(blobs)
	f.Offline = true
	if _, err := f.FromURL(context.Background(), "https://example.org/missing.yaml"); err == nil {
		t.Error("FromURL() = nil, want error for an unarchived uri")
	}
}

func TestFetcherInheritance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/base.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(remoteYAML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/child.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("_uri: " + srv.URL + "/base.yaml\n3vkM:\n  text: Inherited layers work.\n"))
	})

	f := NewFetcher(nil)
	c, err := f.FromURL(context.Background(), srv.URL+"/child.yaml")
	if err != nil {
		t.Fatalf("FromURL() = %v, want nil", err)
	}
	if !c.Has("3vkM") {
		t.Error("child corpus should contain its own document")
	}
	if _, ok := c.Meta()["text"]; !ok {
		t.Error("child corpus should inherit the text descriptor")
	}
}

func TestFetcherInheritanceCycle(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/a.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("_uri: " + srv.URL + "/b.yaml\n"))
	})
	mux.HandleFunc("/b.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("_uri: " + srv.URL + "/a.yaml\n"))
	})

	f := NewFetcher(nil)
	if _, err := f.FromURL(context.Background(), srv.URL+"/a.yaml"); err == nil {
		t.Error("FromURL() = nil, want error for an inheritance cycle")
	}
}

func TestFetcherResolver(t *testing.T) {
	srv := remoteServer(t, nil)
	f := NewFetcher(nil)

	ld := Loader{Resolver: f.Resolver(context.Background())}
	child := "_uri: " + srv.URL + "/base.yaml\n3vkM:\n  text: Inherited layers work.\n"
	c, err := LoadString(child)
	if err == nil {
		t.Fatal("LoadString() without resolver should fail")
	}
	c, err = ld.Load(strings.NewReader(child))
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if !c.Has("3vkM") {
		t.Error("resolved corpus should contain its document")
	}
}
