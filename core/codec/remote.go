package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/strata-nlp/strata/core/cas"
	strataerr "github.com/strata-nlp/strata/core/errors"
	"github.com/strata-nlp/strata/core/model"
	"github.com/strata-nlp/strata/internal/logging"
)

// DefaultCacheTTL is how long a fetched corpus stays in the in-memory
// cache before it is re-read from the blob store or the network.
const DefaultCacheTTL = 15 * time.Minute

// maxInheritDepth bounds _uri inheritance chains so a cycle between
// corpora cannot recurse forever.
const maxInheritDepth = 8

// Fetcher loads corpora from URIs. Parsed corpora are held in a TTL
// cache and raw payloads can be persisted in a content-addressed blob
// store, so a corpus referenced by many others is fetched once.
type Fetcher struct {
	// Client performs HTTP requests. Defaults to a client with a
	// 30 second timeout.
	Client *http.Client
	// Blobs persists downloaded payloads. Optional; when set, a URI
	// already in the store is served without touching the network.
	Blobs *cas.Store
	// Offline restricts the fetcher to the blob store.
	Offline bool

	cache *gocache.Cache
}

// NewFetcher returns a fetcher backed by the given blob store. Pass
// nil to fetch without persistence.
func NewFetcher(blobs *cas.Store) *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: 30 * time.Second},
		Blobs:  blobs,
		cache:  gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
	}
}

// FromURL fetches and parses the corpus at uri. Corpora the fetched
// corpus inherits from via _uri are fetched through the same cache.
func (f *Fetcher) FromURL(ctx context.Context, uri string) (*model.Corpus, error) {
	return f.fetch(ctx, uri, 0)
}

// Resolver adapts the fetcher for Loader.Resolver, so locally loaded
// corpora can inherit descriptors from remote ones.
func (f *Fetcher) Resolver(ctx context.Context) func(uri string) (model.Meta, error) {
	return func(uri string) (model.Meta, error) {
		c, err := f.fetch(ctx, uri, 1)
		if err != nil {
			return nil, err
		}
		return c.Meta(), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, uri string, depth int) (*model.Corpus, error) {
	if depth > maxInheritDepth {
		return nil, &strataerr.LoadError{
			Message: fmt.Sprintf("corpus inheritance deeper than %d levels, assuming a cycle", maxInheritDepth),
		}
	}
	if cached, ok := f.cache.Get(uri); ok {
		logging.DebugContext(ctx, "corpus cache hit", "uri", uri)
		return cached.(*model.Corpus), nil
	}

	start := time.Now()
	data, source, err := f.payload(ctx, uri)
	if err != nil {
		return nil, err
	}
	logging.CorpusFetch(ctx, uri, source, len(data), time.Since(start))

	ld := &Loader{Resolver: func(base string) (model.Meta, error) {
		sub, err := f.fetch(ctx, base, depth+1)
		if err != nil {
			return nil, err
		}
		return sub.Meta(), nil
	}}
	r, err := Decompress(bytes.NewReader(data))
	if err != nil {
		return nil, &strataerr.LoadError{Message: "cannot decompress corpus payload", Err: err}
	}
	var c *model.Corpus
	if formatOf(uriPath(uri)) == "json" {
		c, err = ld.LoadJSON(r)
	} else {
		c, err = ld.Load(r)
	}
	if err != nil {
		return nil, err
	}
	if c.URI() == "" {
		c.SetURI(uri)
	}
	f.cache.SetDefault(uri, c)
	return c, nil
}

// payload returns the raw bytes for a URI and where they came from,
// preferring the blob store over the network.
func (f *Fetcher) payload(ctx context.Context, uri string) ([]byte, string, error) {
	if f.Blobs != nil {
		if data, err := f.Blobs.GetSource(uri); err == nil {
			return data, "blobs", nil
		}
	}
	if f.Offline {
		return nil, "", &strataerr.LoadError{
			Message: fmt.Sprintf("%q is not in the blob store and the fetcher is offline", uri),
		}
	}

	var data []byte
	var err error
	source := "network"
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		data, err = f.download(ctx, uri)
	} else {
		source = "file"
		data, err = os.ReadFile(strings.TrimPrefix(uri, "file://"))
	}
	if err != nil {
		return nil, "", &strataerr.LoadError{Message: fmt.Sprintf("fetching %q", uri), Err: err}
	}
	if f.Blobs != nil {
		if _, err := f.Blobs.PutSource(uri, data); err != nil {
			return nil, "", err
		}
	}
	return data, source, nil
}

func (f *Fetcher) download(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// uriPath extracts the path component used for format detection.
func uriPath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		return u.Path
	}
	return uri
}
