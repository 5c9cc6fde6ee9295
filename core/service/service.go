// Package service defines the boundary for annotation services:
// components that read some layers of a document and produce new
// ones. Applying a service never mutates the input corpus; enriched
// documents land in a fresh corpus and are re-keyed by content.
package service

import (
	"context"
	"fmt"

	strataerr "github.com/strata-nlp/strata/core/errors"
	"github.com/strata-nlp/strata/core/model"
)

// Service enriches documents with annotation layers.
type Service interface {
	// Name identifies the service in errors and logs.
	Name() string
	// Requires lists the layers the service reads. A document missing
	// one of them is rejected before Execute runs.
	Requires() []string
	// Produces declares the descriptors of the layers the service
	// writes.
	Produces() model.Meta
	// Execute adds the produced layers to the document.
	Execute(ctx context.Context, doc *model.Document) error
}

// AddMeta merges a service's produced descriptors into the corpus, so
// its output layers are declared before any document carries them.
func AddMeta(c *model.Corpus, svc Service) error {
	return c.MergeMeta(svc.Produces())
}

// Apply runs the service over every document of the corpus in order
// and returns a new corpus holding the enriched documents. External
// documents pass through untouched. The context is checked between
// documents, so cancellation loses at most the document in flight.
func Apply(ctx context.Context, c *model.Corpus, svc Service) (*model.Corpus, error) {
	out := model.NewCorpus()
	out.SetKeyLength(c.KeyLength())
	if err := out.MergeMeta(c.Meta()); err != nil {
		return nil, err
	}
	if err := AddMeta(out, svc); err != nil {
		return nil, err
	}
	if uri := c.URI(); uri != "" {
		out.SetURI(uri)
	}

	for _, kd := range c.Documents() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		doc := kd.Doc.CloneWith(out.Meta())
		if doc.IsExternal() {
			if _, err := out.InsertWithKey(kd.Key, doc); err != nil {
				return nil, err
			}
			continue
		}
		for _, name := range svc.Requires() {
			if !doc.HasLayer(name) {
				return nil, &strataerr.ValidationError{Layer: name,
					Message: fmt.Sprintf("service %s requires a layer the document %s does not carry",
						svc.Name(), kd.Key)}
			}
		}
		if err := svc.Execute(ctx, doc); err != nil {
			return nil, fmt.Errorf("service %s on document %s: %w", svc.Name(), kd.Key, err)
		}
		// Documents without character layers keep their explicit key.
		key, err := model.KeyOf(doc, out.KeyLength())
		if err != nil {
			key = kd.Key
		}
		if _, err := out.InsertWithKey(key, doc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Pipeline applies services in sequence, feeding each service the
// output corpus of the previous one.
type Pipeline []Service

// Apply runs the pipeline over the corpus.
func (p Pipeline) Apply(ctx context.Context, c *model.Corpus) (*model.Corpus, error) {
	out := c
	for _, svc := range p {
		next, err := Apply(ctx, out, svc)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}
