package sbom

import (
	"context"
	"sync"
	"time"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// MemoryRegistry keeps documents in process memory. Intended for
// development and tests; nothing survives a restart.
type MemoryRegistry struct {
	mu   sync.RWMutex
	docs map[string]Document // canonical purl -> document
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{docs: make(map[string]Document)}
}

// Put registers a document, replacing any previous one for the coordinate.
func (r *MemoryRegistry) Put(ctx context.Context, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.Coordinate.String()] = doc
	return nil
}

// Get returns the document for a coordinate.
func (r *MemoryRegistry) Get(ctx context.Context, coordinate purl.Coordinate) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[coordinate.String()]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "no sbom registered for %s", coordinate)
	}
	return &doc, nil
}

// Close is a no-op for the in-memory backend.
func (r *MemoryRegistry) Close(ctx context.Context) error { return nil }

var _ Registry = (*MemoryRegistry)(nil)
