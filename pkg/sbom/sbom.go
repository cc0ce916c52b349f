// Package sbom stores software bills of materials keyed by package
// coordinate.
//
// The registry is a sidecar to the trust engine: callers that already hold
// an SBOM for an artifact can register it, and report consumers can pull
// it back alongside the trust report. Two backends ship here: an in-memory
// store for development and tests, and a MongoDB store for deployments.
package sbom

import (
	"context"
	"time"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// Known document formats.
const (
	FormatCycloneDX = "cyclonedx"
	FormatSPDX      = "spdx"
)

// Document is one stored SBOM.
type Document struct {
	// Coordinate identifies the artifact the SBOM describes.
	Coordinate purl.Coordinate `json:"coordinate" bson:"-"`
	// Format is the SBOM dialect, cyclonedx or spdx.
	Format string `json:"format" bson:"format"`
	// Content is the raw serialized SBOM.
	Content []byte `json:"content" bson:"content"`

	IngestedAt time.Time `json:"ingested_at" bson:"ingested_at"`
}

// Validate rejects documents that could not be served back meaningfully.
func (d *Document) Validate() error {
	if d.Coordinate.Name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "sbom document needs a coordinate")
	}
	if d.Format != FormatCycloneDX && d.Format != FormatSPDX {
		return errors.New(errors.ErrCodeInvalidInput, "unknown sbom format %q", d.Format)
	}
	if len(d.Content) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "sbom document is empty")
	}
	return nil
}

// Registry stores and retrieves SBOM documents by coordinate.
type Registry interface {
	// Put registers a document, replacing any previous one for the same
	// coordinate.
	Put(ctx context.Context, doc Document) error

	// Get returns the document for a coordinate, or a NOT_FOUND error.
	Get(ctx context.Context, coordinate purl.Coordinate) (*Document, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}
