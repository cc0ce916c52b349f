package sbom

import (
	"context"
	"testing"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

func validDoc() Document {
	return Document{
		Coordinate: purl.MustParse("pkg:npm/left-pad@1.3.0"),
		Format:     FormatCycloneDX,
		Content:    []byte(`{"bomFormat":"CycloneDX"}`),
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Put(ctx, validDoc()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := r.Get(ctx, purl.MustParse("pkg:npm/left-pad@1.3.0"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Format != FormatCycloneDX {
		t.Errorf("Format = %q", got.Format)
	}
	if got.IngestedAt.IsZero() {
		t.Error("IngestedAt not stamped")
	}
}

func TestMemoryPutReplaces(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	doc := validDoc()
	if err := r.Put(ctx, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	doc.Format = FormatSPDX
	if err := r.Put(ctx, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := r.Get(ctx, doc.Coordinate)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Format != FormatSPDX {
		t.Errorf("Format = %q, want replacement to win", got.Format)
	}
}

func TestMemoryMissIsNotFound(t *testing.T) {
	r := NewMemoryRegistry()
	_, err := r.Get(context.Background(), purl.MustParse("pkg:npm/ghost@1.0.0"))
	if errors.GetCode(err) != errors.ErrCodeNotFound {
		t.Errorf("code = %v, want NOT_FOUND", errors.GetCode(err))
	}
}

func TestDocumentValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Document)
		wantErr bool
	}{
		{"valid", func(d *Document) {}, false},
		{"spdx", func(d *Document) { d.Format = FormatSPDX }, false},
		{"no coordinate", func(d *Document) { d.Coordinate = purl.Coordinate{} }, true},
		{"unknown format", func(d *Document) { d.Format = "swid" }, true},
		{"empty content", func(d *Document) { d.Content = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(&doc)
			err := doc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
