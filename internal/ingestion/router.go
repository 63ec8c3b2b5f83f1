package ingestion

import (
	"context"
	"fmt"

	"github.com/jonathan/video-refinery/internal/types"
)

// MetadataFetcher is implemented by every metadata source.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, ref types.SourceRef) (*types.VideoMetadata, error)
}

// Transferer is implemented by every asset transfer.
type Transferer interface {
	Transfer(ctx context.Context, ref types.SourceRef, jobID string) (string, error)
}

// MetadataRouter dispatches to a fetcher by source kind, falling back to a
// default for kinds without a dedicated fetcher.
type MetadataRouter struct {
	byKind   map[types.SourceKind]MetadataFetcher
	fallback MetadataFetcher
}

// NewMetadataRouter creates a router with the given fallback.
func NewMetadataRouter(fallback MetadataFetcher) *MetadataRouter {
	return &MetadataRouter{byKind: make(map[types.SourceKind]MetadataFetcher), fallback: fallback}
}

// Handle registers f for kind.
func (r *MetadataRouter) Handle(kind types.SourceKind, f MetadataFetcher) *MetadataRouter {
	r.byKind[kind] = f
	return r
}

// FetchMetadata implements MetadataFetcher.
func (r *MetadataRouter) FetchMetadata(ctx context.Context, ref types.SourceRef) (*types.VideoMetadata, error) {
	if f, ok := r.byKind[ref.Kind]; ok {
		return f.FetchMetadata(ctx, ref)
	}
	if r.fallback == nil {
		return nil, &types.ValidationError{Field: "sourceKind", Message: fmt.Sprintf("no metadata source for %s", ref.Kind)}
	}
	return r.fallback.FetchMetadata(ctx, ref)
}

// TransferRouter dispatches to a transfer by source kind.
type TransferRouter struct {
	byKind   map[types.SourceKind]Transferer
	fallback Transferer
}

// NewTransferRouter creates a router with the given fallback.
func NewTransferRouter(fallback Transferer) *TransferRouter {
	return &TransferRouter{byKind: make(map[types.SourceKind]Transferer), fallback: fallback}
}

// Handle registers t for kind.
func (r *TransferRouter) Handle(kind types.SourceKind, t Transferer) *TransferRouter {
	r.byKind[kind] = t
	return r
}

// Transfer implements Transferer.
func (r *TransferRouter) Transfer(ctx context.Context, ref types.SourceRef, jobID string) (string, error) {
	if t, ok := r.byKind[ref.Kind]; ok {
		return t.Transfer(ctx, ref, jobID)
	}
	if r.fallback == nil {
		return "", &types.ValidationError{Field: "sourceKind", Message: fmt.Sprintf("no transfer for %s", ref.Kind)}
	}
	return r.fallback.Transfer(ctx, ref, jobID)
}
