// Package search provides video search through a chain of providers.
package search

import (
	"context"

	"github.com/osa030/sonora/internal/domain/track"
)

// Provider is the interface for search backends.
type Provider interface {
	// Search returns at most limit tracks matching query.
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)

	// Name returns the provider type (used in config).
	Name() string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}
