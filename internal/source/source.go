// Package source defines the capability contract for platform providers and
// the registry that dispatches works to them
package source

import (
	"context"
	"errors"
	"time"

	"serialarr/internal/fetch"
)

// Metadata is the descriptive information a provider reports for a work
type Metadata struct {
	Title             string
	Author            string
	Description       string
	CoverURL          string
	Tags              []string
	Rating            string
	Language          string
	PublicationStatus string
}

// ListingItem is one entry of a provider's episode listing, in listing order
type ListingItem struct {
	Title        string
	URL          string
	PublishedAt  *time.Time
	VolumeTitle  string
	VolumeNumber int
	Tags         []string
	// Index is the provider's own 1-based position when it supplies one;
	// zero means positional order applies
	Index int
}

// ListingHint describes the most recent known episode of a work. Providers
// may use it to resume a listing scan partway; they may also ignore it and
// return the full listing, since the diff step de-duplicates by URL.
type ListingHint struct {
	URL          string
	Title        string
	Sequence     int
	VolumeNumber int
	VolumeTitle  string
}

// SearchResult is one entry of a provider's search response
type SearchResult struct {
	Title       string
	URL         string
	Author      string
	Description string
	CoverURL    string
	ProviderKey string
}

// ErrSearchUnsupported is returned by providers that cannot search. Search
// fan-out skips them quietly.
var ErrSearchUnsupported = errors.New("search not supported")

// Source is the contract every platform provider implements
//
//go:generate mockgen -source=source.go -destination=mocks/mock_source.go -package=mocks
type Source interface {
	// Key returns the provider's stable identifier, e.g. "royalroad"
	Key() string

	// Identify reports whether this provider owns the given URL
	Identify(url string) bool

	// Metadata fetches the descriptive information for a work URL
	Metadata(ctx context.Context, url string) (*Metadata, error)

	// Episodes fetches the ordered episode listing for a work URL. The hint
	// is optional; see ListingHint.
	Episodes(ctx context.Context, url string, last *ListingHint) ([]ListingItem, error)

	// EpisodeContent fetches the markup of a single episode
	EpisodeContent(ctx context.Context, url string) (string, error)

	// Search finds works matching the query
	Search(ctx context.Context, query string) ([]SearchResult, error)

	// DefaultEnabled reports whether the provider starts enabled when first seen
	DefaultEnabled() bool

	// SetConfig injects the provider's persisted configuration
	SetConfig(config map[string]string) error
}

// Builder constructs one provider instance around the shared fetch client.
// Providers are registered through a static builder table rather than
// discovered dynamically.
type Builder struct {
	Key string
	New func(client *fetch.Client) Source
}
