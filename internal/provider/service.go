package provider

import (
	"context"

	"github.com/stratamedia/strata/internal/cache"
)

// Service memoizes provider calls through a cache instance. The operation
// names carry the provider name so records from different providers never
// share entries.
type Service struct {
	client       *Client
	cache        *cache.Cache
	fetchTitle   func(context.Context, TitleRequest, cache.CallOptions) (Record, error)
	searchArtist func(context.Context, ArtistQuery, cache.CallOptions) ([]Record, error)
}

// NewService wraps a client's operations with the given cache.
func NewService(client *Client, c *cache.Cache) *Service {
	return &Service{
		client:       client,
		cache:        c,
		fetchTitle:   cache.Wrap(c, client.name+"_fetch_title", client.FetchTitle),
		searchArtist: cache.Wrap(c, client.name+"_search_artist", client.SearchArtist),
	}
}

// FetchTitle returns a cached title record, fetching on miss. Concurrent
// callers for the same title coalesce onto one upstream request.
func (s *Service) FetchTitle(ctx context.Context, req TitleRequest) (Record, error) {
	return s.fetchTitle(ctx, req, cache.CallOptions{Shared: true})
}

// SearchArtist returns cached artist search results, fetching on miss.
func (s *Service) SearchArtist(ctx context.Context, q ArtistQuery) ([]Record, error) {
	return s.searchArtist(ctx, q, cache.CallOptions{Shared: true})
}

// Refresh drops any cached copy of a title and fetches it fresh from
// upstream, storing the new result in every tier.
func (s *Service) Refresh(ctx context.Context, req TitleRequest) (Record, error) {
	s.cache.Delete(cache.Fingerprint(s.client.name+"_fetch_title", req, ""))
	return s.FetchTitle(ctx, req)
}
