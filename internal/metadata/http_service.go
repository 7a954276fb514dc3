package metadata

import (
	"context"
	"sync"
	"time"
)

// Fetcher retrieves one entity's metadata from the platform's
// $metadata/EntityDefinitions endpoint (or equivalent); the HTTP shape is
// internal/platform's concern, kept out of this package the same way
// resolver.Fetcher keeps internal/resolver decoupled from the transport.
type Fetcher func(ctx context.Context, logicalName string) (EntityMetadata, error)

type cacheEntry struct {
	entity  EntityMetadata
	fetched time.Time
}

// CachedHTTPService wraps a Fetcher with a mutex-guarded TTL cache, so
// repeated lookups of the same entity across a large migration run don't
// re-hit the platform every time. Caching policy is this type's own
// concern: StaticService has none at all, and nothing upstream of Service
// needs to know the difference.
type CachedHTTPService struct {
	fetch Fetcher
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCachedHTTPService constructs a cache in front of fetch with the given
// per-entity TTL. A zero (or negative) TTL means cached entries never expire.
func NewCachedHTTPService(fetch Fetcher, ttl time.Duration) *CachedHTTPService {
	return &CachedHTTPService{fetch: fetch, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// Entity implements Service.
func (s *CachedHTTPService) Entity(ctx context.Context, logicalName string) (EntityMetadata, error) {
	if cached, ok := s.lookup(logicalName); ok {
		return cached, nil
	}

	entity, err := s.fetch(ctx, logicalName)
	if err != nil {
		return EntityMetadata{}, err
	}

	s.mu.Lock()
	s.cache[logicalName] = cacheEntry{entity: entity, fetched: time.Now()}
	s.mu.Unlock()
	return entity, nil
}

func (s *CachedHTTPService) lookup(logicalName string) (EntityMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[logicalName]
	if !ok {
		return EntityMetadata{}, false
	}
	if s.ttl > 0 && time.Since(entry.fetched) > s.ttl {
		delete(s.cache, logicalName)
		return EntityMetadata{}, false
	}
	return entry.entity, true
}

var _ Service = (*CachedHTTPService)(nil)
