package metadata

import (
	"context"
	"sync"
)

// StaticService is a fixed, in-memory metadata source, useful for tests
// and for configs pinned against a known schema snapshot. The RWMutex
// covers concurrent reads from multiple workers; the contents never change
// after NewStaticService.
type StaticService struct {
	mu       sync.RWMutex
	entities map[string]EntityMetadata
}

// NewStaticService builds a StaticService from a fixed entity list.
func NewStaticService(entities []EntityMetadata) *StaticService {
	s := &StaticService{entities: make(map[string]EntityMetadata, len(entities))}
	for _, e := range entities {
		s.entities[e.LogicalName] = e
	}
	return s
}

// Entity implements Service.
func (s *StaticService) Entity(_ context.Context, logicalName string) (EntityMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[logicalName]
	if !ok {
		return EntityMetadata{}, &ErrEntityNotFound{LogicalName: logicalName}
	}
	return e, nil
}

var _ Service = (*StaticService)(nil)
