package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"gatekeeper/internal/audit/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// Error Contract:
// - Append returns sentinel.ErrConflict when an event with the same id exists
// - Get returns sentinel.ErrNotFound for an unknown id
// - Nothing else fails; the in-memory store has no dependency to lose

// InMemoryStore is an append-only event log guarded by a RWMutex.
// Only the archival flag of a stored event is ever changed.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []*models.Event
	ids    map[id.EventID]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{ids: make(map[id.EventID]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[e.ID]; dup {
		return sentinel.ErrConflict
	}
	s.ids[e.ID] = struct{}{}
	s.events = append(s.events, e.Clone())
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, eventID id.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.ids[eventID]; ok {
		for _, e := range s.events {
			if e.ID == eventID {
				return e.Clone(), nil
			}
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Query(_ context.Context, f models.Filter) ([]*models.Event, int, error) {
	s.mu.RLock()
	var matched []*models.Event
	for _, e := range s.events {
		if matches(e, &f) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, newestFirst)
	total := len(matched)
	page := paginate(matched, f.Limit, f.Offset)
	return cloneAll(page), total, nil
}

func (s *InMemoryStore) ListRange(_ context.Context, start, end time.Time) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e.Clone())
		}
	}
	slices.SortStableFunc(out, oldestFirst)
	return out, nil
}

func (s *InMemoryStore) MarkArchived(_ context.Context, olderThan, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i, e := range s.events {
		if e.Archived || !e.Timestamp.Before(olderThan) {
			continue
		}
		archived := *e
		archived.Archived = true
		archivedAt := at
		archived.ArchivedAt = &archivedAt
		s.events[i] = &archived
		n++
	}
	return n, nil
}

func (s *InMemoryStore) DeleteArchived(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	n := 0
	for _, e := range s.events {
		if e.Archived && e.Timestamp.Before(olderThan) {
			delete(s.ids, e.ID)
			n++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.events[len(kept):])
	s.events = kept
	return n, nil
}

func matches(e *models.Event, f *models.Filter) bool {
	if e.Archived && !f.IncludeArchived {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.RiskLevels) > 0 && !slices.Contains(f.RiskLevels, e.RiskLevel) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && !e.Timestamp.Before(*f.End) {
		return false
	}
	return true
}

func paginate(events []*models.Event, limit, offset int) []*models.Event {
	if offset >= len(events) {
		return nil
	}
	events = events[offset:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

func cloneAll(events []*models.Event) []*models.Event {
	out := make([]*models.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

func newestFirst(a, b *models.Event) int {
	return b.Timestamp.Compare(a.Timestamp)
}

func oldestFirst(a, b *models.Event) int {
	return a.Timestamp.Compare(b.Timestamp)
}
