package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"gatekeeper/internal/workflow/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// Error Contract:
// - FindByID returns sentinel.ErrNotFound when the workflow does not exist
// - Create returns sentinel.ErrConflict when the id is taken
// - Update returns sentinel.ErrNotFound for unknown ids and sentinel.ErrConflict
//   when the stored workflow is no longer pending
// - SaveDecision returns sentinel.ErrNotFound when the workflow does not exist

// InMemoryStore keeps workflows and decisions in maps. Values are cloned on the
// way in and out so callers never share state with the store.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[id.WorkflowID]*models.Workflow
	decisions map[id.WorkflowID]map[string]models.Decision
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[id.WorkflowID]*models.Workflow),
		decisions: make(map[id.WorkflowID]map[string]models.Decision),
	}
}

func (s *InMemoryStore) Create(_ context.Context, w *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[w.ID]; exists {
		return sentinel.ErrConflict
	}
	s.workflows[w.ID] = w.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, workflowID id.WorkflowID) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[workflowID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return w.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, w *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workflows[w.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Status != models.StatusPending {
		return sentinel.ErrConflict
	}
	s.workflows[w.ID] = w.Clone()
	return nil
}

func (s *InMemoryStore) SaveDecision(_ context.Context, d *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[d.WorkflowID]; !ok {
		return sentinel.ErrNotFound
	}
	byApprover, ok := s.decisions[d.WorkflowID]
	if !ok {
		byApprover = make(map[string]models.Decision)
		s.decisions[d.WorkflowID] = byApprover
	}
	stored := *d
	stored.Conditions = slices.Clone(d.Conditions)
	byApprover[d.ApproverID] = stored
	return nil
}

func (s *InMemoryStore) ListDecisions(_ context.Context, workflowID id.WorkflowID) ([]models.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byApprover := s.decisions[workflowID]
	out := make([]models.Decision, 0, len(byApprover))
	for _, d := range byApprover {
		d.Conditions = slices.Clone(d.Conditions)
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b models.Decision) int {
		return a.DecidedAt.Compare(b.DecidedAt)
	})
	return out, nil
}

func (s *InMemoryStore) ListByParticipant(_ context.Context, userID string, statuses []models.Status) ([]*models.Workflow, error) {
	return s.collect(func(w *models.Workflow) bool {
		if w.RequestedBy != userID && !w.IsRequiredApprover(userID) {
			return false
		}
		return len(statuses) == 0 || slices.Contains(statuses, w.Status)
	}, newestFirst, 0), nil
}

func (s *InMemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.Workflow, error) {
	return s.collect(func(w *models.Workflow) bool {
		return w.Status == models.StatusPending && w.IsExpired(now)
	}, earliestDeadline, limit), nil
}

func (s *InMemoryStore) ListReminderDue(_ context.Context, now, cutoff time.Time, limit int) ([]*models.Workflow, error) {
	return s.collect(func(w *models.Workflow) bool {
		return w.IsPending(now) && w.ReminderDue(cutoff)
	}, earliestDeadline, limit), nil
}

func (s *InMemoryStore) collect(match func(*models.Workflow) bool, order func(a, b *models.Workflow) int, limit int) []*models.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Workflow
	for _, w := range s.workflows {
		if match(w) {
			out = append(out, w.Clone())
		}
	}
	slices.SortFunc(out, order)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func newestFirst(a, b *models.Workflow) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

func earliestDeadline(a, b *models.Workflow) int {
	return a.ExpiresAt.Compare(b.ExpiresAt)
}
