package alerts

import (
	"context"
	"sync"

	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// MemoryStore is the in-memory reference Store implementation. order
// records insertion order so List (and therefore Evaluate's dispatch
// order) is insertion-ordered rather than map-random.
type MemoryStore struct {
	mu      sync.RWMutex
	rules   map[string]*models.AlertRule
	order   []string
	history []*models.TriggeredAlert
}

// NewMemoryStore returns an empty in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]*models.AlertRule)}
}

func (s *MemoryStore) Add(_ context.Context, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return engineerr.New(engineerr.Conflict, "alert rule already exists")
	}
	clone := *rule
	s.rules[rule.ID] = &clone
	s.order = append(s.order, rule.ID)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; !exists {
		return engineerr.New(engineerr.NotFound, "alert rule not found")
	}
	clone := *rule
	s.rules[rule.ID] = &clone
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[id]; !exists {
		return engineerr.New(engineerr.NotFound, "alert rule not found")
	}
	delete(s.rules, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Get(id string) (*models.AlertRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, false
	}
	clone := *r
	return &clone, true
}

func (s *MemoryStore) List(filter models.AlertRuleFilter) []*models.AlertRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AlertRule
	for _, id := range s.order {
		r, ok := s.rules[id]
		if !ok || !filter.Matches(r) {
			continue
		}
		clone := *r
		out = append(out, &clone)
	}
	return out
}

func (s *MemoryStore) RecordTrigger(_ context.Context, t *models.TriggeredAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.history = append(s.history, &clone)
	if r, ok := s.rules[t.RuleID]; ok {
		firedAt := t.SampleAt
		r.LastTriggeredAt = &firedAt
	}
	return nil
}

func (s *MemoryStore) History(filter models.TriggeredAlertFilter, limit int) []*models.TriggeredAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TriggeredAlert
	for i := len(s.history) - 1; i >= 0; i-- {
		t := s.history[i]
		if !filter.Matches(t) {
			continue
		}
		clone := *t
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
