package memstore

import (
	"context"
	"sort"
	"sync"

	v1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
)

// RuleRepository is an in-memory v1.RuleRepository. It backs the alert
// usecase when no database is configured or reachable, so the service
// degrades to session-scoped durability instead of failing to start.
type RuleRepository struct {
	mu    sync.RWMutex
	rules map[string]v1.Rule
}

// NewRuleRepository creates an empty in-memory rule repository.
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{rules: make(map[string]v1.Rule)}
}

// Store inserts or replaces a rule.
func (r *RuleRepository) Store(_ context.Context, rule *v1.Rule) error {
	r.mu.Lock()
	r.rules[rule.ID] = *rule
	r.mu.Unlock()
	return nil
}

// Delete removes a rule. Deleting an absent rule is a no-op.
func (r *RuleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.rules, id)
	r.mu.Unlock()
	return nil
}

// SetActive updates a rule's active flag.
func (r *RuleRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	if rule, ok := r.rules[id]; ok {
		rule.Active = active
		r.rules[id] = rule
	}
	r.mu.Unlock()
	return nil
}

// List returns every stored rule, oldest first.
func (r *RuleRepository) List(_ context.Context) ([]*v1.Rule, error) {
	r.mu.RLock()
	rules := make([]*v1.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		copied := rule
		rules = append(rules, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// EventRepository is an in-memory, bounded v1.EventRepository.
type EventRepository struct {
	mu     sync.RWMutex
	events []v1.Event
	limit  int
}

// NewEventRepository creates an in-memory event repository retaining at most
// limit events.
func NewEventRepository(limit int) *EventRepository {
	if limit <= 0 {
		limit = 1000
	}
	return &EventRepository{limit: limit}
}

// Store appends one event, evicting the oldest past the retention limit.
func (r *EventRepository) Store(_ context.Context, event *v1.Event) error {
	r.mu.Lock()
	r.events = append(r.events, *event)
	if len(r.events) > r.limit {
		r.events = r.events[1:]
	}
	r.mu.Unlock()
	return nil
}

// List returns the most recent events, newest first.
func (r *EventRepository) List(_ context.Context, limit int) ([]*v1.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.events)
	if limit > 0 && limit < n {
		n = limit
	}
	events := make([]*v1.Event, 0, n)
	for i := len(r.events) - 1; i >= 0 && len(events) < n; i-- {
		copied := r.events[i]
		events = append(events, &copied)
	}
	return events, nil
}
