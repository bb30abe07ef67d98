package v1

import (
	"context"
)

// RuleRepository is the durable store for alert rules.
//
//go:generate mockgen -source=repository.go -destination=mock/repository_mock.go -package=mock
type RuleRepository interface {
	Store(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context) ([]*Rule, error)
}

// EventRepository is the durable, append-only alert history.
type EventRepository interface {
	Store(ctx context.Context, event *Event) error
	List(ctx context.Context, limit int) ([]*Event, error)
}
