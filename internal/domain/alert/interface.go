package alert

import (
	"context"

	v1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
)

// RuleInput is the user-facing payload for creating a rule.
type RuleInput struct {
	Symbol    string      `json:"symbol" binding:"required"`
	Op        v1.Operator `json:"op" binding:"required"`
	Threshold float64     `json:"threshold" binding:"required"`
	OneShot   bool        `json:"one_shot"`
	Channel   string      `json:"channel"`
}

// Usecase is the alert rule management and evaluation surface.
type Usecase interface {
	CreateRule(ctx context.Context, input RuleInput) (v1.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	ToggleRule(ctx context.Context, id string) (v1.Rule, error)
	ListRules(ctx context.Context) []v1.Rule
	ListHistory(ctx context.Context, limit int) ([]v1.Event, error)
}

// SignalPublisher delivers alert events to subscribers. Implemented by the
// broadcaster; alert evaluation publishes onto the same channel deltas use,
// so there is no separate notification bus.
type SignalPublisher interface {
	PublishSignal(event v1.Event)
}
