package alertevent

import (
	"context"

	v1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
	"github.com/serkee5559/coin-portal/pkg/postgres"
)

type repository struct {
	db     postgres.PostgresClient
	logger logger.Interface
}

// NewRepository creates a new alert event repository.
func NewRepository(db postgres.PostgresClient, logger logger.Interface) v1.EventRepository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

// Store appends one event. Conflicting ids are ignored so the persistence
// retry queue can safely re-run a write.
func (r *repository) Store(ctx context.Context, event *v1.Event) error {
	query := `INSERT INTO alert_events (id, rule_id, symbol, action, threshold, trigger_price, rsi, message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	err := r.db.Exec(ctx, query,
		event.ID,
		event.RuleID,
		event.Symbol,
		event.Action,
		event.Threshold,
		event.TriggerPrice,
		event.RSI,
		event.Message,
		event.Timestamp,
	)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

// List returns the most recent events, newest first.
func (r *repository) List(ctx context.Context, limit int) ([]*v1.Event, error) {
	query := `SELECT id, rule_id, symbol, action, threshold, trigger_price, rsi, message, timestamp
		FROM alert_events
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	var events []*v1.Event
	for rows.Next() {
		var event v1.Event
		if err := rows.Scan(
			&event.ID,
			&event.RuleID,
			&event.Symbol,
			&event.Action,
			&event.Threshold,
			&event.TriggerPrice,
			&event.RSI,
			&event.Message,
			&event.Timestamp,
		); err != nil {
			return nil, errors.TracerFromError(err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return events, nil
}
