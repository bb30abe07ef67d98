package alertrule

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

// NewRepository creates a new alert rule repository.
func NewRepository(db postgres.PostgresClient, logger logger.Interface) v1.RuleRepository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

// Store inserts or replaces a rule.
func (r *repository) Store(ctx context.Context, rule *v1.Rule) error {
	query := `INSERT INTO alert_rules (id, symbol, op, threshold, is_active, one_shot, channel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			op = EXCLUDED.op,
			threshold = EXCLUDED.threshold,
			is_active = EXCLUDED.is_active,
			one_shot = EXCLUDED.one_shot,
			channel = EXCLUDED.channel`

	err := r.db.Exec(ctx, query,
		rule.ID,
		rule.Symbol,
		string(rule.Op),
		rule.Threshold,
		rule.Active,
		rule.OneShot,
		rule.Channel,
		rule.CreatedAt,
	)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

// Delete removes a rule.
func (r *repository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM alert_rules WHERE id = $1`

	if err := r.db.Exec(ctx, query, id); err != nil {
		return errors.TracerFromError(err)
	}
	return nil
}

// SetActive updates a rule's active flag.
func (r *repository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE alert_rules SET is_active = $1 WHERE id = $2`

	if err := r.db.Exec(ctx, query, active, id); err != nil {
		return errors.TracerFromError(err)
	}
	return nil
}

// List returns every stored rule, oldest first.
func (r *repository) List(ctx context.Context) ([]*v1.Rule, error) {
	query := `SELECT id, symbol, op, threshold, is_active, one_shot, channel, created_at
		FROM alert_rules
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	var rules []*v1.Rule
	for rows.Next() {
		var rule v1.Rule
		var op string
		if err := rows.Scan(
			&rule.ID,
			&rule.Symbol,
			&op,
			&rule.Threshold,
			&rule.Active,
			&rule.OneShot,
			&rule.Channel,
			&rule.CreatedAt,
		); err != nil {
			return nil, errors.TracerFromError(err)
		}
		rule.Op = v1.Operator(op)
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return rules, nil
}
