package bootstrap

import (
	alertv1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
	"github.com/serkee5559/coin-portal/internal/infrastructure/memstore"
	eventInfra "github.com/serkee5559/coin-portal/internal/infrastructure/postgres/alertevent"
	ruleInfra "github.com/serkee5559/coin-portal/internal/infrastructure/postgres/alertrule"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

// Repository is the repository set for the pipeline.
type Repository struct {
	RuleRepository  alertv1.RuleRepository
	EventRepository alertv1.EventRepository
}

// registerRepository registers the repositories. Without a database client
// both fall back to in-memory stores so alerts keep working for the life of
// the process.
func (b *Bootstrap) registerRepository() {
	if b.Postgres == nil {
		b.Logger.Warn("no database configured, using in-memory alert stores", logger.Field{
			Key:   "action",
			Value: "registerRepository",
		})
		b.Repository.RuleRepository = memstore.NewRuleRepository()
		b.Repository.EventRepository = memstore.NewEventRepository(0)
		return
	}

	b.Repository.RuleRepository = ruleInfra.NewRepository(b.Postgres, b.Logger)
	b.Repository.EventRepository = eventInfra.NewRepository(b.Postgres, b.Logger)
}
