package bootstrap

import (
	"github.com/serkee5559/coin-portal/internal/api"
	"github.com/serkee5559/coin-portal/internal/infrastructure/rediscache"
	"github.com/serkee5559/coin-portal/pkg/config"
	"github.com/serkee5559/coin-portal/pkg/logger"
	"github.com/serkee5559/coin-portal/pkg/postgres"
	"github.com/serkee5559/coin-portal/pkg/redis"
)

// Bootstrap wires the market data pipeline together.
type Bootstrap struct {
	Config     *config.Config
	Logger     logger.Interface
	Usecase    Usecase
	Repository Repository
	Handler    *api.Handler

	// Snapshot is nil when no Redis client is configured.
	Snapshot *rediscache.SnapshotCache

	Postgres postgres.PostgresClient
	Redis    redis.Client
}

// BootstrapConfig is the config for the bootstrap. Postgres and Redis are
// optional: absent clients degrade to in-memory repositories and no
// snapshot cache.
type BootstrapConfig struct {
	Config   *config.Config
	Logger   logger.Interface
	Postgres postgres.PostgresClient
	Redis    redis.Client
}

// Init initializes the bootstrap.
func (b *Bootstrap) Init(config BootstrapConfig) Bootstrap {
	b.Config = config.Config
	b.Logger = config.Logger
	b.Postgres = config.Postgres
	b.Redis = config.Redis

	b.registerRepository()
	b.registerUsecase()
	b.registerHandler()

	return *b
}

func (b *Bootstrap) registerHandler() {
	b.Handler = api.NewHandler(
		b.Usecase.Store,
		b.Usecase.Indicator,
		b.Usecase.Alert,
		b.Usecase.Broadcast,
		b.Logger,
	)

	if b.Redis != nil && b.Config.Snapshot.Enabled {
		b.Snapshot = rediscache.NewSnapshotCache(
			b.Redis,
			b.Usecase.Store,
			b.Logger,
			b.Config.Snapshot.Key,
			b.Config.Snapshot.Interval,
		)
	}
}
