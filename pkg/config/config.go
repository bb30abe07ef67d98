package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/serkee5559/coin-portal/pkg/postgres"
	"github.com/serkee5559/coin-portal/pkg/redis"
)

// Config represents the application configuration.
type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Feed      FeedConfig      `envPrefix:"FEED_"`
	TickKafka TickKafkaConfig `envPrefix:"TICK_KAFKA_"`
	Pipeline  PipelineConfig  `envPrefix:"PIPELINE_"`
	Alert     AlertConfig     `envPrefix:"ALERT_"`
	Postgres  postgres.Config `envPrefix:"POSTGRES_"`
	Redis     redis.Config    `envPrefix:"REDIS_"`
	Snapshot  SnapshotConfig  `envPrefix:"SNAPSHOT_"`
}

// AppConfig represents the application configuration.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"coin-portal"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// FeedConfig selects and tunes the upstream market data source.
type FeedConfig struct {
	// Source is the feed adapter to run: "upbit" or "kafka".
	Source          string        `env:"SOURCE" envDefault:"upbit"`
	URL             string        `env:"URL" envDefault:"wss://api.upbit.com/websocket/v1"`
	Symbols         []string      `env:"SYMBOLS" envSeparator:"," envDefault:"KRW-BTC,KRW-ETH,KRW-XRP,KRW-SOL,KRW-DOGE"`
	SilenceTimeout  time.Duration `env:"SILENCE_TIMEOUT" envDefault:"30s"`
	ReconnectMin    time.Duration `env:"RECONNECT_MIN" envDefault:"1s"`
	ReconnectMax    time.Duration `env:"RECONNECT_MAX" envDefault:"30s"`
	PingInterval    time.Duration `env:"PING_INTERVAL" envDefault:"10s"`
	HandshakeExpiry time.Duration `env:"HANDSHAKE_EXPIRY" envDefault:"10s"`
}

// TickKafkaConfig represents the Kafka tick feed configuration.
type TickKafkaConfig struct {
	Brokers         []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic           string   `env:"TOPIC" envDefault:"ticks"`
	ConsumerGroup   string   `env:"CONSUMER_GROUP" envDefault:"coin-portal"`
	ConsumerTimeout int      `env:"CONSUMER_TIMEOUT" envDefault:"5"`
	MaxRetries      int      `env:"MAX_RETRIES" envDefault:"3"`
}

// PipelineConfig tunes the in-process fan-out path.
type PipelineConfig struct {
	FlushInterval    time.Duration `env:"FLUSH_INTERVAL" envDefault:"500ms"`
	RolloverTimezone string        `env:"ROLLOVER_TIMEZONE" envDefault:"UTC"`
	// CandleWindow is the number of closed candles retained per series.
	CandleWindow int `env:"CANDLE_WINDOW" envDefault:"20"`
	// QueueSoftLimit is the per-subscriber queue depth past which the oldest
	// delta is dropped; QueueHardLimit is the depth that evicts the subscriber.
	QueueSoftLimit int `env:"QUEUE_SOFT_LIMIT" envDefault:"64"`
	QueueHardLimit int `env:"QUEUE_HARD_LIMIT" envDefault:"256"`
}

// AlertConfig tunes alert evaluation.
type AlertConfig struct {
	Cooldown       time.Duration `env:"COOLDOWN" envDefault:"1m"`
	SignalInterval string        `env:"SIGNAL_INTERVAL" envDefault:"1m"`
}

// SnapshotConfig tunes the periodic state snapshot written to Redis.
type SnapshotConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"false"`
	Interval time.Duration `env:"INTERVAL" envDefault:"30s"`
	Key      string        `env:"KEY" envDefault:"market:snapshot"`
}

// Load loads the configuration from the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// RolloverLocation resolves the configured rollover timezone, falling back
// to UTC on an unknown name.
func (c *Config) RolloverLocation() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.RolloverTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
