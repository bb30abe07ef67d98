package consumer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/serkee5559/coin-portal/internal/domain/market"
	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/internal/metrics"
	"github.com/serkee5559/coin-portal/pkg/config"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

// TickConsumer is the consumer for the normalized tick topic. It is the
// alternative feed source for environments without exchange connectivity.
type TickConsumer struct {
	kafkaReader *kafka.Reader
	logger      logger.Interface

	store   market.StateStore
	msgChan chan kafka.Message
}

// NewTickConsumer creates a new TickConsumer.
func NewTickConsumer(config config.TickKafkaConfig, logger logger.Interface, store market.StateStore) *TickConsumer {
	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return &TickConsumer{
		kafkaReader: kafkaReader,
		logger:      logger,
		store:       store,
		msgChan:     make(chan kafka.Message),
	}
}

// Start starts the TickConsumer.
func (c *TickConsumer) Start(ctx context.Context) {
	c.logger.InfoContext(ctx, "starting tick consumer", logger.Field{
		Key:   "action",
		Value: "tick_consumer_start",
	})

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "context done", logger.Field{
				Key:   "action",
				Value: "tick_consumer_stop",
			})
			return
		default:
			msg, err := c.kafkaReader.ReadMessage(ctx)
			if err != nil {
				c.store.SetConnected(false)
				c.logger.ErrorContext(ctx, err, logger.Field{
					Key:   "action",
					Value: "read_message",
				})
				continue
			}

			c.store.SetConnected(true)
			c.msgChan <- msg
		}
	}
}

// Stop stops the TickConsumer.
func (c *TickConsumer) Stop() error {
	c.logger.InfoContext(context.Background(), "stopping tick consumer", logger.Field{
		Key:   "action",
		Value: "tick_consumer_stop",
	})
	c.store.SetConnected(false)
	return c.kafkaReader.Close()
}

// Subscribe subscribes to the TickConsumer.
func (c *TickConsumer) Subscribe(ctx context.Context) {
	c.logger.InfoContext(ctx, "subscribing to tick consumer", logger.Field{
		Key:   "action",
		Value: "tick_consumer_subscribe",
	})

	for msg := range c.msgChan {
		var tick v1.Tick
		if err := json.Unmarshal(msg.Value, &tick); err != nil {
			metrics.TicksDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
			c.logger.ErrorContext(ctx, err, logger.Field{
				Key:   "action",
				Value: "unmarshal_tick",
			})
			continue
		}

		if _, err := c.store.ApplyTick(ctx, tick); err != nil {
			c.logger.DebugContext(ctx, "tick rejected", logger.Field{
				Key:   "action",
				Value: "apply_tick",
			}, logger.Field{
				Key:   "symbol",
				Value: tick.Symbol,
			})
		}

		if err := c.kafkaReader.CommitMessages(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, err, logger.Field{
				Key:   "action",
				Value: "commit_message",
			})
		}
	}
}
