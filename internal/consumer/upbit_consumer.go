package consumer

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/serkee5559/coin-portal/internal/domain/market"
	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/internal/metrics"
	"github.com/serkee5559/coin-portal/pkg/config"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

// upbitTicker is the SIMPLE-format ticker frame from the Upbit websocket.
type upbitTicker struct {
	Type              string  `json:"type"`
	Code              string  `json:"code"`
	TradePrice        float64 `json:"trade_price"`
	TradeVolume       float64 `json:"trade_volume"`
	AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	Change            string  `json:"change"`
	SignedChangePrice float64 `json:"signed_change_price"`
	SignedChangeRate  float64 `json:"signed_change_rate"`
	TradeTimestamp    int64   `json:"trade_timestamp"`
	Timestamp         int64   `json:"timestamp"`
}

// UpbitConsumer maintains a websocket subscription to the Upbit ticker
// stream and applies each tick to the state store on a single goroutine,
// preserving per-instrument order.
type UpbitConsumer struct {
	cfg    config.FeedConfig
	logger logger.Interface
	store  market.StateStore
}

// NewUpbitConsumer creates a new UpbitConsumer.
func NewUpbitConsumer(cfg config.FeedConfig, logger logger.Interface, store market.StateStore) *UpbitConsumer {
	return &UpbitConsumer{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Start runs the connect/consume/reconnect loop until the context ends.
// Backoff between attempts grows toward ReconnectMax and resets after a
// session that stayed up past one backoff period.
func (c *UpbitConsumer) Start(ctx context.Context) {
	c.logger.InfoContext(ctx, "starting upbit consumer", logger.Field{
		Key:   "action",
		Value: "upbit_consumer_start",
	}, logger.Field{
		Key:   "symbols",
		Value: c.cfg.Symbols,
	})

	backoff := c.cfg.ReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		err := c.consume(ctx)
		c.store.SetConnected(false)
		if ctx.Err() != nil {
			return
		}

		if time.Since(started) > backoff {
			backoff = c.cfg.ReconnectMin
		}
		c.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{
			Key:   "action",
			Value: "upbit_reconnect",
		}, logger.Field{
			Key:   "backoff",
			Value: backoff.String(),
		})
		metrics.FeedReconnectsTotal.Inc()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = time.Duration(math.Min(float64(c.cfg.ReconnectMax), float64(backoff)*2))
	}
}

// Stop is a no-op: the consumer owns no resources beyond its live
// connection, which Start tears down when the context ends.
func (c *UpbitConsumer) Stop() error {
	return nil
}

func (c *UpbitConsumer) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeExpiry}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := c.subscribe(conn); err != nil {
		return err
	}

	c.store.SetConnected(true)
	c.logger.InfoContext(ctx, "upbit feed connected", logger.Field{
		Key:   "action",
		Value: "upbit_connected",
	})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.SilenceTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.SilenceTimeout))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.SilenceTimeout))

		tick, ok := c.decode(message)
		if !ok {
			continue
		}
		if _, err := c.store.ApplyTick(ctx, tick); err != nil {
			// Stale and invalid ticks are counted by the store; nothing
			// here can fix them.
			c.logger.Debug("tick rejected", logger.Field{
				Key:   "action",
				Value: "apply_tick",
			}, logger.Field{
				Key:   "symbol",
				Value: tick.Symbol,
			})
		}
	}
}

// subscribe writes the ticket/type subscription frame for the configured
// symbols.
func (c *UpbitConsumer) subscribe(conn *websocket.Conn) error {
	frame := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{"type": "ticker", "codes": c.cfg.Symbols},
		map[string]string{"format": "DEFAULT"},
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// decode maps one raw frame to a normalized tick. Non-ticker and malformed
// frames are dropped and counted.
func (c *UpbitConsumer) decode(message []byte) (v1.Tick, bool) {
	var raw upbitTicker
	if err := json.Unmarshal(message, &raw); err != nil {
		metrics.TicksDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		c.logger.Warn("malformed feed frame", logger.Field{
			Key:   "action",
			Value: "decode_tick",
		})
		return v1.Tick{}, false
	}
	if raw.Code == "" || (raw.Type != "" && raw.Type != "ticker") {
		return v1.Tick{}, false
	}
	if raw.TradePrice <= 0 {
		metrics.TicksDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		return v1.Tick{}, false
	}

	ts := raw.TradeTimestamp
	if ts == 0 {
		ts = raw.Timestamp
	}

	return v1.Tick{
		Symbol:      raw.Code,
		Price:       raw.TradePrice,
		Volume:      raw.AccTradeVolume24h,
		TradeVolume: raw.TradeVolume,
		High:        raw.HighPrice,
		Low:         raw.LowPrice,
		Change:      raw.Change,
		ChangePrice: raw.SignedChangePrice,
		ChangeRate:  raw.SignedChangeRate * 100,
		Timestamp:   time.UnixMilli(ts).UTC(),
	}, true
}
