package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serkee5559/coin-portal/pkg/config"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

func newTestUpbitConsumer(t *testing.T) *UpbitConsumer {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)
	return NewUpbitConsumer(config.FeedConfig{}, log, nil)
}

func TestUpbitConsumer_Decode(t *testing.T) {
	c := newTestUpbitConsumer(t)

	t.Run("ticker frame maps to a normalized tick", func(t *testing.T) {
		frame := `{
			"type": "ticker",
			"code": "KRW-BTC",
			"trade_price": 93000000,
			"trade_volume": 0.05,
			"acc_trade_volume_24h": 1234.5,
			"high_price": 94000000,
			"low_price": 91000000,
			"change": "RISE",
			"signed_change_price": 1500000,
			"signed_change_rate": 0.0164,
			"trade_timestamp": 1767250800123
		}`

		tick, ok := c.decode([]byte(frame))
		require.True(t, ok)
		assert.Equal(t, "KRW-BTC", tick.Symbol)
		assert.Equal(t, 93000000.0, tick.Price)
		assert.Equal(t, 0.05, tick.TradeVolume)
		assert.Equal(t, 1234.5, tick.Volume)
		assert.Equal(t, 94000000.0, tick.High)
		assert.Equal(t, 91000000.0, tick.Low)
		assert.Equal(t, "RISE", tick.Change)
		assert.Equal(t, 1500000.0, tick.ChangePrice)
		assert.InDelta(t, 1.64, tick.ChangeRate, 1e-9)
		assert.Equal(t, time.UnixMilli(1767250800123).UTC(), tick.Timestamp)
	})

	t.Run("falls back to frame timestamp", func(t *testing.T) {
		frame := `{"type":"ticker","code":"KRW-BTC","trade_price":100,"timestamp":1767250800000}`
		tick, ok := c.decode([]byte(frame))
		require.True(t, ok)
		assert.Equal(t, time.UnixMilli(1767250800000).UTC(), tick.Timestamp)
	})

	t.Run("malformed json is dropped", func(t *testing.T) {
		_, ok := c.decode([]byte(`{"type":"ticker",`))
		assert.False(t, ok)
	})

	t.Run("non-ticker frames are skipped", func(t *testing.T) {
		_, ok := c.decode([]byte(`{"type":"trade","code":"KRW-BTC","trade_price":100}`))
		assert.False(t, ok)

		_, ok = c.decode([]byte(`{"status":"UP"}`))
		assert.False(t, ok)
	})

	t.Run("zero price is dropped", func(t *testing.T) {
		_, ok := c.decode([]byte(`{"type":"ticker","code":"KRW-BTC","trade_price":0}`))
		assert.False(t, ok)
	})
}
