package v1

import (
	"time"
)

// Tick represents a single normalized price/volume observation for one
// instrument at a point in time. Immutable once created.
type Tick struct {
	Symbol string  `json:"code"`
	Price  float64 `json:"price"`
	// Volume is the rolling 24h accumulated volume reported by the feed.
	Volume float64 `json:"volume"`
	// TradeVolume is the quantity of the single trade behind this tick,
	// when the feed reports one.
	TradeVolume float64   `json:"trade_volume,omitempty"`
	High        float64   `json:"high,omitempty"`
	Low         float64   `json:"low,omitempty"`
	Change      string    `json:"change,omitempty"` // RISE, EVEN or FALL
	ChangePrice float64   `json:"change_price,omitempty"`
	ChangeRate  float64   `json:"change_rate,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Instrument is the latest known state for one exchange-qualified symbol.
// Mutated exclusively by normalized ticks applied through the state store.
type Instrument struct {
	Symbol      string    `json:"code"`
	Price       float64   `json:"price"`
	Change      string    `json:"change"`
	ChangeRate  float64   `json:"change_rate"`
	ChangePrice float64   `json:"change_price"`
	Volume      float64   `json:"volume"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Candle represents OHLCV aggregate for one instrument over a fixed interval.
// Mutable (accumulating) while its interval is open, immutable once closed.
type Candle struct {
	Symbol     string    `json:"-"`
	Interval   string    `json:"-"`
	BucketTime time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"vol"`
	TradeCount int64     `json:"-"`
	Closed     bool      `json:"-"`
}

// ApplyPrice folds one traded price/volume pair into the open candle.
func (c *Candle) ApplyPrice(price, volume float64) {
	if c.TradeCount == 0 {
		c.Open = price
		c.High = price
		c.Low = price
	}
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += volume
	c.TradeCount++
}

// IndicatorSnapshot is a projection of the indicator state for one
// (symbol, interval) pair. Nil pointers mean "not yet available"
// (insufficient history).
type IndicatorSnapshot struct {
	Symbol         string   `json:"symbol"`
	Interval       string   `json:"interval"`
	MA7            *float64 `json:"ma7"`
	MA20           *float64 `json:"ma20"`
	RSI            *float64 `json:"rsi"`
	LastPrice      float64  `json:"last_price"`
	Recommendation string   `json:"recommendation"`
}
