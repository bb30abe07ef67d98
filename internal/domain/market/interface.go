package market

import (
	"context"

	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
)

// Observer receives each instrument state change in apply order,
// together with the tick that caused it.
type Observer func(instrument v1.Instrument, tick v1.Tick)

// StateStore is the single shared mutable structure on the hot path:
// the table of latest known state per instrument.
type StateStore interface {
	// ApplyTick folds one normalized tick into the instrument table and
	// returns a snapshot copy of the updated instrument. Stale ticks
	// (event time not newer than the last applied) are rejected.
	ApplyTick(ctx context.Context, tick v1.Tick) (v1.Instrument, error)
	GetAll() []v1.Instrument
	GetOne(symbol string) (v1.Instrument, error)
	// Snapshot returns a consistent copy of the whole table keyed by symbol.
	Snapshot() map[string]v1.Instrument
	// Restore seeds the table from a previously captured snapshot.
	// Existing entries are never overwritten.
	Restore(snapshot map[string]v1.Instrument)

	// AddObserver registers a state-change callback. Observers are invoked
	// synchronously on the feed goroutine, preserving per-instrument order.
	AddObserver(observer Observer)

	// Connected reports whether the upstream feed is currently attached.
	Connected() bool
	SetConnected(connected bool)
}

// IndicatorReader exposes computed indicator and candle series.
type IndicatorReader interface {
	Snapshot(symbol, intervalName string) (v1.IndicatorSnapshot, error)
	Candles(symbol, intervalName string, count int) ([]v1.Candle, error)
}
