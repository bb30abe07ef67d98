package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serkee5559/coin-portal/internal/domain/market"
	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/internal/metrics"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

// Store is the in-memory table of latest known state per instrument.
// One writer per instrument (the feed adapter), many readers. Each entry
// carries its own lock so mutation is atomic per instrument and readers
// never observe a torn price/high/low triple.
type Store struct {
	logger      logger.Interface
	rolloverLoc *time.Location

	mu      sync.RWMutex
	entries map[string]*entry

	obsMu     sync.RWMutex
	observers []market.Observer

	connected atomic.Bool
}

type entry struct {
	mu         sync.Mutex
	instrument v1.Instrument
	lastEvent  time.Time
	dayKey     int
}

var _ market.StateStore = (*Store)(nil)

// NewStore creates the instrument state store. rolloverLoc defines the
// wall-clock day boundary used to reset 24h high/low.
func NewStore(log logger.Interface, rolloverLoc *time.Location) *Store {
	if rolloverLoc == nil {
		rolloverLoc = time.UTC
	}
	return &Store{
		logger:      log,
		rolloverLoc: rolloverLoc,
		entries:     make(map[string]*entry),
	}
}

// AddObserver registers a state-change callback. Observers are invoked under
// the instrument's lock in apply order; they must not call back into the store.
func (s *Store) AddObserver(observer market.Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, observer)
	s.obsMu.Unlock()
}

// ApplyTick folds one normalized tick into the table.
func (s *Store) ApplyTick(ctx context.Context, tick v1.Tick) (v1.Instrument, error) {
	if tick.Symbol == "" || tick.Price <= 0 || tick.Volume < 0 {
		metrics.TicksDroppedTotal.WithLabelValues(metrics.ReasonInvalid).Inc()
		return v1.Instrument{}, errors.NewErrorDetails("tick violates basic invariants", string(errors.ErrInvalidTick), "tick")
	}

	e := s.getOrCreate(tick.Symbol)

	e.mu.Lock()

	// Idempotency: re-applying an old or duplicate tick never corrupts state.
	if !e.lastEvent.IsZero() && !tick.Timestamp.After(e.lastEvent) {
		e.mu.Unlock()
		metrics.TicksDroppedTotal.WithLabelValues(metrics.ReasonStale).Inc()
		return v1.Instrument{}, errors.NewErrorDetails("tick event time is not newer than last applied", string(errors.ErrStaleTick), "timestamp")
	}

	day := dayKey(tick.Timestamp.In(s.rolloverLoc))
	if e.dayKey != 0 && day != e.dayKey {
		// Daily rollover: 24h aggregates restart from this tick.
		e.instrument.High = 0
		e.instrument.Low = 0
		e.instrument.Volume = 0
	}
	e.dayKey = day

	prev := e.instrument.Price
	inst := &e.instrument
	inst.Symbol = tick.Symbol
	inst.Price = tick.Price
	inst.UpdatedAt = tick.Timestamp

	inst.High = maxNonZero(inst.High, tick.High, tick.Price)
	inst.Low = minNonZero(inst.Low, tick.Low, tick.Price)

	if tick.Volume > 0 {
		inst.Volume = tick.Volume
	}

	if tick.Change != "" {
		inst.Change = tick.Change
		inst.ChangePrice = tick.ChangePrice
		inst.ChangeRate = tick.ChangeRate
	} else if prev > 0 {
		inst.ChangePrice = tick.Price - prev
		inst.ChangeRate = (tick.Price - prev) / prev * 100
		switch {
		case tick.Price > prev:
			inst.Change = "RISE"
		case tick.Price < prev:
			inst.Change = "FALL"
		default:
			inst.Change = "EVEN"
		}
	}

	e.lastEvent = tick.Timestamp
	snapshot := e.instrument

	s.notify(snapshot, tick)
	e.mu.Unlock()

	metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
	return snapshot, nil
}

// notify runs under the entry lock so per-instrument order is preserved
// end-to-end.
func (s *Store) notify(inst v1.Instrument, tick v1.Tick) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, observer := range observers {
		observer(inst, tick)
	}
}

// GetAll returns a consistent snapshot of every instrument, sorted by symbol.
func (s *Store) GetAll() []v1.Instrument {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	instruments := make([]v1.Instrument, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		instruments = append(instruments, e.instrument)
		e.mu.Unlock()
	}
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Symbol < instruments[j].Symbol
	})
	return instruments
}

// GetOne returns the latest state for one symbol.
func (s *Store) GetOne(symbol string) (v1.Instrument, error) {
	s.mu.RLock()
	e := s.entries[symbol]
	s.mu.RUnlock()
	if e == nil {
		return v1.Instrument{}, errors.NewErrorDetails("instrument has never been observed", string(errors.ErrUnknownInstrument), "symbol")
	}
	e.mu.Lock()
	inst := e.instrument
	e.mu.Unlock()
	return inst, nil
}

// Snapshot returns a copy of the whole table keyed by symbol.
func (s *Store) Snapshot() map[string]v1.Instrument {
	instruments := s.GetAll()
	snapshot := make(map[string]v1.Instrument, len(instruments))
	for _, inst := range instruments {
		snapshot[inst.Symbol] = inst
	}
	return snapshot
}

// Restore seeds the table from a previously captured snapshot without
// overwriting anything the live feed has already written.
func (s *Store) Restore(snapshot map[string]v1.Instrument) {
	for symbol, inst := range snapshot {
		if symbol == "" {
			continue
		}
		e := s.getOrCreate(symbol)
		e.mu.Lock()
		if e.lastEvent.IsZero() {
			e.instrument = inst
			e.lastEvent = inst.UpdatedAt
			e.dayKey = dayKey(inst.UpdatedAt.In(s.rolloverLoc))
		}
		e.mu.Unlock()
	}
}

// Connected reports whether the upstream feed is currently attached.
func (s *Store) Connected() bool {
	return s.connected.Load()
}

// SetConnected flips the pipeline-wide stale-data flag.
func (s *Store) SetConnected(connected bool) {
	s.connected.Store(connected)
}

func (s *Store) getOrCreate(symbol string) *entry {
	s.mu.RLock()
	e := s.entries[symbol]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	e = s.entries[symbol]
	if e == nil {
		e = &entry{}
		s.entries[symbol] = e
	}
	s.mu.Unlock()
	return e
}

func dayKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func maxNonZero(values ...float64) float64 {
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}

func minNonZero(values ...float64) float64 {
	min := 0.0
	for _, v := range values {
		if v <= 0 {
			continue
		}
		if min == 0 || v < min {
			min = v
		}
	}
	return min
}
