package indicator

import (
	"sync"

	"github.com/serkee5559/coin-portal/internal/domain/market"
	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/interval"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

const (
	rsiPeriod = 14
	maShort   = 7
	maLong    = 20
)

// Recommendation labels surfaced on the indicator snapshot.
const (
	RecommendationStrongBuy  = "Strong Buy"
	RecommendationStrongSell = "Strong Sell"
	RecommendationHold       = "Hold"
)

// CloseObserver receives every closed candle together with the indicator
// snapshot computed right after the close.
type CloseObserver func(candle v1.Candle, snapshot v1.IndicatorSnapshot)

// Engine maintains candle series and derived indicators per
// (symbol, interval) pair. It consumes instrument updates as a state store
// observer and serves reads from API goroutines.
type Engine struct {
	logger     logger.Interface
	windowSize int

	mu     sync.RWMutex
	series map[seriesKey]*series

	obsMu     sync.RWMutex
	closeObs  []CloseObserver
	intervals []interval.Interval
}

type seriesKey struct {
	symbol   string
	interval string
}

// series holds one (symbol, interval) candle window plus Wilder RSI state
// and the moving-average running sums. All derived state is incremental so
// evicting old candles never loses smoothing history and snapshots stay O(1).
type series struct {
	iv     interval.Interval
	open   *v1.Candle
	closed []v1.Candle

	sumShort float64
	sumLong  float64

	prevClose    float64
	hasPrevClose bool
	rsiCount     int
	gainSum      float64
	lossSum      float64
	avgGain      float64
	avgLoss      float64
}

var _ market.IndicatorReader = (*Engine)(nil)

// NewEngine creates an indicator engine covering every supported interval.
// windowSize is the number of closed candles retained per series; values
// below the longest moving average period are raised to it.
func NewEngine(log logger.Interface, windowSize int) *Engine {
	if windowSize < maLong {
		windowSize = maLong
	}
	return &Engine{
		logger:     log,
		windowSize: windowSize,
		series:     make(map[seriesKey]*series),
		intervals:  interval.AllIntervals,
	}
}

// AddCloseObserver registers a candle-close callback. Observers run on the
// feed goroutine after the close has been folded into the series; they may
// read back from the engine.
func (e *Engine) AddCloseObserver(observer CloseObserver) {
	e.obsMu.Lock()
	e.closeObs = append(e.closeObs, observer)
	e.obsMu.Unlock()
}

// OnTick folds one applied tick into every interval series for its symbol.
// Wired as a state store observer, so ticks arrive in per-symbol apply order.
func (e *Engine) OnTick(inst v1.Instrument, tick v1.Tick) {
	type closeEvent struct {
		candle   v1.Candle
		snapshot v1.IndicatorSnapshot
	}
	var closes []closeEvent

	e.mu.Lock()
	for _, iv := range e.intervals {
		s := e.getOrCreateLocked(tick.Symbol, iv)
		bucket := iv.CalculateBucketTime(tick.Timestamp)

		if s.open != nil && !bucket.Equal(s.open.BucketTime) {
			candle := e.closeCandleLocked(s)
			closes = append(closes, closeEvent{
				candle:   candle,
				snapshot: e.snapshotLocked(s, tick.Symbol, iv.Name),
			})
		}
		if s.open == nil {
			s.open = &v1.Candle{
				Symbol:     tick.Symbol,
				Interval:   iv.Name,
				BucketTime: bucket,
			}
		}
		s.open.ApplyPrice(tick.Price, tickVolume(tick))
	}
	e.mu.Unlock()

	if len(closes) == 0 {
		return
	}
	e.obsMu.RLock()
	observers := e.closeObs
	e.obsMu.RUnlock()
	for _, ev := range closes {
		for _, observer := range observers {
			observer(ev.candle, ev.snapshot)
		}
	}
}

// Snapshot returns the current indicator projection for one series.
func (e *Engine) Snapshot(symbol, intervalName string) (v1.IndicatorSnapshot, error) {
	if !interval.IsValidInterval(intervalName) {
		return v1.IndicatorSnapshot{}, errors.NewErrorDetails("unsupported candle interval", string(errors.ErrUnknownInterval), "interval")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.series[seriesKey{symbol: symbol, interval: intervalName}]
	if !ok {
		return v1.IndicatorSnapshot{}, errors.NewErrorDetails("no candle history for symbol", string(errors.ErrUnknownInstrument), "symbol")
	}
	return e.snapshotLocked(s, symbol, intervalName), nil
}

// Candles returns up to count candles (closed first, then the open one)
// in ascending bucket-time order.
func (e *Engine) Candles(symbol, intervalName string, count int) ([]v1.Candle, error) {
	if !interval.IsValidInterval(intervalName) {
		return nil, errors.NewErrorDetails("unsupported candle interval", string(errors.ErrUnknownInterval), "interval")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.series[seriesKey{symbol: symbol, interval: intervalName}]
	if !ok {
		return nil, errors.NewErrorDetails("no candle history for symbol", string(errors.ErrUnknownInstrument), "symbol")
	}

	candles := make([]v1.Candle, 0, len(s.closed)+1)
	candles = append(candles, s.closed...)
	if s.open != nil {
		candles = append(candles, *s.open)
	}
	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func (e *Engine) getOrCreateLocked(symbol string, iv interval.Interval) *series {
	key := seriesKey{symbol: symbol, interval: iv.Name}
	s, ok := e.series[key]
	if !ok {
		s = &series{iv: iv}
		e.series[key] = s
	}
	return s
}

func (e *Engine) closeCandleLocked(s *series) v1.Candle {
	candle := *s.open
	candle.Closed = true
	s.open = nil

	s.closed = append(s.closed, candle)
	s.sumShort += candle.Close
	if n := len(s.closed); n > maShort {
		s.sumShort -= s.closed[n-maShort-1].Close
	}
	s.sumLong += candle.Close
	if n := len(s.closed); n > maLong {
		s.sumLong -= s.closed[n-maLong-1].Close
	}
	if len(s.closed) > e.windowSize {
		s.closed = s.closed[1:]
	}

	if s.hasPrevClose {
		delta := candle.Close - s.prevClose
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		s.rsiCount++
		switch {
		case s.rsiCount < rsiPeriod:
			s.gainSum += gain
			s.lossSum += loss
		case s.rsiCount == rsiPeriod:
			s.gainSum += gain
			s.lossSum += loss
			s.avgGain = s.gainSum / rsiPeriod
			s.avgLoss = s.lossSum / rsiPeriod
		default:
			// Wilder smoothing after the seed average.
			s.avgGain = (s.avgGain*(rsiPeriod-1) + gain) / rsiPeriod
			s.avgLoss = (s.avgLoss*(rsiPeriod-1) + loss) / rsiPeriod
		}
	}
	s.prevClose = candle.Close
	s.hasPrevClose = true

	return candle
}

func (e *Engine) snapshotLocked(s *series, symbol, intervalName string) v1.IndicatorSnapshot {
	snapshot := v1.IndicatorSnapshot{
		Symbol:         symbol,
		Interval:       intervalName,
		Recommendation: RecommendationHold,
	}

	if len(s.closed) >= maShort {
		snapshot.MA7 = ptr(s.sumShort / maShort)
	}
	if len(s.closed) >= maLong {
		snapshot.MA20 = ptr(s.sumLong / maLong)
	}
	if s.rsiCount >= rsiPeriod {
		snapshot.RSI = ptr(wilderRSI(s.avgGain, s.avgLoss))
	}

	switch {
	case s.open != nil:
		snapshot.LastPrice = s.open.Close
	case len(s.closed) > 0:
		snapshot.LastPrice = s.closed[len(s.closed)-1].Close
	}

	if snapshot.RSI != nil {
		switch {
		case *snapshot.RSI < 30:
			snapshot.Recommendation = RecommendationStrongBuy
		case *snapshot.RSI > 70:
			snapshot.Recommendation = RecommendationStrongSell
		}
	}
	return snapshot
}

// wilderRSI maps the smoothed averages to the 0..100 scale. A flat window
// reads as neutral, a loss-free window as fully overbought.
func wilderRSI(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// tickVolume picks the per-trade quantity for candle accumulation. Ticker
// feeds report a rolling 24h total in Volume which must never be summed.
func tickVolume(tick v1.Tick) float64 {
	if tick.TradeVolume > 0 {
		return tick.TradeVolume
	}
	return 0
}

func ptr(v float64) *float64 {
	return &v
}
