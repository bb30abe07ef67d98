package bootstrap

import (
	marketv1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	alertUc "github.com/serkee5559/coin-portal/internal/usecase/alert"
	"github.com/serkee5559/coin-portal/internal/usecase/broadcast"
	"github.com/serkee5559/coin-portal/internal/usecase/indicator"
	"github.com/serkee5559/coin-portal/internal/usecase/store"
)

// Usecase is the usecase set for the pipeline.
type Usecase struct {
	Store     *store.Store
	Indicator *indicator.Engine
	Broadcast *broadcast.Broadcaster
	Alert     *alertUc.Usecase
}

// registerUsecase builds the engines and wires the observer chain: every
// applied tick reaches the indicator engine, the alert evaluator and the
// broadcaster in that order, on the feed goroutine.
func (b *Bootstrap) registerUsecase() {
	b.Usecase.Store = store.NewStore(b.Logger, b.Config.RolloverLocation())
	b.Usecase.Indicator = indicator.NewEngine(b.Logger, b.Config.Pipeline.CandleWindow)
	b.Usecase.Broadcast = broadcast.NewBroadcaster(
		b.Usecase.Store,
		b.Logger,
		b.Config.Pipeline.FlushInterval,
		b.Config.Pipeline.QueueSoftLimit,
		b.Config.Pipeline.QueueHardLimit,
	)
	b.Usecase.Alert = alertUc.NewUsecase(
		b.Repository.RuleRepository,
		b.Repository.EventRepository,
		b.Usecase.Broadcast,
		b.Logger,
		b.Config.Alert.Cooldown,
	)

	b.Usecase.Store.AddObserver(b.Usecase.Indicator.OnTick)
	b.Usecase.Store.AddObserver(b.Usecase.Alert.OnTick)
	b.Usecase.Store.AddObserver(b.Usecase.Broadcast.Publish)

	signalInterval := b.Config.Alert.SignalInterval
	b.Usecase.Indicator.AddCloseObserver(func(candle marketv1.Candle, snapshot marketv1.IndicatorSnapshot) {
		if candle.Interval == signalInterval {
			b.Usecase.Alert.OnCandleClose(candle, snapshot)
		}
	})
}
