package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/serkee5559/coin-portal/internal/domain/alert"
	v1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
	marketv1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/internal/metrics"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

const (
	defaultCooldown    = time.Minute
	defaultHistorySize = 100
	persistQueueSize   = 256
	persistAttempts    = 3
	persistRetryDelay  = 2 * time.Second

	rsiOversold   = 30
	rsiOverbought = 70
)

// Usecase owns alert rules, evaluates them against applied ticks, and turns
// indicator extremes into trading signals. The in-memory rule table is the
// authority; the repositories are durable copies written behind a retry
// queue so a database outage never blocks the hot path.
type Usecase struct {
	logger    logger.Interface
	ruleRepo  v1.RuleRepository
	eventRepo v1.EventRepository
	publisher domain.SignalPublisher
	cooldown  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	rules   map[string]*ruleState
	zones   map[string]string
	history []v1.Event

	persistCh chan persistOp
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// ruleState tracks the last observed price per rule so triggering is a
// strict crossing, not a level check.
type ruleState struct {
	rule      v1.Rule
	lastPrice float64
	hasPrice  bool
	lastFired time.Time
}

type persistOp struct {
	name string
	fn   func(ctx context.Context) error
}

var _ domain.Usecase = (*Usecase)(nil)

// NewUsecase creates the alert usecase. cooldown <= 0 falls back to the
// one-minute default.
func NewUsecase(
	ruleRepo v1.RuleRepository,
	eventRepo v1.EventRepository,
	publisher domain.SignalPublisher,
	log logger.Interface,
	cooldown time.Duration,
) *Usecase {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Usecase{
		logger:    log,
		ruleRepo:  ruleRepo,
		eventRepo: eventRepo,
		publisher: publisher,
		cooldown:  cooldown,
		now:       time.Now,
		rules:     make(map[string]*ruleState),
		zones:     make(map[string]string),
		persistCh: make(chan persistOp, persistQueueSize),
		stopCh:    make(chan struct{}),
	}
}

// LoadRules seeds the in-memory rule table from the repository. Called once
// at startup before the feed attaches.
func (u *Usecase) LoadRules(ctx context.Context) error {
	rules, err := u.ruleRepo.List(ctx)
	if err != nil {
		return errors.TracerFromError(err)
	}

	u.mu.Lock()
	for _, rule := range rules {
		u.rules[rule.ID] = &ruleState{rule: *rule}
	}
	u.mu.Unlock()

	u.logger.InfoContext(ctx, "alert rules loaded", logger.Field{Key: "action", Value: "LoadRules"}, logger.Field{Key: "count", Value: len(rules)})
	return nil
}

// Start launches the persistence retry worker.
func (u *Usecase) Start(ctx context.Context) {
	u.wg.Add(1)
	go u.persistWorker(ctx)
}

// Stop drains the retry worker.
func (u *Usecase) Stop() {
	close(u.stopCh)
	u.wg.Wait()
}

// CreateRule validates and registers a new rule. The rule is live for
// evaluation before the durable write completes.
func (u *Usecase) CreateRule(ctx context.Context, input domain.RuleInput) (v1.Rule, error) {
	if input.Symbol == "" {
		return v1.Rule{}, errors.NewErrorDetails("symbol is required", string(errors.ErrInvalidRule), "symbol")
	}
	if !input.Op.IsValid() {
		return v1.Rule{}, errors.NewErrorDetails("op must be gte or lte", string(errors.ErrInvalidRule), "op")
	}
	if input.Threshold <= 0 {
		return v1.Rule{}, errors.NewErrorDetails("threshold must be positive", string(errors.ErrInvalidRule), "threshold")
	}

	rule := v1.Rule{
		ID:        uuid.NewString(),
		Symbol:    input.Symbol,
		Op:        input.Op,
		Threshold: input.Threshold,
		Active:    true,
		OneShot:   input.OneShot,
		Channel:   input.Channel,
		CreatedAt: u.now().UTC(),
	}

	u.mu.Lock()
	u.rules[rule.ID] = &ruleState{rule: rule}
	u.mu.Unlock()

	stored := rule
	u.enqueuePersist(ctx, "rule_store", func(ctx context.Context) error {
		return u.ruleRepo.Store(ctx, &stored)
	})
	return rule, nil
}

// DeleteRule removes a rule from evaluation and from the durable store.
func (u *Usecase) DeleteRule(ctx context.Context, id string) error {
	u.mu.Lock()
	_, ok := u.rules[id]
	if ok {
		delete(u.rules, id)
	}
	u.mu.Unlock()
	if !ok {
		return errors.NewErrorDetails("no rule with that id", string(errors.ErrUnknownRule), "id")
	}

	u.enqueuePersist(ctx, "rule_delete", func(ctx context.Context) error {
		return u.ruleRepo.Delete(ctx, id)
	})
	return nil
}

// ToggleRule flips a rule's active flag and returns the updated rule.
// Re-activation re-arms crossing detection from the next observed price.
func (u *Usecase) ToggleRule(ctx context.Context, id string) (v1.Rule, error) {
	u.mu.Lock()
	state, ok := u.rules[id]
	if !ok {
		u.mu.Unlock()
		return v1.Rule{}, errors.NewErrorDetails("no rule with that id", string(errors.ErrUnknownRule), "id")
	}
	state.rule.Active = !state.rule.Active
	if state.rule.Active {
		state.hasPrice = false
	}
	rule := state.rule
	u.mu.Unlock()

	u.enqueuePersist(ctx, "rule_set_active", func(ctx context.Context) error {
		return u.ruleRepo.SetActive(ctx, id, rule.Active)
	})
	return rule, nil
}

// ListRules returns all rules sorted by creation time.
func (u *Usecase) ListRules(_ context.Context) []v1.Rule {
	u.mu.Lock()
	rules := make([]v1.Rule, 0, len(u.rules))
	for _, state := range u.rules {
		rules = append(rules, state.rule)
	}
	u.mu.Unlock()

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules
}

// ListHistory returns recent alert events, newest first. Durable history is
// merged with the in-memory ring so events still queued for persistence,
// or events surviving only a database outage, are never missing.
func (u *Usecase) ListHistory(ctx context.Context, limit int) ([]v1.Event, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}

	seen := make(map[string]struct{})
	var events []v1.Event

	stored, err := u.eventRepo.List(ctx, limit)
	if err != nil {
		u.logger.ErrorContext(ctx, errors.TracerFromError(err), logger.Field{Key: "action", Value: "ListHistory"})
	}
	for _, event := range stored {
		seen[event.ID] = struct{}{}
		events = append(events, *event)
	}

	u.mu.Lock()
	for i := len(u.history) - 1; i >= 0; i-- {
		event := u.history[i]
		if _, ok := seen[event.ID]; ok {
			continue
		}
		events = append(events, event)
	}
	u.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].ID > events[j].ID
		}
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// OnTick evaluates every active rule for the tick's symbol. Wired as a state
// store observer, so evaluation sees prices in apply order.
func (u *Usecase) OnTick(_ marketv1.Instrument, tick marketv1.Tick) {
	now := u.now()

	u.mu.Lock()
	var fired []v1.Event
	var disarmed []string
	for _, state := range u.rules {
		if state.rule.Symbol != tick.Symbol || !state.rule.Active {
			continue
		}

		crossed := state.hasPrice && crossedThreshold(state.rule, state.lastPrice, tick.Price)
		state.lastPrice = tick.Price
		state.hasPrice = true

		if !crossed {
			continue
		}
		if !state.lastFired.IsZero() && now.Sub(state.lastFired) < u.cooldown {
			continue
		}
		state.lastFired = now

		event := v1.Event{
			ID:           ulid.Make().String(),
			RuleID:       state.rule.ID,
			Symbol:       state.rule.Symbol,
			Action:       v1.ActionAlert,
			Threshold:    state.rule.Threshold,
			TriggerPrice: tick.Price,
			Message:      ruleMessage(state.rule, tick.Price),
			Timestamp:    tick.Timestamp,
		}
		fired = append(fired, event)

		if state.rule.OneShot {
			state.rule.Active = false
			disarmed = append(disarmed, state.rule.ID)
		}
	}
	for _, event := range fired {
		u.recordLocked(event)
	}
	u.mu.Unlock()

	// A fired one-shot rule stays disarmed across restarts, so the durable
	// row must flip too.
	for _, id := range disarmed {
		id := id
		u.enqueuePersist(context.Background(), "rule_set_active", func(ctx context.Context) error {
			return u.ruleRepo.SetActive(ctx, id, false)
		})
	}

	for _, event := range fired {
		u.emit(event)
	}
}

// OnCandleClose watches the closed candle's RSI for zone entries and emits
// BUY (oversold) or SELL (overbought) signals. Wired as an indicator close
// observer on the signal interval. A signal fires only when the RSI enters
// the zone, not on every close inside it.
func (u *Usecase) OnCandleClose(candle marketv1.Candle, snapshot marketv1.IndicatorSnapshot) {
	if snapshot.RSI == nil {
		return
	}
	rsi := *snapshot.RSI

	zone := "neutral"
	action := ""
	switch {
	case rsi < rsiOversold:
		zone = "oversold"
		action = v1.ActionBuy
	case rsi > rsiOverbought:
		zone = "overbought"
		action = v1.ActionSell
	}

	u.mu.Lock()
	prev := u.zones[candle.Symbol]
	u.zones[candle.Symbol] = zone
	if action == "" || prev == zone {
		u.mu.Unlock()
		return
	}

	event := v1.Event{
		ID:           ulid.Make().String(),
		Symbol:       candle.Symbol,
		Action:       action,
		TriggerPrice: candle.Close,
		RSI:          &rsi,
		Message:      fmt.Sprintf("%s RSI %.1f is %s", candle.Symbol, rsi, zone),
		Timestamp:    candle.BucketTime,
	}
	u.recordLocked(event)
	u.mu.Unlock()

	u.emit(event)
}

// crossedThreshold implements strict crossing semantics: the previous price
// must sit on the far side of the threshold.
func crossedThreshold(rule v1.Rule, prev, curr float64) bool {
	switch rule.Op {
	case v1.OperatorGTE:
		return prev < rule.Threshold && curr >= rule.Threshold
	case v1.OperatorLTE:
		return prev > rule.Threshold && curr <= rule.Threshold
	default:
		return false
	}
}

func ruleMessage(rule v1.Rule, price float64) string {
	direction := "above"
	if rule.Op == v1.OperatorLTE {
		direction = "below"
	}
	return fmt.Sprintf("%s crossed %s %s at %s", rule.Symbol, direction, formatPrice(rule.Threshold), formatPrice(price))
}

func formatPrice(price float64) string {
	if price == float64(int64(price)) {
		return fmt.Sprintf("%d", int64(price))
	}
	return fmt.Sprintf("%g", price)
}

// recordLocked appends the event to the bounded in-memory ring. Caller holds
// the usecase mutex.
func (u *Usecase) recordLocked(event v1.Event) {
	u.history = append(u.history, event)
	if len(u.history) > defaultHistorySize {
		u.history = u.history[1:]
	}
}

// emit fans the event out and queues the durable write.
func (u *Usecase) emit(event v1.Event) {
	metrics.SignalsTotal.WithLabelValues(event.Action).Inc()
	u.logger.Info("alert fired",
		logger.Field{Key: "action", Value: "emit"},
		logger.Field{Key: "symbol", Value: event.Symbol},
		logger.Field{Key: "signal", Value: event.Action},
		logger.Field{Key: "price", Value: event.TriggerPrice},
	)

	if u.publisher != nil {
		u.publisher.PublishSignal(event)
	}

	stored := event
	u.enqueuePersist(context.Background(), "event_store", func(ctx context.Context) error {
		return u.eventRepo.Store(ctx, &stored)
	})
}

// enqueuePersist hands a durable write to the retry worker. A full queue is
// logged and dropped: in-memory state already reflects the change.
func (u *Usecase) enqueuePersist(ctx context.Context, name string, fn func(ctx context.Context) error) {
	select {
	case u.persistCh <- persistOp{name: name, fn: fn}:
	default:
		u.logger.WarnContext(ctx, "persist queue full, dropping write",
			logger.Field{Key: "action", Value: "enqueuePersist"},
			logger.Field{Key: "op", Value: name},
		)
	}
}

func (u *Usecase) persistWorker(ctx context.Context) {
	defer u.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.stopCh:
			// Best effort drain before shutdown.
			for {
				select {
				case op := <-u.persistCh:
					u.runPersist(ctx, op)
				default:
					return
				}
			}
		case op := <-u.persistCh:
			u.runPersist(ctx, op)
		}
	}
}

func (u *Usecase) runPersist(ctx context.Context, op persistOp) {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = op.fn(ctx); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-u.stopCh:
			return
		case <-time.After(persistRetryDelay):
		}
	}
	u.logger.ErrorContext(ctx, errors.TracerFromError(err),
		logger.Field{Key: "action", Value: "runPersist"},
		logger.Field{Key: "op", Value: op.name},
	)
}
