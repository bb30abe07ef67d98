package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	alertv1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
	"github.com/serkee5559/coin-portal/internal/domain/market"
	marketv1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/internal/metrics"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

const (
	defaultFlushEvery = 500 * time.Millisecond
	defaultSoftLimit  = 64
	defaultHardLimit  = 256
	signalReplaySize  = 10
)

type snapshotFrame struct {
	Type      string                         `json:"type"`
	Connected bool                           `json:"connected"`
	Data      map[string]marketv1.Instrument `json:"data"`
}

type signalFrame struct {
	Type string `json:"type"`
	alertv1.Event
}

// Broadcaster coalesces instrument updates into periodic delta flushes and
// fans them out to subscribers, alongside immediate signal frames. It is a
// state store observer on the write side and the subscription registry on
// the read side.
type Broadcaster struct {
	logger     logger.Interface
	store      market.StateStore
	flushEvery time.Duration
	softLimit  int
	hardLimit  int

	mu      sync.Mutex
	pending map[string]marketv1.Instrument
	subs    map[string]*Subscriber
	replay  []alertv1.Event

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewBroadcaster creates a broadcaster. Non-positive arguments fall back to
// the defaults; a hard limit below the soft limit is raised to it.
func NewBroadcaster(store market.StateStore, log logger.Interface, flushEvery time.Duration, softLimit, hardLimit int) *Broadcaster {
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	if softLimit <= 0 {
		softLimit = defaultSoftLimit
	}
	if hardLimit <= 0 {
		hardLimit = defaultHardLimit
	}
	if hardLimit < softLimit {
		hardLimit = softLimit
	}
	return &Broadcaster{
		logger:     log,
		store:      store,
		flushEvery: flushEvery,
		softLimit:  softLimit,
		hardLimit:  hardLimit,
		pending:    make(map[string]marketv1.Instrument),
		subs:       make(map[string]*Subscriber),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the flush loop.
func (b *Broadcaster) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.flushEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				b.flush()
			}
		}
	}()
}

// Stop halts the flush loop and detaches every subscriber.
func (b *Broadcaster) Stop() {
	close(b.stopCh)
	b.wg.Wait()

	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
		metrics.SubscribersActive.Dec()
	}
}

// Publish records an instrument update for the next flush. Within one flush
// window only the latest state per symbol survives. Wired as a state store
// observer.
func (b *Broadcaster) Publish(inst marketv1.Instrument, _ marketv1.Tick) {
	b.mu.Lock()
	if _, exists := b.pending[inst.Symbol]; exists {
		metrics.CoalescedUpdatesTotal.Inc()
	}
	b.pending[inst.Symbol] = inst
	b.mu.Unlock()
}

// PublishSignal bypasses coalescing: signal frames are pushed to every
// subscriber immediately and kept for replay to late joiners.
func (b *Broadcaster) PublishSignal(event alertv1.Event) {
	payload, err := json.Marshal(signalFrame{Type: "signal", Event: event})
	if err != nil {
		b.logger.Error(err, logger.Field{Key: "action", Value: "PublishSignal"})
		return
	}

	b.mu.Lock()
	b.replay = append(b.replay, event)
	if len(b.replay) > signalReplaySize {
		b.replay = b.replay[1:]
	}
	subs := b.subscribersLocked()
	b.mu.Unlock()

	b.fanOut(subs, Message{Kind: KindSignal, Payload: payload})
}

// Subscribe attaches a new consumer. Its queue starts with a full snapshot
// followed by the recent signal replay, so a fresh client renders without
// waiting for live traffic.
func (b *Broadcaster) Subscribe() (*Subscriber, error) {
	sub := newSubscriber(uuid.NewString(), b.softLimit, b.hardLimit)

	snapshot := snapshotFrame{Type: "snapshot", Connected: b.store.Connected(), Data: b.store.Snapshot()}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	sub.push(Message{Kind: KindSnapshot, Payload: payload})

	b.mu.Lock()
	for _, event := range b.replay {
		framed, err := json.Marshal(signalFrame{Type: "signal", Event: event})
		if err != nil {
			continue
		}
		sub.push(Message{Kind: KindSignal, Payload: framed})
	}
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	metrics.SubscribersActive.Inc()
	b.logger.Info("subscriber attached", logger.Field{Key: "action", Value: "Subscribe"}, logger.Field{Key: "subscriber_id", Value: sub.ID})
	return sub, nil
}

// Unsubscribe detaches a consumer and releases its queue.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub.ID]
	delete(b.subs, sub.ID)
	b.mu.Unlock()

	if ok {
		sub.close()
		metrics.SubscribersActive.Dec()
	}
}

// SubscriberCount reports the number of attached consumers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// flush drains the pending map and sends one delta frame per changed symbol.
func (b *Broadcaster) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	pending := b.pending
	b.pending = make(map[string]marketv1.Instrument)
	subs := b.subscribersLocked()
	b.mu.Unlock()

	metrics.BroadcastBatchesTotal.Inc()
	for _, inst := range pending {
		payload, err := json.Marshal(inst)
		if err != nil {
			b.logger.Error(err, logger.Field{Key: "action", Value: "flush"}, logger.Field{Key: "symbol", Value: inst.Symbol})
			continue
		}
		b.fanOut(subs, Message{Kind: KindDelta, Payload: payload})
	}
}

// Flush forces an immediate delta flush. Used by shutdown and tests.
func (b *Broadcaster) Flush() {
	b.flush()
}

func (b *Broadcaster) subscribersLocked() []*Subscriber {
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	return subs
}

// fanOut pushes one frame to each subscriber, evicting any whose queue hit
// the hard limit.
func (b *Broadcaster) fanOut(subs []*Subscriber, msg Message) {
	for _, sub := range subs {
		if sub.push(msg) {
			continue
		}
		b.mu.Lock()
		_, ok := b.subs[sub.ID]
		delete(b.subs, sub.ID)
		b.mu.Unlock()
		if ok {
			sub.close()
			metrics.SubscribersActive.Dec()
			metrics.SubscriberEvictionsTotal.Inc()
			b.logger.Warn("subscriber evicted, queue overflow",
				logger.Field{Key: "action", Value: "fanOut"},
				logger.Field{Key: "subscriber_id", Value: sub.ID},
			)
		}
	}
}
