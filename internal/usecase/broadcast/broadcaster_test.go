package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertv1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
	marketv1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/internal/usecase/store"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

// newPipeline wires a real state store into a broadcaster without starting
// the flush loop: tests drive flushes explicitly.
func newPipeline(t *testing.T) (*store.Store, *Broadcaster) {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)
	st := store.NewStore(log, time.UTC)
	b := NewBroadcaster(st, log, time.Second, 0, 0)
	st.AddObserver(b.Publish)
	return st, b
}

func applyTick(t *testing.T, st *store.Store, symbol string, price float64, ts time.Time) {
	t.Helper()
	_, err := st.ApplyTick(context.Background(), marketv1.Tick{Symbol: symbol, Price: price, Timestamp: ts})
	require.NoError(t, err)
}

func nextMessage(t *testing.T, sub *Subscriber) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return msg
}

func TestBroadcaster_SnapshotOnSubscribe(t *testing.T) {
	st, b := newPipeline(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	applyTick(t, st, "KRW-BTC", 92000000, base)
	applyTick(t, st, "KRW-ETH", 2000000, base)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	msg := nextMessage(t, sub)
	assert.Equal(t, KindSnapshot, msg.Kind)

	var frame struct {
		Type string                         `json:"type"`
		Data map[string]marketv1.Instrument `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &frame))
	assert.Equal(t, "snapshot", frame.Type)
	require.Len(t, frame.Data, 2)
	assert.Equal(t, 92000000.0, frame.Data["KRW-BTC"].Price)
}

func TestBroadcaster_CoalescesBurstIntoOneDelta(t *testing.T) {
	st, b := newPipeline(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	applyTick(t, st, "KRW-BTC", 90000000, base)
	b.Flush() // drain the seed tick before anyone subscribes

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub)
	nextMessage(t, sub) // snapshot

	// A burst of 1000 ticks inside one flush window.
	price := 90000000.0
	for i := 1; i <= 1000; i++ {
		price = 90000000 + float64(i)*1000
		applyTick(t, st, "KRW-BTC", price, base.Add(time.Duration(i)*time.Millisecond))
	}
	b.Flush()

	msg := nextMessage(t, sub)
	require.Equal(t, KindDelta, msg.Kind)
	var inst marketv1.Instrument
	require.NoError(t, json.Unmarshal(msg.Payload, &inst))
	assert.Equal(t, "KRW-BTC", inst.Symbol)
	assert.Equal(t, price, inst.Price)

	// Nothing else pending: one burst, one delta.
	b.Flush()
	assert.Equal(t, 0, sub.queueLen())
}

func TestBroadcaster_DeltaCarriesAggregates(t *testing.T) {
	st, b := newPipeline(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub)
	nextMessage(t, sub)

	applyTick(t, st, "KRW-BTC", 92000000, base)
	applyTick(t, st, "KRW-BTC", 93000000, base.Add(time.Second))
	b.Flush()

	var inst marketv1.Instrument
	msg := nextMessage(t, sub)
	require.NoError(t, json.Unmarshal(msg.Payload, &inst))
	assert.Equal(t, 93000000.0, inst.Price)
	assert.Equal(t, 93000000.0, inst.High)
	assert.Equal(t, 92000000.0, inst.Low)
}

func TestBroadcaster_SignalDeliveryAndReplay(t *testing.T) {
	_, b := newPipeline(t)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub)
	nextMessage(t, sub) // snapshot

	b.PublishSignal(alertv1.Event{ID: "e1", Symbol: "KRW-BTC", Action: alertv1.ActionAlert})

	msg := nextMessage(t, sub)
	assert.Equal(t, KindSignal, msg.Kind)
	var frame struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &frame))
	assert.Equal(t, "signal", frame.Type)
	assert.Equal(t, "e1", frame.ID)
	assert.Equal(t, alertv1.ActionAlert, frame.Action)

	// A late joiner replays recent signals after its snapshot.
	late, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(late)
	nextMessage(t, late) // snapshot
	replayed := nextMessage(t, late)
	assert.Equal(t, KindSignal, replayed.Kind)
}

func TestBroadcaster_ReplayRingKeepsLastTen(t *testing.T) {
	_, b := newPipeline(t)

	for i := 0; i < 15; i++ {
		b.PublishSignal(alertv1.Event{ID: fmt.Sprintf("e%d", i), Symbol: "KRW-BTC", Action: alertv1.ActionAlert})
	}

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub)
	nextMessage(t, sub) // snapshot

	var ids []string
	for i := 0; i < 10; i++ {
		msg := nextMessage(t, sub)
		require.Equal(t, KindSignal, msg.Kind)
		var frame struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &frame))
		ids = append(ids, frame.ID)
	}
	assert.Equal(t, "e5", ids[0])
	assert.Equal(t, "e14", ids[9])
	assert.Equal(t, 0, sub.queueLen())
}

func TestBroadcaster_SlowSubscriberDropsOldestDeltas(t *testing.T) {
	st, b := newPipeline(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub)
	nextMessage(t, sub) // snapshot

	// Each flush produces one delta the subscriber never reads.
	for i := 0; i < defaultSoftLimit+20; i++ {
		applyTick(t, st, "KRW-BTC", 90000000+float64(i), base.Add(time.Duration(i)*time.Second))
		b.Flush()
	}

	assert.LessOrEqual(t, sub.queueLen(), defaultSoftLimit)
	assert.False(t, sub.Closed())

	// The newest state is still the last frame in the queue.
	var last Message
	for sub.queueLen() > 0 {
		last = nextMessage(t, sub)
	}
	var inst marketv1.Instrument
	require.NoError(t, json.Unmarshal(last.Payload, &inst))
	assert.Equal(t, 90000000.0+float64(defaultSoftLimit+19), inst.Price)
}

func TestBroadcaster_ConfigurableQueueLimits(t *testing.T) {
	log, err := logger.NewLogger()
	require.NoError(t, err)
	st := store.NewStore(log, time.UTC)
	b := NewBroadcaster(st, log, time.Second, 4, 8)
	st.AddObserver(b.Publish)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	nextMessage(t, sub) // snapshot

	// Unread deltas are capped at the configured soft limit.
	for i := 0; i < 12; i++ {
		applyTick(t, st, "KRW-BTC", 90000000+float64(i), base.Add(time.Duration(i)*time.Second))
		b.Flush()
	}
	assert.LessOrEqual(t, sub.queueLen(), 4)
	assert.False(t, sub.Closed())

	// Signals pile past the soft limit and evict at the configured hard limit.
	for i := 0; i < 10; i++ {
		b.PublishSignal(alertv1.Event{ID: fmt.Sprintf("e%d", i), Symbol: "KRW-BTC", Action: alertv1.ActionAlert})
	}
	assert.True(t, sub.Closed())
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_SignalOverflowEvicts(t *testing.T) {
	_, b := newPipeline(t)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	nextMessage(t, sub) // snapshot

	// Signals are never dropped, so a consumer that reads nothing
	// eventually hits the hard limit and is evicted.
	for i := 0; i < defaultHardLimit+10; i++ {
		b.PublishSignal(alertv1.Event{ID: fmt.Sprintf("e%d", i), Symbol: "KRW-BTC", Action: alertv1.ActionAlert})
	}

	assert.True(t, sub.Closed())
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_UnsubscribeWakesReader(t *testing.T) {
	_, b := newPipeline(t)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	nextMessage(t, sub) // snapshot

	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Unsubscribe(sub)
	}()

	_, err = sub.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, string(errors.ErrSubscriberGone)))
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_FlushLoop(t *testing.T) {
	st, b := newPipeline(t)
	b.flushEvery = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	sub, err := b.Subscribe()
	require.NoError(t, err)
	nextMessage(t, sub) // snapshot

	applyTick(t, st, "KRW-BTC", 92000000, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	msg := nextMessage(t, sub)
	assert.Equal(t, KindDelta, msg.Kind)
}
