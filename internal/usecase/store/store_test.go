package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)
	return NewStore(log, time.UTC)
}

func tickAt(symbol string, price float64, ts time.Time) v1.Tick {
	return v1.Tick{Symbol: symbol, Price: price, Timestamp: ts}
}

func TestStore_ApplyTick(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		ticks    []v1.Tick
		tick     v1.Tick
		assertFn func(t *testing.T, inst v1.Instrument, err error)
	}{
		{
			name: "first tick seeds the instrument",
			tick: v1.Tick{Symbol: "KRW-BTC", Price: 92000000, Volume: 120.5, Timestamp: base},
			assertFn: func(t *testing.T, inst v1.Instrument, err error) {
				require.NoError(t, err)
				assert.Equal(t, 92000000.0, inst.Price)
				assert.Equal(t, 92000000.0, inst.High)
				assert.Equal(t, 92000000.0, inst.Low)
				assert.Equal(t, 120.5, inst.Volume)
			},
		},
		{
			name:  "high and low track price extremes",
			ticks: []v1.Tick{tickAt("KRW-BTC", 92000000, base), tickAt("KRW-BTC", 93000000, base.Add(time.Second))},
			tick:  tickAt("KRW-BTC", 92500000, base.Add(2*time.Second)),
			assertFn: func(t *testing.T, inst v1.Instrument, err error) {
				require.NoError(t, err)
				assert.Equal(t, 92500000.0, inst.Price)
				assert.Equal(t, 93000000.0, inst.High)
				assert.Equal(t, 92000000.0, inst.Low)
			},
		},
		{
			name:  "stale tick is rejected and state unchanged",
			ticks: []v1.Tick{tickAt("KRW-BTC", 92000000, base.Add(time.Minute))},
			tick:  tickAt("KRW-BTC", 99999999, base),
			assertFn: func(t *testing.T, _ v1.Instrument, err error) {
				require.Error(t, err)
				assert.True(t, errors.ErrorCodeEquals(err, string(errors.ErrStaleTick)))
			},
		},
		{
			name:  "duplicate event time is rejected",
			ticks: []v1.Tick{tickAt("KRW-BTC", 92000000, base)},
			tick:  tickAt("KRW-BTC", 92000000, base),
			assertFn: func(t *testing.T, _ v1.Instrument, err error) {
				require.Error(t, err)
				assert.True(t, errors.ErrorCodeEquals(err, string(errors.ErrStaleTick)))
			},
		},
		{
			name: "non-positive price is rejected",
			tick: tickAt("KRW-BTC", 0, base),
			assertFn: func(t *testing.T, _ v1.Instrument, err error) {
				require.Error(t, err)
				assert.True(t, errors.ErrorCodeEquals(err, string(errors.ErrInvalidTick)))
			},
		},
		{
			name: "negative volume is rejected",
			tick: v1.Tick{Symbol: "KRW-BTC", Price: 1000, Volume: -1, Timestamp: base},
			assertFn: func(t *testing.T, _ v1.Instrument, err error) {
				require.Error(t, err)
				assert.True(t, errors.ErrorCodeEquals(err, string(errors.ErrInvalidTick)))
			},
		},
		{
			name:  "change fields derive from previous price when feed omits them",
			ticks: []v1.Tick{tickAt("KRW-ETH", 2000000, base)},
			tick:  tickAt("KRW-ETH", 2100000, base.Add(time.Second)),
			assertFn: func(t *testing.T, inst v1.Instrument, err error) {
				require.NoError(t, err)
				assert.Equal(t, "RISE", inst.Change)
				assert.Equal(t, 100000.0, inst.ChangePrice)
				assert.InDelta(t, 5.0, inst.ChangeRate, 1e-9)
			},
		},
		{
			name:  "feed-provided change fields win",
			ticks: []v1.Tick{tickAt("KRW-ETH", 2000000, base)},
			tick: v1.Tick{
				Symbol: "KRW-ETH", Price: 2100000, Timestamp: base.Add(time.Second),
				Change: "FALL", ChangePrice: -50000, ChangeRate: -2.4,
			},
			assertFn: func(t *testing.T, inst v1.Instrument, err error) {
				require.NoError(t, err)
				assert.Equal(t, "FALL", inst.Change)
				assert.Equal(t, -50000.0, inst.ChangePrice)
				assert.Equal(t, -2.4, inst.ChangeRate)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			for _, tick := range tc.ticks {
				_, err := s.ApplyTick(context.Background(), tick)
				require.NoError(t, err)
			}
			inst, err := s.ApplyTick(context.Background(), tc.tick)
			tc.assertFn(t, inst, err)
		})
	}
}

func TestStore_DailyRollover(t *testing.T) {
	s := newTestStore(t)
	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)

	_, err := s.ApplyTick(context.Background(), v1.Tick{Symbol: "KRW-BTC", Price: 95000000, Volume: 300, Timestamp: day1})
	require.NoError(t, err)
	_, err = s.ApplyTick(context.Background(), tickAt("KRW-BTC", 90000000, day1.Add(30*time.Second)))
	require.NoError(t, err)

	inst, err := s.ApplyTick(context.Background(), v1.Tick{Symbol: "KRW-BTC", Price: 91000000, Volume: 2, Timestamp: day2})
	require.NoError(t, err)

	assert.Equal(t, 91000000.0, inst.High, "previous day's high must not survive rollover")
	assert.Equal(t, 91000000.0, inst.Low, "previous day's low must not survive rollover")
	assert.Equal(t, 2.0, inst.Volume)
}

func TestStore_RolloverTimezone(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	log, err := logger.NewLogger()
	require.NoError(t, err)
	s := NewStore(log, seoul)

	// 14:59 and 15:01 UTC straddle midnight in Seoul (UTC+9).
	before := time.Date(2026, 3, 1, 14, 59, 0, 0, time.UTC)
	after := time.Date(2026, 3, 1, 15, 1, 0, 0, time.UTC)

	_, err = s.ApplyTick(context.Background(), tickAt("KRW-BTC", 95000000, before))
	require.NoError(t, err)
	inst, err := s.ApplyTick(context.Background(), tickAt("KRW-BTC", 90000000, after))
	require.NoError(t, err)

	assert.Equal(t, 90000000.0, inst.High)
}

func TestStore_Observers(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var seen []float64
	s.AddObserver(func(inst v1.Instrument, _ v1.Tick) {
		seen = append(seen, inst.Price)
	})

	prices := []float64{92000000, 93000000, 92000000}
	for i, p := range prices {
		_, err := s.ApplyTick(context.Background(), tickAt("KRW-BTC", p, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	// Rejected ticks never reach observers.
	_, err := s.ApplyTick(context.Background(), tickAt("KRW-BTC", 1, base))
	require.Error(t, err)

	assert.Equal(t, prices, seen)
}

func TestStore_GetAllSorted(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, symbol := range []string{"KRW-XRP", "KRW-BTC", "KRW-ETH"} {
		_, err := s.ApplyTick(context.Background(), tickAt(symbol, 1000, base))
		require.NoError(t, err)
	}

	instruments := s.GetAll()
	require.Len(t, instruments, 3)
	assert.Equal(t, "KRW-BTC", instruments[0].Symbol)
	assert.Equal(t, "KRW-ETH", instruments[1].Symbol)
	assert.Equal(t, "KRW-XRP", instruments[2].Symbol)
}

func TestStore_GetOneUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOne("KRW-DOGE")
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, string(errors.ErrUnknownInstrument)))
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.ApplyTick(context.Background(), tickAt("KRW-BTC", 92000000, base))
	require.NoError(t, err)

	snapshot := s.Snapshot()
	require.Len(t, snapshot, 1)

	restored := newTestStore(t)
	restored.Restore(snapshot)
	inst, err := restored.GetOne("KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 92000000.0, inst.Price)

	// Restored state is a floor, not an override: a live tick newer than the
	// snapshot applies normally, an older one is stale.
	_, err = restored.ApplyTick(context.Background(), tickAt("KRW-BTC", 1000, base.Add(-time.Minute)))
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, string(errors.ErrStaleTick)))
}

func TestStore_Connected(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Connected())
	s.SetConnected(true)
	assert.True(t, s.Connected())
	s.SetConnected(false)
	assert.False(t, s.Connected())
}
