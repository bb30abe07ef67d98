package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInterval(t *testing.T) {
	tests := []struct {
		name         string
		intervalName string
		wantDuration time.Duration
		wantErr      bool
	}{
		{
			name:         "one minute",
			intervalName: "1m",
			wantDuration: time.Minute,
		},
		{
			name:         "four hours",
			intervalName: "4h",
			wantDuration: 4 * time.Hour,
		},
		{
			name:         "one day",
			intervalName: "1d",
			wantDuration: 24 * time.Hour,
		},
		{
			name:         "unsupported",
			intervalName: "2m",
			wantErr:      true,
		},
		{
			name:         "empty",
			intervalName: "",
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := GetInterval(tt.intervalName)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.intervalName, iv.Name)
			assert.Equal(t, tt.wantDuration, iv.Duration)
		})
	}
}

func TestIsValidInterval(t *testing.T) {
	for _, iv := range AllIntervals {
		assert.True(t, IsValidInterval(iv.Name))
	}
	assert.False(t, IsValidInterval("3m"))
	assert.False(t, IsValidInterval("1w"))
}

func TestGetAllIntervalNames(t *testing.T) {
	names := GetAllIntervalNames()
	assert.Equal(t, []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}, names)
}

func TestCalculateBucketTime(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	tests := []struct {
		name      string
		interval  Interval
		timestamp time.Time
		want      time.Time
	}{
		{
			name:      "1m truncates seconds",
			interval:  Interval1m,
			timestamp: time.Date(2025, 3, 14, 9, 26, 53, 123, time.UTC),
			want:      time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC),
		},
		{
			name:      "5m truncates to bucket start",
			interval:  Interval5m,
			timestamp: time.Date(2025, 3, 14, 9, 28, 0, 0, time.UTC),
			want:      time.Date(2025, 3, 14, 9, 25, 0, 0, time.UTC),
		},
		{
			name:      "4h truncates to bucket start",
			interval:  Interval4h,
			timestamp: time.Date(2025, 3, 14, 15, 59, 59, 0, time.UTC),
			want:      time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		},
		{
			name:      "1d truncates to midnight",
			interval:  Interval1d,
			timestamp: time.Date(2025, 3, 14, 23, 45, 0, 0, time.UTC),
			want:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "1d keeps the timestamp location",
			interval:  Interval1d,
			timestamp: time.Date(2025, 3, 14, 1, 30, 0, 0, seoul),
			want:      time.Date(2025, 3, 14, 0, 0, 0, 0, seoul),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.interval.CalculateBucketTime(tt.timestamp)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestGetBucketRange(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	start, end := Interval15m.GetBucketRange(ts)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 15, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), end)
}

func TestIsInBucket(t *testing.T) {
	a := time.Date(2025, 3, 14, 9, 0, 5, 0, time.UTC)
	b := time.Date(2025, 3, 14, 9, 0, 55, 0, time.UTC)
	c := time.Date(2025, 3, 14, 9, 1, 0, 0, time.UTC)

	assert.True(t, Interval1m.IsInBucket(a, b))
	assert.False(t, Interval1m.IsInBucket(b, c))
	assert.True(t, Interval1h.IsInBucket(a, c))
}
