package interval

import (
	"time"
)

// CalculateBucketTime calculates the start time of the interval bucket
func (i Interval) CalculateBucketTime(timestamp time.Time) time.Time {
	switch i.Name {
	case "1d":
		// Truncate to start of day, keeping the timestamp's location
		return time.Date(timestamp.Year(), timestamp.Month(), timestamp.Day(), 0, 0, 0, 0, timestamp.Location())
	default:
		return timestamp.Truncate(i.Duration)
	}
}

// GetBucketRange returns the start and end time of the interval bucket
func (i Interval) GetBucketRange(timestamp time.Time) (start, end time.Time) {
	start = i.CalculateBucketTime(timestamp)
	end = start.Add(i.Duration)
	return start, end
}

// IsInBucket checks if a timestamp falls within the same bucket as another timestamp
func (i Interval) IsInBucket(timestamp1, timestamp2 time.Time) bool {
	bucket1 := i.CalculateBucketTime(timestamp1)
	bucket2 := i.CalculateBucketTime(timestamp2)
	return bucket1.Equal(bucket2)
}
