package rediscache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/serkee5559/coin-portal/internal/domain/market"
	v1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
	"github.com/serkee5559/coin-portal/pkg/redis"
)

// SnapshotCache periodically writes the instrument table to Redis and
// restores it at startup, so a restart serves recent prices while the feed
// reconnects instead of an empty dashboard.
type SnapshotCache struct {
	client   redis.Client
	logger   logger.Interface
	store    market.StateStore
	key      string
	interval time.Duration

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewSnapshotCache creates a snapshot cache writing under key every interval.
func NewSnapshotCache(client redis.Client, store market.StateStore, log logger.Interface, key string, interval time.Duration) *SnapshotCache {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SnapshotCache{
		client:   client,
		logger:   log,
		store:    store,
		key:      key,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Restore loads the last saved snapshot into the state store. A missing key
// is not an error.
func (c *SnapshotCache) Restore(ctx context.Context) error {
	raw, err := c.client.Get(ctx, c.key)
	if err != nil {
		return errors.TracerFromError(err)
	}
	if raw == "" {
		return nil
	}

	var snapshot map[string]v1.Instrument
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return errors.TracerFromError(err)
	}
	c.store.Restore(snapshot)

	c.logger.InfoContext(ctx, "state restored from snapshot", logger.Field{
		Key:   "action",
		Value: "snapshot_restore",
	}, logger.Field{
		Key:   "instruments",
		Value: len(snapshot),
	})
	return nil
}

// Save writes the current state snapshot.
func (c *SnapshotCache) Save(ctx context.Context) error {
	snapshot := c.store.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.TracerFromError(err)
	}
	if err := c.client.Set(ctx, c.key, string(payload), 0); err != nil {
		return errors.TracerFromError(err)
	}
	return nil
}

// Start launches the periodic save loop.
func (c *SnapshotCache) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				if err := c.Save(ctx); err != nil {
					c.logger.ErrorContext(ctx, err, logger.Field{
						Key:   "action",
						Value: "snapshot_save",
					})
				}
			}
		}
	}()
}

// Stop halts the save loop after one final save.
func (c *SnapshotCache) Stop(ctx context.Context) {
	close(c.stopCh)
	c.wg.Wait()
	if err := c.Save(ctx); err != nil {
		c.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "action",
			Value: "snapshot_save",
		})
	}
}
