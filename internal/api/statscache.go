package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/tracking"
)

// StatsCache is a short-TTL Redis cache in front of the stats fold. Cache
// failures fall through to a direct compute; the cache only ever saves
// work, never gates it.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &StatsCache{rdb: rdb, ttl: ttl}
}

// Get returns cached stats, or nil on miss, error, or disabled cache.
func (c *StatsCache) Get(ctx context.Context, campaignID string) *tracking.CampaignStats {
	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, statsKey(campaignID)).Bytes()
	if err != nil {
		return nil
	}
	var stats tracking.CampaignStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil
	}
	return &stats
}

// Put stores stats best-effort.
func (c *StatsCache) Put(ctx context.Context, stats tracking.CampaignStats) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, statsKey(stats.CampaignID), data, c.ttl)
}

// Invalidate drops the cached entry, used after deletes.
func (c *StatsCache) Invalidate(ctx context.Context, campaignID string) {
	if c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, statsKey(campaignID))
}

func statsKey(campaignID string) string {
	return "stats:" + campaignID
}
