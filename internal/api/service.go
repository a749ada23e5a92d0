// Package api is the management surface of the campaign engine: campaign
// creation and deletion, stats, the drip dashboard, and the provider
// webhook.
package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/drip"
	"github.com/ignite/campaign-engine/internal/tracking"
)

// CampaignStore is the campaign persistence surface the API needs.
type CampaignStore interface {
	Put(ctx context.Context, c *campaign.Campaign) error
	Get(ctx context.Context, campaignID string) ([]campaign.Campaign, error)
	GetRow(ctx context.Context, campaignID, emailID string) (*campaign.Campaign, error)
	Delete(ctx context.Context, campaignID string) error
	ListByUser(ctx context.Context, userID, campaignType string) ([]campaign.Campaign, error)
}

// EventStore is the tracking persistence surface the API needs.
type EventStore interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]tracking.Event, error)
	ListByOriginalCampaign(ctx context.Context, originalCampaignID string) ([]tracking.Event, error)
	DeleteByCampaign(ctx context.Context, campaignID string) (int, error)
}

// JobPublisher enqueues send jobs.
type JobPublisher interface {
	Publish(ctx context.Context, job interface{}) error
}

// WebhookProcessor handles provider webhook bodies.
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, body []byte) error
}

// Service holds the API's dependencies. The timer services are optional:
// without a send timer, scheduled sends are rejected; without a follow-up
// timer, drip campaigns are still created but never branch, which is
// logged at create time.
type Service struct {
	campaigns     CampaignStore
	events        EventStore
	sendQueue     JobPublisher
	sendTimer     drip.TimerService
	followupTimer drip.TimerService
	webhook       WebhookProcessor
	cache         *StatsCache
}

// NewService wires the API service. rdb may be nil to disable caching.
func NewService(
	campaigns CampaignStore,
	events EventStore,
	sendQueue JobPublisher,
	sendTimer, followupTimer drip.TimerService,
	webhook WebhookProcessor,
	rdb *redis.Client,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		campaigns:     campaigns,
		events:        events,
		sendQueue:     sendQueue,
		sendTimer:     sendTimer,
		followupTimer: followupTimer,
		webhook:       webhook,
		cache:         NewStatsCache(rdb, cacheTTL),
	}
}
