package tracking

import (
	"context"
	"log"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// DefaultAttributionWindow bounds how far back the heuristic resolver
// looks for a campaign containing the event's recipient.
const DefaultAttributionWindow = 5 * time.Minute

// Attribution links a provider event back to the campaign that caused it.
// TrackingMessageID is our per-recipient message id when the indexed path
// found the original Send row, empty otherwise.
type Attribution struct {
	CampaignID         string
	OriginalCampaignID string
	TrackingMessageID  string
}

// Resolver maps a normalized provider event to a campaign. Resolvers are
// read-only; a nil Attribution with nil error means "no match", and the
// caller persists the event unattributed.
type Resolver interface {
	Resolve(ctx context.Context, evt *NormalizedEvent) (*Attribution, error)
}

// CampaignLookup is the campaign-store surface the heuristic resolver needs.
type CampaignLookup interface {
	ScanRecentByRecipient(ctx context.Context, recipient string, from, to time.Time) ([]campaign.Campaign, error)
}

// IndexedResolver attributes events through the Send row written at
// dispatch time, matching on the provider's message id. This is the
// authoritative path.
type IndexedResolver struct {
	events EventStore
}

func NewIndexedResolver(events EventStore) *IndexedResolver {
	return &IndexedResolver{events: events}
}

func (r *IndexedResolver) Resolve(ctx context.Context, evt *NormalizedEvent) (*Attribution, error) {
	sent, err := r.events.FindBySESMessageID(ctx, evt.SESMessageID, EventSend)
	if err != nil {
		return nil, err
	}
	if sent == nil || sent.CampaignID == "" {
		return nil, nil
	}
	return &Attribution{
		CampaignID:         sent.CampaignID,
		OriginalCampaignID: sent.OriginalCampaignID,
		TrackingMessageID:  sent.MessageID,
	}, nil
}

// HeuristicResolver attributes events by recipient overlap inside a short
// window before the event. Used when the provider id cannot be matched,
// typically for events on mail sent before dispatch-time tracking existed.
type HeuristicResolver struct {
	campaigns CampaignLookup
	window    time.Duration
}

func NewHeuristicResolver(campaigns CampaignLookup, window time.Duration) *HeuristicResolver {
	if window <= 0 {
		window = DefaultAttributionWindow
	}
	return &HeuristicResolver{campaigns: campaigns, window: window}
}

func (r *HeuristicResolver) Resolve(ctx context.Context, evt *NormalizedEvent) (*Attribution, error) {
	recipient := evt.PrimaryRecipient()
	if recipient == "" {
		return nil, nil
	}

	candidates, err := r.campaigns.ScanRecentByRecipient(ctx, recipient, evt.Timestamp.Add(-r.window), evt.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Most recently created candidate wins.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CreatedAt().After(best.CreatedAt()) {
			best = c
		}
	}
	return &Attribution{
		CampaignID:         best.CampaignID,
		OriginalCampaignID: best.OriginalCampaignID,
	}, nil
}

// TieredResolver tries each resolver in order and returns the first match.
type TieredResolver struct {
	tiers []Resolver
}

func NewTieredResolver(tiers ...Resolver) *TieredResolver {
	return &TieredResolver{tiers: tiers}
}

func (r *TieredResolver) Resolve(ctx context.Context, evt *NormalizedEvent) (*Attribution, error) {
	for _, tier := range r.tiers {
		attr, err := tier.Resolve(ctx, evt)
		if err != nil {
			// A broken tier must not hide a match from a later one.
			log.Printf("[Resolver] tier error for %s: %v", evt.SESMessageID, err)
			continue
		}
		if attr != nil {
			return attr, nil
		}
	}
	return nil, nil
}
