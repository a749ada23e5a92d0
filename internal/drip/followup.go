package drip

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/tracking"
)

// CampaignReader is the campaign-store surface the follow-up handler needs.
type CampaignReader interface {
	GetRow(ctx context.Context, campaignID, emailID string) (*campaign.Campaign, error)
}

// EventLister lists a campaign's tracking events for the branch decision.
type EventLister interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]tracking.Event, error)
}

// JobPublisher enqueues send jobs.
type JobPublisher interface {
	Publish(ctx context.Context, job interface{}) error
}

// FollowupHandler fires when a drip campaign's wait window elapses. It
// reads the opened set as of now and splits the recipients: openers get
// EmailA, everyone else gets EmailB. Opens arriving after this moment
// still update campaign status but never reopen the branch.
type FollowupHandler struct {
	campaigns CampaignReader
	events    EventLister
	sendQueue JobPublisher
	rdb       *redis.Client // optional idempotency guard
}

func NewFollowupHandler(campaigns CampaignReader, events EventLister, sendQueue JobPublisher, rdb *redis.Client) *FollowupHandler {
	return &FollowupHandler{
		campaigns: campaigns,
		events:    events,
		sendQueue: sendQueue,
		rdb:       rdb,
	}
}

// HandleMessage is the queue.HandlerFunc adapter for follow-up firings.
func (h *FollowupHandler) HandleMessage(ctx context.Context, body []byte) error {
	var job queue.FollowupJob
	if err := json.Unmarshal(body, &job); err != nil {
		log.Printf("[Drip] dropping malformed follow-up job: %v", err)
		return nil
	}
	return h.Handle(ctx, job)
}

// Handle processes one follow-up firing.
func (h *FollowupHandler) Handle(ctx context.Context, job queue.FollowupJob) error {
	if job.CampaignID == "" {
		log.Printf("[Drip] follow-up job missing campaign id, dropping")
		return nil
	}

	if !h.claimFiring(ctx, job.CampaignID) {
		log.Printf("[Drip] follow-up for %s already handled, skipping duplicate firing", job.CampaignID)
		return nil
	}

	if err := h.dispatchBranches(ctx, job.CampaignID); err != nil {
		// Give the claim back so the queue redelivery gets another try.
		// Holding it would turn a transient failure into a lost follow-up.
		h.releaseClaim(ctx, job.CampaignID)
		return err
	}
	return nil
}

// dispatchBranches reads the opened set and publishes the branch sends.
func (h *FollowupHandler) dispatchBranches(ctx context.Context, campaignID string) error {
	c, err := h.campaigns.GetRow(ctx, campaignID, campaign.EmailIDMain)
	if err != nil {
		return fmt.Errorf("loading drip campaign %s: %w", campaignID, err)
	}
	// The campaign may have been deleted between scheduling and firing.
	// An orphan timer is a no-op, not an error.
	if c == nil {
		log.Printf("[Drip] campaign %s no longer exists, ignoring follow-up", campaignID)
		return nil
	}
	if !c.IsDrip() {
		log.Printf("[Drip] campaign %s is not a drip campaign, ignoring follow-up", campaignID)
		return nil
	}

	events, err := h.events.ListByCampaign(ctx, c.CampaignID)
	if err != nil {
		return fmt.Errorf("loading tracking events for %s: %w", c.CampaignID, err)
	}
	opened := tracking.OpenedRecipients(events)

	var branchA, branchB []string
	for _, r := range c.Recipients {
		if opened[r] {
			branchA = append(branchA, r)
		} else {
			branchB = append(branchB, r)
		}
	}

	if len(branchA) > 0 {
		err := h.sendQueue.Publish(ctx, queue.SendJob{
			CampaignID: c.CampaignID,
			EmailID:    c.EmailID,
			EmailStep:  queue.StepEmailA,
			Recipients: branchA,
		})
		if err != nil {
			return fmt.Errorf("enqueuing emailA for %s: %w", c.CampaignID, err)
		}
	}
	if len(branchB) > 0 {
		err := h.sendQueue.Publish(ctx, queue.SendJob{
			CampaignID: c.CampaignID,
			EmailID:    c.EmailID,
			EmailStep:  queue.StepEmailB,
			Recipients: branchB,
		})
		if err != nil {
			return fmt.Errorf("enqueuing emailB for %s: %w", c.CampaignID, err)
		}
	}

	log.Printf("[Drip] follow-up for %s: %d opened (emailA), %d unopened (emailB)",
		c.CampaignID, len(branchA), len(branchB))
	return nil
}

// claimFiring marks the follow-up as handled. Scheduler retries and
// at-least-once queue delivery both produce duplicate firings; the first
// claim wins. Without Redis every firing is claimed, trading duplicate
// suppression for availability.
func (h *FollowupHandler) claimFiring(ctx context.Context, campaignID string) bool {
	if h.rdb == nil {
		return true
	}
	ok, err := h.rdb.SetNX(ctx, followupClaimKey(campaignID), time.Now().UTC().Format(time.RFC3339), 48*time.Hour).Result()
	if err != nil {
		log.Printf("[Drip] idempotency check failed for %s, proceeding anyway: %v", campaignID, err)
		return true
	}
	return ok
}

// releaseClaim undoes claimFiring after a failed dispatch so the next
// delivery is not suppressed as a duplicate.
func (h *FollowupHandler) releaseClaim(ctx context.Context, campaignID string) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.Del(ctx, followupClaimKey(campaignID)).Err(); err != nil {
		log.Printf("[Drip] releasing follow-up claim for %s failed, retries suppressed until expiry: %v", campaignID, err)
	}
}

func followupClaimKey(campaignID string) string {
	return "drip:followup:" + campaignID
}

// Summary describes a drip campaign for the dashboard.
type Summary struct {
	CampaignID string                 `json:"campaign_id"`
	Subject    string                 `json:"subject"`
	Recipients int                    `json:"recipients"`
	Status     campaign.Status        `json:"status"`
	Active     bool                   `json:"active"`
	CreatedAt  string                 `json:"created_at"`
	FollowupAt string                 `json:"followup_at"`
	Stats      tracking.CampaignStats `json:"stats"`
}

// Summarize builds the dashboard view of one drip campaign. A campaign is
// active until its wait window has fully elapsed.
func Summarize(c *campaign.Campaign, events []tracking.Event, now time.Time) Summary {
	s := Summary{
		CampaignID: c.CampaignID,
		Recipients: len(c.Recipients),
		Status:     c.Status,
		CreatedAt:  c.Timestamp,
		Stats:      tracking.ComputeStats(c.CampaignID, len(c.Recipients), events),
	}
	if c.DripConfig != nil {
		s.Subject = c.DripConfig.Email1.Subject
		followupAt := c.CreatedAt().Add(c.DripConfig.WaitDuration())
		s.FollowupAt = followupAt.UTC().Format(time.RFC3339)
		s.Active = now.Before(followupAt)
	}
	return s
}
