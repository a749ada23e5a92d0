package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// CampaignStatusStore is the campaign-store surface the reconciler needs.
type CampaignStatusStore interface {
	Get(ctx context.Context, campaignID string) ([]campaign.Campaign, error)
	UpdateStatusFrom(ctx context.Context, campaignID, emailID string, from, to campaign.Status) error
}

// Reconciler folds tracking events into campaign status under the
// monotonic merge rule: a status only moves to equal or higher priority,
// so events arriving late, duplicated, or out of order converge on the
// same final status.
type Reconciler struct {
	campaigns CampaignStatusStore
}

func NewReconciler(campaigns CampaignStatusStore) *Reconciler {
	return &Reconciler{campaigns: campaigns}
}

// ApplyEvent merges the status implied by a provider event type into every
// row of the campaign. Event types with no status meaning are a no-op.
func (r *Reconciler) ApplyEvent(ctx context.Context, campaignID, eventType string) error {
	status, ok := campaign.StatusForEvent(eventType)
	if !ok {
		return nil
	}
	return r.ApplyStatus(ctx, campaignID, status)
}

// ApplyStatus merges a target status into every row of the campaign.
func (r *Reconciler) ApplyStatus(ctx context.Context, campaignID string, status campaign.Status) error {
	rows, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("loading campaign %s: %w", campaignID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("campaign %s not found", campaignID)
	}

	for _, row := range rows {
		if err := r.applyToRow(ctx, row, status); err != nil {
			return err
		}
	}
	return nil
}

// applyToRow does read, merge-rule check, conditional write, with a single
// re-read on conflict. A conflict that persists is left alone: the
// competing writer either applied something higher, or the next event for
// this campaign repeats the merge and lands it.
func (r *Reconciler) applyToRow(ctx context.Context, row campaign.Campaign, status campaign.Status) error {
	if !status.ShouldReplace(row.Status) {
		return nil
	}

	err := r.campaigns.UpdateStatusFrom(ctx, row.CampaignID, row.EmailID, row.Status, status)
	if err == nil {
		return nil
	}
	if !errors.Is(err, campaign.ErrStatusConflict) {
		return err
	}

	rows, err := r.campaigns.Get(ctx, row.CampaignID)
	if err != nil {
		return fmt.Errorf("reloading campaign %s after conflict: %w", row.CampaignID, err)
	}
	for _, fresh := range rows {
		if fresh.EmailID != row.EmailID {
			continue
		}
		if !status.ShouldReplace(fresh.Status) {
			return nil
		}
		if err := r.campaigns.UpdateStatusFrom(ctx, fresh.CampaignID, fresh.EmailID, fresh.Status, status); err != nil {
			if errors.Is(err, campaign.ErrStatusConflict) {
				log.Printf("[Reconciler] %s/%s still contested after retry, leaving status merge to the next event", fresh.CampaignID, fresh.EmailID)
				return nil
			}
			return err
		}
		return nil
	}
	return nil
}
