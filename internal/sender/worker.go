package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/queue"
)

// CampaignGetter loads the campaign row a send job refers to.
type CampaignGetter interface {
	GetRow(ctx context.Context, campaignID, emailID string) (*campaign.Campaign, error)
}

// SendJobHandler adapts the dispatcher to the send queue. Malformed jobs
// are dropped; a missing campaign means it was deleted after enqueue and
// the job is dropped too. Transient errors are returned so SQS redelivers.
func SendJobHandler(campaigns CampaignGetter, d *Dispatcher) queue.HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var job queue.SendJob
		if err := json.Unmarshal(body, &job); err != nil {
			log.Printf("[Sender] dropping malformed send job: %v", err)
			return nil
		}

		c, err := campaigns.GetRow(ctx, job.CampaignID, job.EmailID)
		if err != nil {
			return fmt.Errorf("loading campaign %s: %w", job.CampaignID, err)
		}
		if c == nil {
			log.Printf("[Sender] campaign %s no longer exists, dropping send job", job.CampaignID)
			return nil
		}

		return d.Dispatch(ctx, c, job.EmailStep, job.Recipients)
	}
}
