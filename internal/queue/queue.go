// Package queue carries the SQS plumbing between the API, the send worker
// and the drip follow-up handler.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Email steps a send job can carry. Regular campaigns always send
// StepRegular; drip campaigns move through the other three.
const (
	StepRegular = "regular"
	StepEmail1  = "email1"
	StepEmailA  = "emailA"
	StepEmailB  = "emailB"
)

// SendJob instructs the worker to send one email step to a recipient list.
// Subject and body are resolved by the worker from the campaign row, so a
// job stays valid even if templates are edited after enqueue.
type SendJob struct {
	CampaignID string   `json:"campaign_id"`
	EmailID    string   `json:"email_id"`
	EmailStep  string   `json:"email_step"`
	Recipients []string `json:"recipients"`
}

// FollowupJob fires when a drip campaign's wait window elapses.
type FollowupJob struct {
	CampaignID string `json:"campaign_id"`
	ScheduleID string `json:"schedule_id,omitempty"`
}

// Publisher enqueues jobs on an SQS queue. Publishing is synchronous:
// callers on the create path need the failure so they can surface it
// rather than leave a campaign silently stuck in SCHEDULED.
type Publisher struct {
	client   *sqs.Client
	queueURL string
}

func NewPublisher(client *sqs.Client, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

func (p *Publisher) Publish(ctx context.Context, job interface{}) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publishing to SQS: %w", err)
	}
	return nil
}
