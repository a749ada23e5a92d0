// Package drip implements the three-step drip sequence: the initial send,
// a wait window, then one of two follow-up emails depending on whether the
// recipient opened the first.
package drip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/scheduler/types"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// TimerService registers and cancels one-shot timers. Timers are named
// deterministically per campaign so a cancel can find them without extra
// bookkeeping.
type TimerService interface {
	RegisterOneShot(ctx context.Context, name string, at time.Time, payload interface{}) error
	Cancel(ctx context.Context, name string) error
}

var scheduleNameSanitizer = regexp.MustCompile(`[^0-9a-zA-Z\-_.]`)

// FollowupScheduleName returns the timer name for a campaign's follow-up.
func FollowupScheduleName(campaignID string) string {
	safe := scheduleNameSanitizer.ReplaceAllString(campaign.ShortID(campaignID), "-")
	return "drip-followup-" + safe
}

// SchedulerService is the EventBridge Scheduler implementation of
// TimerService. Fired schedules deliver their payload onto the follow-up
// SQS queue and then delete themselves.
type SchedulerService struct {
	client    *scheduler.Client
	group     string
	roleARN   string
	targetARN string
}

func NewSchedulerService(client *scheduler.Client, group, roleARN, targetARN string) *SchedulerService {
	if group == "" {
		group = "default"
	}
	return &SchedulerService{
		client:    client,
		group:     group,
		roleARN:   roleARN,
		targetARN: targetARN,
	}
}

// RegisterOneShot creates a schedule that fires once at the given time.
// The retry policy tolerates transient delivery failures; duplicate
// firings are handled by the consumer's idempotency guard, not here.
func (s *SchedulerService) RegisterOneShot(ctx context.Context, name string, at time.Time, payload interface{}) error {
	input, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling schedule payload: %w", err)
	}

	_, err = s.client.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
		Name:                       aws.String(name),
		GroupName:                  aws.String(s.group),
		ScheduleExpression:         aws.String(fmt.Sprintf("at(%s)", at.UTC().Format("2006-01-02T15:04:05"))),
		ScheduleExpressionTimezone: aws.String("UTC"),
		FlexibleTimeWindow: &types.FlexibleTimeWindow{
			Mode: types.FlexibleTimeWindowModeOff,
		},
		Target: &types.Target{
			Arn:     aws.String(s.targetARN),
			RoleArn: aws.String(s.roleARN),
			Input:   aws.String(string(input)),
			RetryPolicy: &types.RetryPolicy{
				MaximumRetryAttempts: aws.Int32(2),
			},
		},
		ActionAfterCompletion: types.ActionAfterCompletionDelete,
	})
	if err != nil {
		return fmt.Errorf("creating schedule %s: %w", name, err)
	}
	return nil
}

// Cancel deletes a schedule. A schedule that already fired (and deleted
// itself) or never existed is not an error.
func (s *SchedulerService) Cancel(ctx context.Context, name string) error {
	_, err := s.client.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{
		Name:      aws.String(name),
		GroupName: aws.String(s.group),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("deleting schedule %s: %w", name, err)
	}
	return nil
}
