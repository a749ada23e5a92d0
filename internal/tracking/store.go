package tracking

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Index names on the tracking table.
const (
	indexCampaignEvent    = "campaign_id-event_type-index"
	indexOriginalCampaign = "original_campaign_id-event_type-index"
	indexMessageRecipient = "message_id-recipient_primary-index"
)

// EventStore is the persistence surface the ingest pipeline needs. The
// DynamoDB Store satisfies it; tests use an in-memory fake.
type EventStore interface {
	PutEvent(ctx context.Context, evt *Event) error
	GetEvent(ctx context.Context, messageID string, eventType EventType) (*Event, error)
	FindBySESMessageID(ctx context.Context, sesMessageID string, eventType EventType) (*Event, error)
	FindByRecipient(ctx context.Context, messageID, recipient string, eventType EventType) (*Event, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]Event, error)
}

// Store persists tracking events in DynamoDB, keyed (message_id, event_type).
type Store struct {
	db        *dynamodb.Client
	tableName string
}

// NewStore creates a tracking store backed by the given table.
func NewStore(db *dynamodb.Client, tableName string) *Store {
	return &Store{db: db, tableName: tableName}
}

// PutEvent writes an event row, replacing any existing row with the same
// key. Replacement is how repeat opens and clicks merge instead of piling
// up duplicates.
func (s *Store) PutEvent(ctx context.Context, evt *Event) error {
	av, err := attributevalue.MarshalMap(evt)
	if err != nil {
		return fmt.Errorf("marshaling tracking event: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting tracking event to DynamoDB: %w", err)
	}
	return nil
}

// GetEvent fetches a single (message_id, event_type) row. Nil if absent.
func (s *Store) GetEvent(ctx context.Context, messageID string, eventType EventType) (*Event, error) {
	result, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"message_id": &types.AttributeValueMemberS{Value: messageID},
			"event_type": &types.AttributeValueMemberS{Value: string(eventType)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting tracking event: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var evt Event
	if err := attributevalue.UnmarshalMap(result.Item, &evt); err != nil {
		return nil, fmt.Errorf("unmarshaling tracking event: %w", err)
	}
	return &evt, nil
}

// FindBySESMessageID locates an event by the provider's message id. The
// provider id is not a key, so this is a filtered scan; it runs once per
// webhook event and the Send row it looks for is written at dispatch time.
func (s *Store) FindBySESMessageID(ctx context.Context, sesMessageID string, eventType EventType) (*Event, error) {
	result, err := s.db.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("ses_message_id = :sid AND event_type = :et"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: sesMessageID},
			":et":  &types.AttributeValueMemberS{Value: string(eventType)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scanning by ses_message_id: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var evt Event
	if err := attributevalue.UnmarshalMap(result.Items[0], &evt); err != nil {
		return nil, fmt.Errorf("unmarshaling tracking event: %w", err)
	}
	return &evt, nil
}

// FindByRecipient locates an event through the message/recipient index,
// filtered to one event type. Used to merge repeat clicks into the
// existing row.
func (s *Store) FindByRecipient(ctx context.Context, messageID, recipient string, eventType EventType) (*Event, error) {
	result, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(indexMessageRecipient),
		KeyConditionExpression: aws.String("message_id = :mid AND recipient_primary = :r"),
		FilterExpression:       aws.String("event_type = :et"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":mid": &types.AttributeValueMemberS{Value: messageID},
			":r":   &types.AttributeValueMemberS{Value: recipient},
			":et":  &types.AttributeValueMemberS{Value: string(eventType)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying by message/recipient: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var evt Event
	if err := attributevalue.UnmarshalMap(result.Items[0], &evt); err != nil {
		return nil, fmt.Errorf("unmarshaling tracking event: %w", err)
	}
	return &evt, nil
}

// ListByCampaign returns every event attributed to a campaign.
func (s *Store) ListByCampaign(ctx context.Context, campaignID string) ([]Event, error) {
	return s.listByIndex(ctx, indexCampaignEvent, "campaign_id", campaignID)
}

// ListByOriginalCampaign returns events attributed to resends of a
// campaign, via the original_campaign_id back-reference.
func (s *Store) ListByOriginalCampaign(ctx context.Context, originalCampaignID string) ([]Event, error) {
	return s.listByIndex(ctx, indexOriginalCampaign, "original_campaign_id", originalCampaignID)
}

func (s *Store) listByIndex(ctx context.Context, index, keyAttr, keyValue string) ([]Event, error) {
	result, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", keyAttr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: keyValue},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", index, err)
	}

	var events []Event
	for _, item := range result.Items {
		var evt Event
		if err := attributevalue.UnmarshalMap(item, &evt); err != nil {
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

// DeleteByCampaign removes every event attributed to a campaign. Individual
// delete failures are reported but do not stop the sweep; tracking rows are
// advisory and an orphan is preferable to an aborted campaign delete.
func (s *Store) DeleteByCampaign(ctx context.Context, campaignID string) (int, error) {
	events, err := s.ListByCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var lastErr error
	for _, evt := range events {
		_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"message_id": &types.AttributeValueMemberS{Value: evt.MessageID},
				"event_type": &types.AttributeValueMemberS{Value: string(evt.EventType)},
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("deleting tracking event %s/%s: %w", evt.MessageID, evt.EventType, err)
			continue
		}
		deleted++
	}
	return deleted, lastErr
}
