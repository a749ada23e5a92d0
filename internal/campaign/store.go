package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrStatusConflict is returned by UpdateStatusFrom when another writer
// changed the status between our read and conditional write.
var ErrStatusConflict = errors.New("campaign status changed concurrently")

// Store persists campaigns in DynamoDB, keyed (campaign_id, email_id).
type Store struct {
	db        *dynamodb.Client
	tableName string
}

// NewStore creates a campaign store backed by the given table.
func NewStore(db *dynamodb.Client, tableName string) *Store {
	return &Store{db: db, tableName: tableName}
}

// Put writes a campaign row. Creation must complete before any send is
// dispatched, so callers treat an error here as fatal for the request.
func (s *Store) Put(ctx context.Context, c *Campaign) error {
	av, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshaling campaign: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting campaign to DynamoDB: %w", err)
	}
	return nil
}

// Get returns all rows for a campaign id, or an empty slice if none exist.
func (s *Store) Get(ctx context.Context, campaignID string) ([]Campaign, error) {
	result, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("campaign_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: campaignID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying campaign: %w", err)
	}

	var campaigns []Campaign
	for _, item := range result.Items {
		var c Campaign
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			continue
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

// GetRow fetches a single (campaign_id, email_id) row. Nil if absent.
func (s *Store) GetRow(ctx context.Context, campaignID, emailID string) (*Campaign, error) {
	result, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"campaign_id": &types.AttributeValueMemberS{Value: campaignID},
			"email_id":    &types.AttributeValueMemberS{Value: emailID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting campaign row: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var c Campaign
	if err := attributevalue.UnmarshalMap(result.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling campaign: %w", err)
	}
	return &c, nil
}

// UpdateStatusFrom conditionally moves a row's status from an observed value
// to a new one. Returns ErrStatusConflict if the row's status no longer
// matches, so the caller can re-read and re-apply the merge rule.
func (s *Store) UpdateStatusFrom(ctx context.Context, campaignID, emailID string, from, to Status) error {
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"campaign_id": &types.AttributeValueMemberS{Value: campaignID},
			"email_id":    &types.AttributeValueMemberS{Value: emailID},
		},
		UpdateExpression:    aws.String("SET #status = :to"),
		ConditionExpression: aws.String("#status = :from"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":from": &types.AttributeValueMemberS{Value: string(from)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusConflict
		}
		return fmt.Errorf("updating campaign status: %w", err)
	}
	return nil
}

// SetUnverifiedEmails records recipients SES refused for lack of identity
// verification, alongside the status the send outcome implies.
func (s *Store) SetUnverifiedEmails(ctx context.Context, campaignID, emailID string, emails []string) error {
	unverified, err := attributevalue.Marshal(emails)
	if err != nil {
		return fmt.Errorf("marshaling unverified emails: %w", err)
	}

	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"campaign_id": &types.AttributeValueMemberS{Value: campaignID},
			"email_id":    &types.AttributeValueMemberS{Value: emailID},
		},
		UpdateExpression: aws.String("SET unverified_emails = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": unverified,
		},
	})
	if err != nil {
		return fmt.Errorf("updating unverified emails: %w", err)
	}
	return nil
}

// Delete removes every row belonging to the campaign id.
func (s *Store) Delete(ctx context.Context, campaignID string) error {
	rows, err := s.Get(ctx, campaignID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"campaign_id": &types.AttributeValueMemberS{Value: row.CampaignID},
				"email_id":    &types.AttributeValueMemberS{Value: row.EmailID},
			},
		})
		if err != nil {
			return fmt.Errorf("deleting campaign row %s/%s: %w", row.CampaignID, row.EmailID, err)
		}
	}
	return nil
}

// ScanRecentByRecipient finds campaigns that include the recipient and were
// created inside [from, to]. Used by the heuristic attribution path when the
// provider message id cannot be matched. A scan is acceptable here: the time
// window keeps the candidate set small and this path is the fallback, not
// the common case.
func (s *Store) ScanRecentByRecipient(ctx context.Context, recipient string, from, to time.Time) ([]Campaign, error) {
	result, err := s.db.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("contains(recipients, :r) AND #ts BETWEEN :from AND :to"),
		ExpressionAttributeNames: map[string]string{
			"#ts": "timestamp",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r":    &types.AttributeValueMemberS{Value: recipient},
			":from": &types.AttributeValueMemberS{Value: from.UTC().Format(time.RFC3339)},
			":to":   &types.AttributeValueMemberS{Value: to.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scanning campaigns by recipient: %w", err)
	}

	var campaigns []Campaign
	for _, item := range result.Items {
		var c Campaign
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			continue
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

// ListByUser returns the campaigns owned by a user, optionally filtered by
// campaign type.
func (s *Store) ListByUser(ctx context.Context, userID, campaignType string) ([]Campaign, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}
	if campaignType != "" {
		input.FilterExpression = aws.String("user_id = :uid AND campaign_type = :ct")
		input.ExpressionAttributeValues[":ct"] = &types.AttributeValueMemberS{Value: campaignType}
	}

	result, err := s.db.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scanning campaigns by user: %w", err)
	}

	var campaigns []Campaign
	for _, item := range result.Items {
		var c Campaign
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			continue
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}
