// Package sender delivers campaign email through AWS SES and records the
// dispatch-time tracking rows that make later webhook events attributable.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Message is one outbound email.
type Message struct {
	FromEmail  string
	To         string
	Subject    string
	HTMLBody   string
	CampaignID string
	MessageID  string // our per-recipient tracking id, attached as a tag
}

// EmailSender delivers a single message and returns the provider's
// message id.
type EmailSender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// SESSender sends email via AWS SES using the SDK v2.
type SESSender struct {
	client           *sesv2.Client
	configurationSet string
}

// NewSESSender creates an SES sender. Static credentials are optional;
// without them the default chain (IAM role on ECS) is used.
func NewSESSender(ctx context.Context, accessKey, secretKey, region, configurationSet string) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}

	return &SESSender{
		client:           sesv2.NewFromConfig(cfg),
		configurationSet: configurationSet,
	}, nil
}

// Send delivers a single email through AWS SES. The configuration set
// routes delivery events back into the webhook feed; the tags let the
// feed identify the campaign and message without parsing the body.
func (s *SESSender) Send(ctx context.Context, msg *Message) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.FromEmail),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(sanitizeTag(msg.CampaignID))},
			{Name: aws.String("message_id"), Value: aws.String(msg.MessageID)},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", err
	}

	providerID := ""
	if result.MessageId != nil {
		providerID = *result.MessageId
	}
	log.Printf("[SES] Sent to %s (id: %s)", redactEmail(msg.To), providerID)
	return providerID, nil
}

// RequestVerification asks SES to start identity verification for an
// address, which sends the owner a confirmation email. An identity that
// already exists is not an error.
func (s *SESSender) RequestVerification(ctx context.Context, email string) error {
	_, err := s.client.CreateEmailIdentity(ctx, &sesv2.CreateEmailIdentityInput{
		EmailIdentity: aws.String(email),
	})
	if err != nil {
		var exists *types.AlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("requesting verification for %s: %w", redactEmail(email), err)
	}
	return nil
}

// IsVerificationError reports whether a send failure means the identity
// is unverified in SES, which gets its own campaign status rather than a
// plain failure.
func IsVerificationError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not verified")
}

// sanitizeTag strips characters SES rejects in message tag values.
func sanitizeTag(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, v)
}

func redactEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// nowRFC3339 is the timestamp format shared by all dispatch-time rows.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
