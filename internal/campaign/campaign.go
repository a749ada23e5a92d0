package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Campaign types
const (
	TypeRegular = "regular"
	TypeDrip    = "drip"
)

// Sort-key sentinels. A regular campaign stores one row under EmailIDRegular;
// a drip campaign stores its definition under EmailIDMain. Resend clones get
// a fresh email#<uuid8> suffix so the original rows are never overwritten.
const (
	EmailIDMain    = "email#main"
	EmailIDRegular = "email#regular"
)

// DripEmail is one email template inside a drip sequence.
type DripEmail struct {
	Subject string `json:"subject" dynamodbav:"subject"`
	Body    string `json:"body" dynamodbav:"body"`
}

// DripConfig defines the three-step drip sequence: the initial send, the
// follow-up for recipients who opened (EmailA) and for those who did not
// (EmailB). WaitDays may be fractional.
type DripConfig struct {
	Email1   DripEmail `json:"email1" dynamodbav:"email1"`
	EmailA   DripEmail `json:"emailA" dynamodbav:"emailA"`
	EmailB   DripEmail `json:"emailB" dynamodbav:"emailB"`
	WaitDays float64   `json:"wait_days" dynamodbav:"wait_days"`
}

// WaitDuration converts the fractional wait_days into a duration.
func (d DripConfig) WaitDuration() time.Duration {
	return time.Duration(d.WaitDays * 24 * float64(time.Hour))
}

// Campaign is a row in the campaigns table, keyed (campaign_id, email_id).
type Campaign struct {
	CampaignID         string      `json:"campaign_id" dynamodbav:"campaign_id"`
	EmailID            string      `json:"email_id" dynamodbav:"email_id"`
	UserID             string      `json:"user_id" dynamodbav:"user_id"`
	Subject            string      `json:"subject,omitempty" dynamodbav:"subject,omitempty"`
	Body               string      `json:"body,omitempty" dynamodbav:"body,omitempty"`
	Recipients         []string    `json:"recipients" dynamodbav:"recipients"`
	CampaignType       string      `json:"campaign_type" dynamodbav:"campaign_type"`
	DripConfig         *DripConfig `json:"drip_config,omitempty" dynamodbav:"drip_config,omitempty"`
	Status             Status      `json:"status" dynamodbav:"status"`
	Timestamp          string      `json:"timestamp" dynamodbav:"timestamp"`
	OriginalCampaignID string      `json:"original_campaign_id,omitempty" dynamodbav:"original_campaign_id,omitempty"`
	UnverifiedEmails   []string    `json:"unverified_emails,omitempty" dynamodbav:"unverified_emails,omitempty"`
	RetryCount         int         `json:"retry_count,omitempty" dynamodbav:"retry_count,omitempty"`
}

// IsDrip reports whether the campaign is a drip sequence.
func (c *Campaign) IsDrip() bool {
	return c.CampaignType == TypeDrip
}

// CreatedAt parses the campaign's creation timestamp. Zero time on parse failure.
func (c *Campaign) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339, c.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NewID mints a campaign id of the form campaign#<uuid8>.
func NewID() string {
	return "campaign#" + uuid.New().String()[:8]
}

// ShortID strips the campaign# prefix, for use in URLs and schedule names.
func ShortID(campaignID string) string {
	return strings.TrimPrefix(campaignID, "campaign#")
}

// NewResendEmailID mints a fresh sort key for a resend clone.
func NewResendEmailID() string {
	return fmt.Sprintf("email#%s", uuid.New().String()[:8])
}
