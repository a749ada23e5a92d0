package tracking

import (
	"encoding/json"
	"time"
)

// EventType is the kind of tracking event, using the provider's names.
type EventType string

const (
	EventSend       EventType = "Send"
	EventDelivery   EventType = "Delivery"
	EventOpen       EventType = "Open"
	EventClick      EventType = "Click"
	EventBounce     EventType = "Bounce"
	EventComplaint  EventType = "Complaint"
	EventUnverified EventType = "Unverified"
	EventFailed     EventType = "Failed"
)

// RawEvent is the free-form context stored alongside an event. For pixel
// and click hits it holds the request fingerprint; for provider webhooks it
// holds the original payload fields we care about.
type RawEvent struct {
	UserAgent     string `json:"userAgent,omitempty"`
	Referer       string `json:"referer,omitempty"`
	SourceIP      string `json:"sourceIp,omitempty"`
	VerifiedHuman *bool  `json:"verified_human,omitempty"`
	URL           string `json:"url,omitempty"`
	Error         string `json:"error,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

// Event is a row in the tracking table, keyed (message_id, event_type).
// message_id is our own per-recipient id; ses_message_id is the provider's.
type Event struct {
	MessageID          string    `json:"message_id" dynamodbav:"message_id"`
	EventType          EventType `json:"event_type" dynamodbav:"event_type"`
	SESMessageID       string    `json:"ses_message_id,omitempty" dynamodbav:"ses_message_id,omitempty"`
	CampaignID         string    `json:"campaign_id,omitempty" dynamodbav:"campaign_id,omitempty"`
	OriginalCampaignID string    `json:"original_campaign_id,omitempty" dynamodbav:"original_campaign_id,omitempty"`
	Timestamp          string    `json:"timestamp" dynamodbav:"timestamp"`
	Recipients         []string  `json:"recipients,omitempty" dynamodbav:"recipients,omitempty"`
	RecipientPrimary   string    `json:"recipient_primary,omitempty" dynamodbav:"recipient_primary,omitempty"`
	ClickTimestamps    []string  `json:"click_timestamps,omitempty" dynamodbav:"click_timestamps,omitempty"`
	RawEvent           string    `json:"raw_event,omitempty" dynamodbav:"raw_event,omitempty"`
	Unattributed       bool      `json:"unattributed,omitempty" dynamodbav:"unattributed,omitempty"`
}

// SetRaw marshals raw into the event's raw_event blob.
func (e *Event) SetRaw(raw RawEvent) {
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	e.RawEvent = string(data)
}

// Raw parses the raw_event blob. An empty or malformed blob yields the
// zero RawEvent rather than an error; old rows predate the field.
func (e *Event) Raw() RawEvent {
	var raw RawEvent
	if e.RawEvent == "" {
		return raw
	}
	_ = json.Unmarshal([]byte(e.RawEvent), &raw)
	return raw
}

// VerifiedHumanOpen reports whether an Open event should count toward
// engagement. Events without the flag count: rows written before bot
// filtering existed must not vanish from historical stats.
func (e *Event) VerifiedHumanOpen() bool {
	raw := e.Raw()
	if raw.VerifiedHuman == nil {
		return true
	}
	return *raw.VerifiedHuman
}

// EventTime parses the event timestamp, falling back to the zero time.
func (e *Event) EventTime() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
