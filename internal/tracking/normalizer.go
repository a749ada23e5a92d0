package tracking

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// NormalizedEvent is the provider-independent form of a delivery event
// extracted from a webhook payload.
type NormalizedEvent struct {
	SESMessageID string
	EventType    EventType
	Timestamp    time.Time
	Recipients   []string
}

// snsEnvelope is the SNS notification wrapper around SES payloads.
type snsEnvelope struct {
	Type             string `json:"Type"`
	Message          string `json:"Message"`
	SubscribeURL     string `json:"SubscribeURL"`
	NotificationType string `json:"notificationType"`
}

type providerRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

type providerPayload struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID   string   `json:"messageId"`
		Timestamp   string   `json:"timestamp"`
		Destination []string `json:"destination"`
	} `json:"mail"`
	Bounce *struct {
		Timestamp         string              `json:"timestamp"`
		BouncedRecipients []providerRecipient `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		Timestamp            string              `json:"timestamp"`
		ComplainedRecipients []providerRecipient `json:"complainedRecipients"`
	} `json:"complaint"`
}

// ErrSkipMessage marks envelope messages that carry no event and should be
// acknowledged without processing (topic validation pings, subscription
// confirmations).
type ErrSkipMessage struct {
	Reason string
}

func (e *ErrSkipMessage) Error() string {
	return "skipping message: " + e.Reason
}

// UnwrapSNS peels the SNS envelope off a webhook body and returns the inner
// SES payload. Bodies that are not SNS-wrapped are returned as-is.
func UnwrapSNS(body []byte) ([]byte, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing webhook body: %w", err)
	}

	if env.Type == "SubscriptionConfirmation" {
		log.Printf("[Normalizer] SNS subscription confirmation received, visit SubscribeURL to confirm: %s", env.SubscribeURL)
		return nil, &ErrSkipMessage{Reason: "subscription confirmation"}
	}

	if env.Message == "" {
		// Not SNS-wrapped; treat the body as the payload itself.
		return body, nil
	}
	if strings.Contains(env.Message, "Successfully validated SNS topic") {
		return nil, &ErrSkipMessage{Reason: "topic validation ping"}
	}
	return []byte(env.Message), nil
}

// Normalize extracts the provider event from a raw SES payload. Payloads
// carry either an eventType (event publishing feed) or a notificationType
// (bounce/complaint notification feed); the two name recipients differently.
func Normalize(payload []byte) (*NormalizedEvent, error) {
	var p providerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("parsing provider payload: %w", err)
	}

	if p.Mail.MessageID == "" {
		return nil, fmt.Errorf("provider payload has no messageId")
	}

	eventType := p.EventType
	if eventType == "" {
		eventType = p.NotificationType
	}
	if eventType == "" {
		return nil, fmt.Errorf("provider payload has no event type (messageId=%s)", p.Mail.MessageID)
	}

	evt := &NormalizedEvent{
		SESMessageID: p.Mail.MessageID,
		EventType:    EventType(eventType),
		Recipients:   p.Mail.Destination,
		Timestamp:    parseEventTime(p.Mail.Timestamp),
	}

	// Bounce/complaint notifications name the affected recipients explicitly;
	// prefer those over the full destination list.
	switch {
	case p.Bounce != nil:
		if ts := parseEventTime(p.Bounce.Timestamp); !ts.IsZero() {
			evt.Timestamp = ts
		}
		if rs := recipientAddresses(p.Bounce.BouncedRecipients); len(rs) > 0 {
			evt.Recipients = rs
		}
	case p.Complaint != nil:
		if ts := parseEventTime(p.Complaint.Timestamp); !ts.IsZero() {
			evt.Timestamp = ts
		}
		if rs := recipientAddresses(p.Complaint.ComplainedRecipients); len(rs) > 0 {
			evt.Recipients = rs
		}
	}

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt, nil
}

func recipientAddresses(rs []providerRecipient) []string {
	var out []string
	for _, r := range rs {
		if r.EmailAddress != "" {
			out = append(out, r.EmailAddress)
		}
	}
	return out
}

func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// PrimaryRecipient returns the first recipient, the dedup key for
// aggregation.
func (e *NormalizedEvent) PrimaryRecipient() string {
	if len(e.Recipients) == 0 {
		return ""
	}
	return e.Recipients[0]
}
